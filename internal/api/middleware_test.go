package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/biz"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMirror struct {
	cookies []biz.MirroredCookie
	err     error
	calls   int
}

func (m *stubMirror) Mirrored(context.Context, string) ([]biz.MirroredCookie, error) {
	m.calls++
	return m.cookies, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withDevice(r *http.Request) *http.Request {
	return r.WithContext(auth.WithDevice(r.Context(), "dev-1"))
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestDeviceMiddleware_IssuesCookie(t *testing.T) {
	var got string
	var touched []string
	h := DeviceMiddleware(DeviceOptions{Touch: func(id string) { touched = append(touched, id) }})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = auth.MustGetDeviceFromContext(r.Context())
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/my-closet/wardrobe", nil))

	_, err := uuid.Parse(got)
	require.NoError(t, err)
	c := responseCookies(rec)[DeviceCookieName]
	require.NotNil(t, c)
	assert.Equal(t, got, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(DefaultDeviceCookieMaxAge.Seconds()), c.MaxAge)
	assert.Equal(t, []string{got}, touched)
}

func TestDeviceMiddleware_ReusesCookie(t *testing.T) {
	id := uuid.NewString()
	var got string
	var touched int
	h := DeviceMiddleware(DeviceOptions{Touch: func(string) { touched++ }})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = auth.MustGetDeviceFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/mode", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: id})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, id, got)
	assert.Empty(t, rec.Result().Cookies())
	assert.Zero(t, touched, "api calls do not count as activity")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "not-a-uuid"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", got)
	assert.NotNil(t, responseCookies(rec)[DeviceCookieName])
}

func TestMirrorFlush_WritesLiveCookies(t *testing.T) {
	mirror := &stubMirror{cookies: []biz.MirroredCookie{
		{Name: auth.AuthTokenCookieName, Value: "tok", TTL: 90 * time.Minute},
		{Name: auth.OwnerCookieName, Value: "%7B%22uid%22%3A%22u1%22%7D", TTL: 1500 * time.Millisecond},
	}}
	h := MirrorFlush(mirror, true, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withDevice(httptest.NewRequest(http.MethodGet, "/", nil)))

	cookies := responseCookies(rec)
	token := cookies[auth.AuthTokenCookieName]
	require.NotNil(t, token)
	assert.Equal(t, "tok", token.Value)
	assert.Equal(t, 5400, token.MaxAge)
	assert.Equal(t, "/", token.Path)
	assert.Equal(t, http.SameSiteStrictMode, token.SameSite)
	assert.True(t, token.Secure)
	assert.True(t, token.HttpOnly)

	owner := cookies[auth.OwnerCookieName]
	require.NotNil(t, owner)
	assert.Equal(t, 2, owner.MaxAge, "partial seconds round up")
	assert.False(t, owner.HttpOnly)
	assert.Equal(t, 1, mirror.calls)
}

func TestMirrorFlush_ExpiresDroppedCookies(t *testing.T) {
	mirror := &stubMirror{}
	h := MirrorFlush(mirror, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, auth.SignInPath, http.StatusFound)
	}))

	req := withDevice(httptest.NewRequest(http.MethodGet, "/my-closet/wardrobe", nil))
	req.AddCookie(&http.Cookie{Name: auth.AuthTokenCookieName, Value: "stale"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := responseCookies(rec)
	require.Contains(t, cookies, auth.AuthTokenCookieName)
	assert.Equal(t, -1, cookies[auth.AuthTokenCookieName].MaxAge)
	assert.Contains(t, rec.Header().Values("Set-Cookie")[0], "Max-Age=0")
	assert.NotContains(t, cookies, auth.OwnerCookieName, "cookies the browser does not hold are left alone")
}

func TestMirrorFlush_EmptyResponse(t *testing.T) {
	mirror := &stubMirror{cookies: []biz.MirroredCookie{{Name: auth.AuthTokenCookieName, Value: "tok", TTL: time.Hour}}}
	h := MirrorFlush(mirror, false, discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withDevice(httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Contains(t, responseCookies(rec), auth.AuthTokenCookieName)
	assert.Equal(t, 1, mirror.calls)
}

func TestMirrorFlush_MirrorError(t *testing.T) {
	mirror := &stubMirror{err: errors.New("redis down")}
	h := MirrorFlush(mirror, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := withDevice(httptest.NewRequest(http.MethodGet, "/", nil))
	req.AddCookie(&http.Cookie{Name: auth.AuthTokenCookieName, Value: "tok"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "nothing is expired when the mirror cannot be read")
}

func TestMirrorFlush_WithoutDevice(t *testing.T) {
	mirror := &stubMirror{}
	h := MirrorFlush(mirror, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Zero(t, mirror.calls)
}

func TestScreenStatus(t *testing.T) {
	tests := []struct {
		screen AuthScreen
		want   int
	}{
		{AuthScreen{}, http.StatusOK},
		{AuthScreen{Error: "x", FieldErrors: map[string]string{"email": "x"}}, http.StatusBadRequest},
		{AuthScreen{Error: "x", ErrorCode: "auth/network-request-failed"}, http.StatusServiceUnavailable},
		{AuthScreen{Error: "x", ErrorCode: "auth/too-many-requests"}, http.StatusTooManyRequests},
		{AuthScreen{Error: "x", ErrorCode: "app/persist-failed"}, http.StatusInternalServerError},
		{AuthScreen{Error: "x", ErrorCode: "auth/wrong-password"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, screenStatus(&tt.screen), tt.screen.ErrorCode)
	}
}
