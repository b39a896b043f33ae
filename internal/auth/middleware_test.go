package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		token    bool
		owner    bool
		redirect string
	}{
		{"wardrobe without token", "/my-closet/wardrobe", false, false, SignInPath},
		{"wardrobe without token but owner", "/my-closet/wardrobe", false, true, SignInPath},
		{"wardrobe with token", "/my-closet/wardrobe", true, false, ""},
		{"splash without token", "/", false, false, ""},
		{"splash with token", "/", true, true, ""},
		{"auth page signed in", SignInPath, true, true, WardrobePath},
		{"auth page token only", SignInPath, true, false, ""},
		{"auth page anonymous", SignInPath, false, false, ""},
		{"nested private page", "/my-closet/laundry/today", false, false, SignInPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.path, tt.token, tt.owner)
			assert.Equal(t, tt.redirect, d.Redirect)
			assert.Equal(t, tt.redirect == "", d.Pass())
		})
	}
}

func TestMatches(t *testing.T) {
	for _, p := range []string{"/api/auth/email", "/apidocs", "/static/app.css", "/favicon.ico", "/health", "/metrics", "/images/a.png"} {
		assert.False(t, Matches(p), p)
	}
	for _, p := range []string{"/", "/account/auth", "/my-closet/wardrobe"} {
		assert.True(t, Matches(p), p)
	}
}

func TestRouteGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := RouteGuard(slog.New(slog.DiscardHandler))(ok)

	do := func(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("/my-closet/wardrobe")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, SignInPath, rec.Header().Get("Location"))

	rec = do("/my-closet/wardrobe", &http.Cookie{Name: AuthTokenCookieName, Value: "t"})
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = do("/my-closet/wardrobe", &http.Cookie{Name: AuthTokenCookieName, Value: ""})
	assert.Equal(t, http.StatusFound, rec.Code, "an emptied cookie counts as absent")

	rec = do(SignInPath,
		&http.Cookie{Name: AuthTokenCookieName, Value: "t"},
		&http.Cookie{Name: OwnerCookieName, Value: "%7B%7D"})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, WardrobePath, rec.Header().Get("Location"))

	rec = do("/api/auth/email")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestDeviceContext(t *testing.T) {
	_, err := GetDeviceFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoDeviceInContext)

	ctx := WithDevice(context.Background(), "dev-1")
	id, err := GetDeviceFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", id)
	assert.Equal(t, "dev-1", MustGetDeviceFromContext(ctx))
	assert.Panics(t, func() { MustGetDeviceFromContext(context.Background()) })
}

func TestStateStore(t *testing.T) {
	s := NewStateStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	s.SaveWithVerifier("st", time.Minute, "dev-1", "verifier", "/my-closet/wardrobe")
	v, ret, ok := s.VerifyAndGetVerifier("st", "dev-1")
	require.True(t, ok)
	assert.Equal(t, "verifier", v)
	assert.Equal(t, "/my-closet/wardrobe", ret)

	_, _, ok = s.VerifyAndGetVerifier("st", "dev-1")
	assert.False(t, ok, "states are single use")

	s.SaveWithVerifier("old", time.Minute, "dev-1", "v", "")
	s.SaveWithVerifier("fresh", time.Hour, "dev-1", "v", "")
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.sweep())
	_, _, ok = s.VerifyAndGetVerifier("old", "dev-1")
	assert.False(t, ok)
	_, _, ok = s.VerifyAndGetVerifier("fresh", "dev-1")
	assert.True(t, ok)
}

func TestStateStore_BoundToDevice(t *testing.T) {
	s := NewStateStore()

	s.SaveWithVerifier("st", time.Minute, "dev-1", "verifier", "/my-closet/wardrobe")
	_, _, ok := s.VerifyAndGetVerifier("st", "dev-2")
	assert.False(t, ok, "another device cannot complete the flow")
	_, _, ok = s.VerifyAndGetVerifier("st", "dev-1")
	assert.False(t, ok, "a rejected state is consumed")

	s.SaveWithVerifier("anon", time.Minute, "", "verifier", "")
	_, _, ok = s.VerifyAndGetVerifier("anon", "")
	assert.False(t, ok)
}

func TestPKCE(t *testing.T) {
	v, err := GenerateCodeVerifier()
	require.NoError(t, err)
	assert.Len(t, v, 43)
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		GenerateCodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	s1, err := GenerateState()
	require.NoError(t, err)
	s2, err := GenerateState()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}
