package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/auth/authtest"
	"closet-web/internal/autherr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend() *authtest.Backend {
	b := authtest.NewBackend()
	b.AddAccount("ada@example.com", "Secret123", auth.Profile{UID: "u-ada", DisplayName: "Ada"})
	b.AddGoogleAccount("google-token", auth.Profile{UID: "u-goo", Email: "goo@example.com"})
	return b
}

type stateLog struct {
	mu     sync.Mutex
	states []*auth.User
}

func (l *stateLog) record(u *auth.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, u)
}

func (l *stateLog) uids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.states))
	for i, u := range l.states {
		if u != nil {
			out[i] = u.UID
		}
	}
	return out
}

func TestAuth_SignInNotifiesObservers(t *testing.T) {
	a := auth.NewAuth(newBackend())
	ctx := context.Background()

	var log stateLog
	unsubscribe := a.OnAuthStateChanged(log.record)

	u, err := a.SignIn(ctx, "ada@example.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "u-ada", u.UID)
	assert.Same(t, u, a.CurrentUser())

	require.NoError(t, a.Logout(ctx))
	assert.Nil(t, a.CurrentUser())

	unsubscribe()
	unsubscribe()
	_, err = a.SignInWithGoogle(ctx, "google-token")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "u-ada", ""}, log.uids())
	assert.Equal(t, 0, a.Observers())
}

func TestAuth_SubscribeDeliversCurrentUser(t *testing.T) {
	a := auth.NewAuth(newBackend())
	_, err := a.SignIn(context.Background(), "ada@example.com", "Secret123")
	require.NoError(t, err)

	var log stateLog
	defer a.OnAuthStateChanged(log.record)()
	assert.Equal(t, []string{"u-ada"}, log.uids())
}

func TestAuth_FailedSignInKeepsState(t *testing.T) {
	a := auth.NewAuth(newBackend())
	_, err := a.SignIn(context.Background(), "ada@example.com", "nope")
	assert.Equal(t, autherr.CodeWrongPassword, autherr.CodeOf(err))
	assert.Nil(t, a.CurrentUser())

	_, err = a.SignUp(context.Background(), "ada@example.com", "Secret123")
	assert.Equal(t, autherr.CodeEmailAlreadyInUse, autherr.CodeOf(err))
}

func TestUser_GetIDToken(t *testing.T) {
	b := newBackend()
	now := time.Now()
	b.SetClock(func() time.Time { return now })
	a := auth.NewAuth(b)
	ctx := context.Background()

	u, err := a.SignIn(ctx, "ada@example.com", "Secret123")
	require.NoError(t, err)

	first, err := u.GetIDToken(ctx, false)
	require.NoError(t, err)
	again, err := u.GetIDToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 0, b.Calls("RefreshIDToken"))

	forced, err := u.GetIDToken(ctx, true)
	require.NoError(t, err)
	assert.NotEqual(t, first, forced)
	assert.Equal(t, 1, b.Calls("RefreshIDToken"))
}

func TestUser_GetIDTokenRefreshesNearExpiry(t *testing.T) {
	b := newBackend()
	b.SetTokenTTL(10 * time.Second)
	a := auth.NewAuth(b)
	ctx := context.Background()

	u, err := a.SignIn(ctx, "ada@example.com", "Secret123")
	require.NoError(t, err)

	_, err = u.GetIDToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Calls("RefreshIDToken"), "a token inside the skew window is refreshed")
}

func TestUser_GetIDTokenResult(t *testing.T) {
	b := newBackend()
	issued := time.Unix(1_700_000_000, 0)
	b.SetClock(func() time.Time { return issued })
	b.SetTokenTTL(100 * 365 * 24 * time.Hour)
	a := auth.NewAuth(b)
	ctx := context.Background()

	u, err := a.SignIn(ctx, "ada@example.com", "Secret123")
	require.NoError(t, err)

	res, err := u.GetIDTokenResult(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, issued.Add(100*365*24*time.Hour).Unix(), res.ExpirationTime.Unix())
	assert.Equal(t, issued.Unix(), res.IssuedAtTime.Unix())
	assert.Equal(t, issued.Unix(), res.AuthTime.Unix())
	assert.Equal(t, "password", res.SignInProvider)
	assert.Equal(t, "u-ada", res.Claims["sub"])
}

func TestUser_RefreshFailure(t *testing.T) {
	b := newBackend()
	a := auth.NewAuth(b)
	ctx := context.Background()
	u, err := a.SignIn(ctx, "ada@example.com", "Secret123")
	require.NoError(t, err)

	b.SetRefreshError(autherr.New(autherr.CodeNetworkRequestFailed, "offline"))
	_, err = u.GetIDToken(ctx, true)
	assert.Equal(t, autherr.CodeNetworkRequestFailed, autherr.CodeOf(err))
}

func TestRegistry(t *testing.T) {
	r := auth.NewRegistry(newBackend())

	a := r.Session("dev-1")
	assert.Same(t, a, r.Session("dev-1"))
	assert.NotSame(t, a, r.Session("dev-2"))
	assert.Equal(t, 2, r.Len())

	_, err := a.SignIn(context.Background(), "ada@example.com", "Secret123")
	require.NoError(t, err)
	assert.False(t, r.Forget("dev-1"), "signed-in sessions are kept")
	assert.True(t, r.Forget("dev-2"))
	assert.False(t, r.Forget("dev-3"))
	assert.Equal(t, 1, r.Len())
}
