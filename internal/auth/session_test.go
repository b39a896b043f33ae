package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBackend struct{}

func (fixedBackend) SignInWithPassword(_ context.Context, email, _ string) (*Credential, error) {
	return &Credential{
		Profile:      Profile{UID: "u-" + email, Email: email},
		IDToken:      "id-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (b fixedBackend) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	return b.SignInWithPassword(ctx, email, password)
}

func (fixedBackend) SignInWithIdp(context.Context, string, string) (*Credential, error) {
	return nil, ErrNoRefreshToken
}

func (fixedBackend) RefreshIDToken(context.Context, string) (*Credential, error) {
	return nil, ErrNoRefreshToken
}

func TestRegistry_PruneEvictsUnusedSessions(t *testing.T) {
	r := NewRegistry(fixedBackend{})
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	stale := r.Session("stale")
	_, err := stale.SignIn(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	var seen []*User
	unsubscribe := stale.OnAuthStateChanged(func(u *User) { seen = append(seen, u) })
	defer unsubscribe()

	busy := r.Session("busy")
	_, err = busy.SignIn(ctx, "bob@example.com", "pw")
	require.NoError(t, err)

	now = now.Add(20 * 24 * time.Hour)
	r.Session("recent")

	now = now.Add(15 * 24 * time.Hour)
	removed := r.Prune(ctx, DefaultRetention, func(id string) bool { return id == "busy" })
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, r.Len())
	assert.Nil(t, stale.CurrentUser(), "evicted sessions are signed out")
	require.NotEmpty(t, seen)
	assert.Nil(t, seen[len(seen)-1])

	assert.NotNil(t, busy.CurrentUser())
	assert.Same(t, busy, r.Session("busy"))
	assert.NotSame(t, stale, r.Session("stale"))
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	r := NewRegistry(fixedBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, time.Millisecond, 0, nil) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
