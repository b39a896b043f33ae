package biz

import (
	"context"
	"errors"
	"time"

	"closet-web/internal/auth"
)

// OwnerCacheKey is the local cache key of the identity snapshot.
const OwnerCacheKey = "closet-owner"

// MirrorCookieNames are the cookies kept in the server-side mirror.
var MirrorCookieNames = []string{auth.AuthTokenCookieName, auth.OwnerCookieName}

// ErrNoUser is returned when an operation needs a signed-in provider user.
var ErrNoUser = errors.New("no authenticated user")

// LocalCache is the device-scoped durable store. Entries never expire.
type LocalCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// CookieJar is the device-scoped cookie mirror. Entries expire after their TTL.
type CookieJar interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, value string, ttl time.Duration) error
	Remove(ctx context.Context, name string) error
}

// MirroredCookie is one live cookie with its remaining lifetime.
type MirroredCookie struct {
	Name  string
	Value string
	TTL   time.Duration
}

// CookieMirror reads every mirrored cookie of a device, for flushing to the browser.
type CookieMirror interface {
	Mirrored(ctx context.Context, deviceID string) ([]MirroredCookie, error)
}

// IdentityProvider is the provider session of one device.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*auth.User, error)
	SignUp(ctx context.Context, email, password string) (*auth.User, error)
	SignInWithGoogle(ctx context.Context, googleIDToken string) (*auth.User, error)
	Logout(ctx context.Context) error
	CurrentUser() *auth.User
	OnAuthStateChanged(cb func(*auth.User)) (unsubscribe func())
}

// Connectivity reports whether the identity provider is reachable.
type Connectivity interface {
	Online() bool
}

// AlwaysOnline is a Connectivity that never reports offline.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }
