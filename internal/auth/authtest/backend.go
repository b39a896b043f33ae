// Package authtest provides an in-memory identity backend for tests.
package authtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/autherr"

	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("authtest-signing-key")

type account struct {
	password string
	profile  auth.Profile
}

// Backend implements auth.Backend against an in-memory account table.
type Backend struct {
	mu       sync.Mutex
	now      func() time.Time
	tokenTTL time.Duration
	accounts map[string]*account // by email
	google   map[string]*account // by Google ID token
	refresh  map[string]string   // refresh token -> uid
	byUID    map[string]*account
	failures []error
	refErr   error
	calls    map[string]int
	seq      int
}

func NewBackend() *Backend {
	return &Backend{
		now:      time.Now,
		tokenTTL: time.Hour,
		accounts: make(map[string]*account),
		google:   make(map[string]*account),
		refresh:  make(map[string]string),
		byUID:    make(map[string]*account),
		calls:    make(map[string]int),
	}
}

// SetClock replaces the time source used for issued tokens.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetTokenTTL sets the lifetime of issued ID tokens.
func (b *Backend) SetTokenTTL(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenTTL = d
}

// AddAccount registers an email/password account.
func (b *Backend) AddAccount(email, password string, p auth.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Email == "" {
		p.Email = email
	}
	a := &account{password: password, profile: p}
	b.accounts[email] = a
	b.byUID[p.UID] = a
}

// AddGoogleAccount registers the account a Google ID token resolves to.
func (b *Backend) AddGoogleAccount(googleIDToken string, p auth.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := &account{profile: p}
	b.google[googleIDToken] = a
	b.byUID[p.UID] = a
}

// FailNext queues errors returned, in order, by the next sign-in calls.
func (b *Backend) FailNext(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, errs...)
}

// SetRefreshError makes every refresh fail with err until reset with nil.
func (b *Backend) SetRefreshError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refErr = err
}

// Calls returns how often method was invoked.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*auth.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["SignInWithPassword"]++
	if err := b.popFailure(ctx); err != nil {
		return nil, err
	}
	a, ok := b.accounts[email]
	if !ok {
		return nil, autherr.New(autherr.CodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	if a.password != password {
		return nil, autherr.New(autherr.CodeWrongPassword, "INVALID_PASSWORD")
	}
	return b.issue(a), nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (*auth.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["SignUp"]++
	if err := b.popFailure(ctx); err != nil {
		return nil, err
	}
	if _, ok := b.accounts[email]; ok {
		return nil, autherr.New(autherr.CodeEmailAlreadyInUse, "EMAIL_EXISTS")
	}
	b.seq++
	a := &account{password: password, profile: auth.Profile{UID: fmt.Sprintf("uid-%d", b.seq), Email: email}}
	b.accounts[email] = a
	b.byUID[a.profile.UID] = a
	return b.issue(a), nil
}

func (b *Backend) SignInWithIdp(ctx context.Context, providerID, idToken string) (*auth.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["SignInWithIdp"]++
	if err := b.popFailure(ctx); err != nil {
		return nil, err
	}
	if providerID != auth.ProviderGoogle {
		return nil, autherr.New(autherr.CodeOperationNotAllowed, "OPERATION_NOT_ALLOWED")
	}
	a, ok := b.google[idToken]
	if !ok {
		return nil, autherr.New(autherr.CodeInvalidCredential, "INVALID_IDP_RESPONSE")
	}
	return b.issue(a), nil
}

func (b *Backend) RefreshIDToken(ctx context.Context, refreshToken string) (*auth.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["RefreshIDToken"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.refErr != nil {
		return nil, b.refErr
	}
	uid, ok := b.refresh[refreshToken]
	if !ok {
		return nil, autherr.New(autherr.CodeInvalidRefreshToken, "INVALID_REFRESH_TOKEN")
	}
	cred := b.issue(b.byUID[uid])
	return cred, nil
}

func (b *Backend) popFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.failures) == 0 {
		return nil
	}
	err := b.failures[0]
	b.failures = b.failures[1:]
	return err
}

func (b *Backend) issue(a *account) *auth.Credential {
	b.seq++
	now := b.now()
	exp := now.Add(b.tokenTTL)
	refresh := fmt.Sprintf("refresh-%s-%d", a.profile.UID, b.seq)
	b.refresh[refresh] = a.profile.UID

	profile := a.profile
	profile.LastLoginAt = now
	return &auth.Credential{
		Profile:      profile,
		IDToken:      MintIDToken(a.profile.UID, now, exp, b.seq),
		RefreshToken: refresh,
		ExpiresAt:    exp,
	}
}

// MintIDToken signs a token shaped like a provider ID token. seq keeps
// tokens minted in the same second distinct.
func MintIDToken(uid string, issuedAt, expiresAt time.Time, seq int) string {
	claims := jwt.MapClaims{
		"sub":       uid,
		"user_id":   uid,
		"iat":       issuedAt.Unix(),
		"exp":       expiresAt.Unix(),
		"auth_time": issuedAt.Unix(),
		"jti":       fmt.Sprintf("%d", seq),
		"firebase":  map[string]any{"sign_in_provider": "password"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return token
}
