package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenRefreshSkew makes a cached token count as expired slightly early.
const tokenRefreshSkew = 30 * time.Second

// ErrNoRefreshToken is returned when a user has nothing to refresh with.
var ErrNoRefreshToken = errors.New("auth: user has no refresh token")

// User is a live provider session for one account.
type User struct {
	Profile

	backend Backend
	now     func() time.Time

	mu           sync.Mutex
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

func newUser(backend Backend, cred *Credential, now func() time.Time) *User {
	return &User{
		Profile:      cred.Profile,
		backend:      backend,
		now:          now,
		idToken:      cred.IDToken,
		refreshToken: cred.RefreshToken,
		expiresAt:    cred.ExpiresAt,
	}
}

// GetIDToken returns the cached ID token, refreshing it when forceRefresh is
// set or the cached one is about to expire. Concurrent refreshes for the same
// user are serialized.
func (u *User) GetIDToken(ctx context.Context, forceRefresh bool) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !forceRefresh && u.idToken != "" && u.now().Add(tokenRefreshSkew).Before(u.expiresAt) {
		return u.idToken, nil
	}
	if u.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	cred, err := u.backend.RefreshIDToken(ctx, u.refreshToken)
	if err != nil {
		return "", err
	}
	u.idToken = cred.IDToken
	if cred.RefreshToken != "" {
		u.refreshToken = cred.RefreshToken
	}
	u.expiresAt = cred.ExpiresAt
	return u.idToken, nil
}

// GetIDTokenResult is GetIDToken plus the token's decoded metadata.
// Tokens that are not JWTs fall back to the expiry reported with the credential.
func (u *User) GetIDTokenResult(ctx context.Context, forceRefresh bool) (*IDTokenResult, error) {
	token, err := u.GetIDToken(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	res := &IDTokenResult{Token: token, ExpirationTime: u.expiresAt}
	u.mu.Unlock()

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return res, nil
	}
	res.Claims = claims
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		res.ExpirationTime = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		res.IssuedAtTime = iat.Time
	}
	if at, ok := claims["auth_time"].(float64); ok {
		res.AuthTime = time.Unix(int64(at), 0)
	}
	if fb, ok := claims["firebase"].(map[string]any); ok {
		res.SignInProvider, _ = fb["sign_in_provider"].(string)
	}
	return res, nil
}
