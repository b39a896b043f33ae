package auth

import (
	"context"
	"time"
)

// ProviderGoogle is the federated provider id used with SignInWithIdp.
const ProviderGoogle = "google.com"

// Profile is the account data returned with every credential.
type Profile struct {
	UID           string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	LastLoginAt   time.Time
}

// Credential is a signed-in account plus its token pair.
type Credential struct {
	Profile
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Backend is the remote identity service.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Credential, error)
	SignUp(ctx context.Context, email, password string) (*Credential, error)
	SignInWithIdp(ctx context.Context, providerID, idToken string) (*Credential, error)
	// RefreshIDToken exchanges a refresh token for a new ID token. Profile may be partial.
	RefreshIDToken(ctx context.Context, refreshToken string) (*Credential, error)
}

// IDTokenResult is an ID token with its decoded metadata.
type IDTokenResult struct {
	Token          string
	ExpirationTime time.Time
	IssuedAtTime   time.Time
	AuthTime       time.Time
	SignInProvider string
	Claims         map[string]any
}

// UserInfo represents Google OIDC user claims
type UserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// StateData stores state-related data
type StateData struct {
	Expiry       time.Time
	CodeVerifier string // For PKCE
	ReturnTo     string // URL to redirect to after successful authentication
	DeviceID     string // device that started the flow
}
