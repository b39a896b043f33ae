package biz

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/autherr"
	"closet-web/internal/telemetry"
)

const (
	DefaultCookieTTL    = time.Hour
	DefaultExpiryBuffer = 5 * time.Minute
)

// Snapshot 本地缓存与 owner cookie 中保存的用户信息
type Snapshot struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	PhotoURL      string `json:"photoURL"`
	EmailVerified bool   `json:"emailVerified"`
	// LastLogin 毫秒时间戳
	LastLogin int64 `json:"lastLogin"`
}

// NewSnapshot builds the persisted identity of u at now.
func NewSnapshot(u *auth.User, now time.Time) *Snapshot {
	return &Snapshot{
		UID:           u.UID,
		Email:         u.Email,
		Name:          displayName(u.DisplayName, u.Email),
		PhotoURL:      u.PhotoURL,
		EmailVerified: u.EmailVerified,
		LastLogin:     now.UnixMilli(),
	}
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	if local, _, _ := strings.Cut(email, "@"); local != "" {
		return local
	}
	return "User"
}

// StoreConfig 会话存储配置
type StoreConfig struct {
	CookieTTL time.Duration
	// ClampToToken shortens cookie lifetimes to the token's own expiry.
	ClampToToken    bool
	ExpiryBuffer    time.Duration
	RefreshInterval time.Duration
}

// SessionStore keeps the local cache and the cookie mirror of one device in
// step with its provider session.
type SessionStore struct {
	provider  IdentityProvider
	cache     LocalCache
	jar       CookieJar
	refresher *TokenRefresher
	cfg       StoreConfig
	log       *telemetry.Logger
	now       func() time.Time
}

func NewSessionStore(provider IdentityProvider, cache LocalCache, jar CookieJar, cfg StoreConfig, log *telemetry.Logger) *SessionStore {
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = DefaultCookieTTL
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = DefaultExpiryBuffer
	}
	s := &SessionStore{
		provider: provider,
		cache:    cache,
		jar:      jar,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	s.refresher = NewTokenRefresher(cfg.RefreshInterval, s.refreshTick, log)
	return s
}

func (s *SessionStore) Provider() IdentityProvider { return s.provider }

func (s *SessionStore) Refresher() *TokenRefresher { return s.refresher }

// Store persists u to both surfaces and starts the refresher. On error the
// identity must be treated as not persisted.
func (s *SessionStore) Store(ctx context.Context, u *auth.User) (*Snapshot, error) {
	snap, err := s.store(ctx, u)
	if err != nil {
		s.log.Error(ctx, "Failed to store user data", err)
		return nil, autherr.Wrap(autherr.CodePersistFailed, err)
	}
	s.refresher.Start()
	s.log.AuthEvent(ctx, "user_data_stored", u.UID)
	return snap, nil
}

func (s *SessionStore) store(ctx context.Context, u *auth.User) (*Snapshot, error) {
	if u == nil {
		return nil, ErrNoUser
	}
	res, err := u.GetIDTokenResult(ctx, false)
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot(u, s.now())
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, OwnerCacheKey, string(data)); err != nil {
		return nil, err
	}

	ttl := s.cookieTTL(res.ExpirationTime)
	if err := s.jar.Set(ctx, auth.AuthTokenCookieName, res.Token, ttl); err != nil {
		return nil, err
	}
	if err := s.jar.Set(ctx, auth.OwnerCookieName, EncodeURIComponent(string(data)), ttl); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetStored returns the cached snapshot, or nil when it is absent or unreadable.
func (s *SessionStore) GetStored(ctx context.Context) *Snapshot {
	raw, ok, err := s.cache.Get(ctx, OwnerCacheKey)
	if err != nil {
		s.log.Error(ctx, "Failed to read stored user data", err)
		return nil
	}
	if !ok {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.log.Error(ctx, "Failed to parse stored user data", err)
		return nil
	}
	return &snap
}

// ValidateStored reports whether stored belongs to the live provider user.
func (s *SessionStore) ValidateStored(stored *Snapshot) bool {
	u := s.provider.CurrentUser()
	if u == nil || stored == nil {
		return false
	}
	return stored.UID == u.UID
}

// Clear removes the snapshot, expires both cookies and stops the refresher.
// Safe to call any number of times.
func (s *SessionStore) Clear(ctx context.Context) error {
	err := errors.Join(
		s.cache.Remove(ctx, OwnerCacheKey),
		s.jar.Remove(ctx, auth.AuthTokenCookieName),
		s.jar.Remove(ctx, auth.OwnerCookieName),
	)
	s.refresher.Stop()
	if err != nil {
		s.log.Error(ctx, "Failed to clear auth data", err)
		return err
	}
	s.log.Info(ctx, "Auth data cleared")
	return nil
}

// GetAuthToken returns a bearer token for the live user, refreshing it when it
// expires within the buffer. No user yields "" and no error.
func (s *SessionStore) GetAuthToken(ctx context.Context, forceRefresh bool) (string, error) {
	res, err := s.authToken(ctx, forceRefresh)
	if err != nil || res == nil {
		return "", err
	}
	return res.Token, nil
}

func (s *SessionStore) authToken(ctx context.Context, forceRefresh bool) (*auth.IDTokenResult, error) {
	u := s.provider.CurrentUser()
	if u == nil {
		s.log.Warn(ctx, "No authenticated user found")
		return nil, nil
	}

	res, err := u.GetIDTokenResult(ctx, forceRefresh)
	if err != nil {
		s.log.Error(ctx, "Failed to get auth token", err)
		return nil, err
	}
	if res.ExpirationTime.Sub(s.now()) < s.cfg.ExpiryBuffer {
		s.log.Info(ctx, "Token expiring soon, forcing refresh")
		if res, err = u.GetIDTokenResult(ctx, true); err != nil {
			s.log.Error(ctx, "Failed to get auth token", err)
			return nil, err
		}
	}
	return res, nil
}

// SyncAuthCookie derives the bearer token from its own expiry and rewrites the
// authToken cookie when the mirrored value is no longer current. It reports
// whether the cookie was rewritten.
func (s *SessionStore) SyncAuthCookie(ctx context.Context) (bool, error) {
	res, err := s.authToken(ctx, false)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, ErrNoUser
	}
	if cookie, ok := s.TokenFromCookie(ctx); ok && s.VerifyToken(ctx, cookie) {
		return false, nil
	}
	if err := s.UpdateAuthCookie(ctx, res.Token, res.ExpirationTime); err != nil {
		return false, err
	}
	s.log.Info(ctx, "Auth cookie updated")
	return true, nil
}

// UpdateAuthCookie rewrites the authToken cookie. A zero expiresAt skips clamping.
func (s *SessionStore) UpdateAuthCookie(ctx context.Context, token string, expiresAt time.Time) error {
	return s.jar.Set(ctx, auth.AuthTokenCookieName, token, s.cookieTTL(expiresAt))
}

// TokenFromCookie reads the mirrored authToken cookie.
func (s *SessionStore) TokenFromCookie(ctx context.Context) (string, bool) {
	token, ok, err := s.jar.Get(ctx, auth.AuthTokenCookieName)
	if err != nil || !ok || token == "" {
		return "", false
	}
	return token, true
}

// VerifyToken reports whether token is the live user's current token.
func (s *SessionStore) VerifyToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	u := s.provider.CurrentUser()
	if u == nil {
		return false
	}
	current, err := u.GetIDToken(ctx, false)
	if err != nil {
		return false
	}
	return current == token
}

func (s *SessionStore) refreshTick(ctx context.Context) error {
	u := s.provider.CurrentUser()
	if u == nil {
		return nil
	}
	res, err := u.GetIDTokenResult(ctx, true)
	s.log.Metrics().ObserveRefresh(err == nil)
	if err != nil {
		return err
	}
	return s.UpdateAuthCookie(ctx, res.Token, res.ExpirationTime)
}

func (s *SessionStore) cookieTTL(expiresAt time.Time) time.Duration {
	ttl := s.cfg.CookieTTL
	if s.cfg.ClampToToken && !expiresAt.IsZero() {
		if remaining := expiresAt.Sub(s.now()); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

var uriComponentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent escapes s the way browsers encode cookie values.
func EncodeURIComponent(s string) string {
	return uriComponentUnescaper.Replace(url.QueryEscape(s))
}
