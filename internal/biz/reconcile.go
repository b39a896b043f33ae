package biz

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/autherr"
	"closet-web/internal/telemetry"
)

// ErrAuthStateTimeout is returned when the provider does not report an auth state in time.
var ErrAuthStateTimeout = errors.New("timed out waiting for auth state")

const (
	DefaultLandingWait   = 10 * time.Second
	DefaultAuthStateWait = 5 * time.Second
)

// NetworkWaiter is the connectivity monitor as seen by the landing flow.
type NetworkWaiter interface {
	Connectivity
	WaitForNetwork(ctx context.Context, timeout time.Duration) error
}

type ReconcileConfig struct {
	LandingWait   time.Duration
	AuthStateWait time.Duration
}

// WardrobeView is the outcome of mounting the wardrobe: an owner or a redirect.
type WardrobeView struct {
	Owner    *Snapshot
	Redirect string
}

// Reconciler brings the persisted mirror of a device back in line with its
// provider session when a page is entered or left.
type Reconciler struct {
	sessions *SessionManager
	net      NetworkWaiter
	cfg      ReconcileConfig
	log      *telemetry.Logger
}

func NewReconciler(sessions *SessionManager, net NetworkWaiter, cfg ReconcileConfig, log *telemetry.Logger) *Reconciler {
	if cfg.LandingWait <= 0 {
		cfg.LandingWait = DefaultLandingWait
	}
	if cfg.AuthStateWait <= 0 {
		cfg.AuthStateWait = DefaultAuthStateWait
	}
	return &Reconciler{sessions: sessions, net: net, cfg: cfg, log: log}
}

// Landing decides where the splash page sends the device.
func (r *Reconciler) Landing(ctx context.Context, deviceID string) string {
	store := r.sessions.For(deviceID)

	if r.net != nil && !r.net.Online() {
		if err := r.net.WaitForNetwork(ctx, r.cfg.LandingWait); err != nil {
			r.log.Warn(ctx, "Landing without network", "error", err.Error())
			return auth.SignInPath
		}
	}

	u, err := firstAuthState(ctx, store.provider, r.cfg.AuthStateWait)
	if err != nil {
		r.log.Error(ctx, "Auth error", err)
		return auth.SignInPath
	}
	if u == nil {
		return auth.SignInPath
	}
	if _, err := store.Store(ctx, u); err != nil {
		return auth.SignInPath
	}
	return auth.WardrobePath
}

// Wardrobe checks the stored identity against the provider before the
// wardrobe is shown. Every failure path clears the mirror.
func (r *Reconciler) Wardrobe(ctx context.Context, deviceID string) WardrobeView {
	store := r.sessions.For(deviceID)
	leave := func() WardrobeView {
		_ = store.Clear(ctx)
		if r.sessions.TakeTimeout(deviceID) {
			return WardrobeView{Redirect: auth.SignInPath + "?reason=timeout"}
		}
		return WardrobeView{Redirect: auth.SignInPath}
	}

	stored := store.GetStored(ctx)
	_, hasToken := store.TokenFromCookie(ctx)
	if stored == nil || !hasToken {
		r.log.Warn(ctx, "No stored auth found", "hasOwner", stored != nil, "hasToken", hasToken)
		return leave()
	}

	u, err := firstAuthState(ctx, store.provider, r.cfg.AuthStateWait)
	if err != nil {
		r.log.Error(ctx, "Failed to initialize auth", err)
		return leave()
	}
	if u == nil {
		r.log.Warn(ctx, "No authenticated user")
		return leave()
	}

	owner := stored
	if !store.ValidateStored(stored) {
		r.log.Warn(ctx, "UID mismatch - refreshing user data")
		if _, err := store.Store(ctx, u); err != nil {
			r.log.Error(ctx, "Error loading user data", err)
			autherr.Classify(ctx, r.log, err, "context", "wardrobe_init")
			return leave()
		}
		if owner = store.GetStored(ctx); owner == nil {
			return leave()
		}
	}

	if _, err := store.SyncAuthCookie(ctx); err != nil {
		r.log.Error(ctx, "Failed to get auth token", err)
		return leave()
	}

	store.refresher.Start()
	r.log.AuthEvent(ctx, "wardrobe_loaded", u.UID)
	return WardrobeView{Owner: owner}
}

// Logout signs the device out. The mirror is cleared even when the provider fails.
func (r *Reconciler) Logout(ctx context.Context, deviceID string) string {
	store := r.sessions.For(deviceID)

	uid := ""
	if stored := store.GetStored(ctx); stored != nil {
		uid = stored.UID
	}
	r.log.AuthEvent(ctx, "logout_attempt", uid)

	if err := store.provider.Logout(ctx); err != nil {
		r.log.Error(ctx, "Logout error", err)
		_ = store.Clear(ctx)
		return auth.SignInPath
	}
	_ = store.Clear(ctx)
	r.log.AuthEvent(ctx, "logout_success", "")
	return auth.SignInPath
}

// firstAuthState waits for the first auth state the provider reports.
// Deliveries after return are ignored.
func firstAuthState(ctx context.Context, p IdentityProvider, timeout time.Duration) (*auth.User, error) {
	var interested atomic.Bool
	interested.Store(true)
	states := make(chan *auth.User, 1)

	unsubscribe := p.OnAuthStateChanged(func(u *auth.User) {
		if !interested.Load() {
			return
		}
		select {
		case states <- u:
		default:
		}
	})
	defer func() {
		interested.Store(false)
		unsubscribe()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case u := <-states:
		return u, nil
	case <-timer.C:
		return nil, ErrAuthStateTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
