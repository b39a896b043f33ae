package biz

import (
	"context"
	"sync"
	"time"

	"closet-web/internal/telemetry"
)

const (
	DefaultIdleTimeout   = 60 * time.Minute
	DefaultSweepInterval = time.Minute
)

// ManagerDeps 设备维度的依赖工厂
type ManagerDeps struct {
	Providers func(deviceID string) IdentityProvider
	Caches    func(deviceID string) LocalCache
	Jars      func(deviceID string) CookieJar
	// Forget drops the provider session of a device with no signed-in user. Optional.
	Forget func(deviceID string) bool
}

type ManagerConfig struct {
	Store         StoreConfig
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

type deviceSession struct {
	store    *SessionStore
	lastSeen time.Time
	timedOut bool
}

// SessionManager owns one SessionStore per device and logs idle devices out.
type SessionManager struct {
	deps ManagerDeps
	cfg  ManagerConfig
	log  *telemetry.Logger
	now  func() time.Time

	mu      sync.Mutex
	devices map[string]*deviceSession
}

func NewSessionManager(deps ManagerDeps, cfg ManagerConfig, log *telemetry.Logger) *SessionManager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &SessionManager{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		devices: make(map[string]*deviceSession),
	}
}

// For returns the store of deviceID and marks the device active.
func (m *SessionManager) For(deviceID string) *SessionStore {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		store := NewSessionStore(
			m.deps.Providers(deviceID),
			m.deps.Caches(deviceID),
			m.deps.Jars(deviceID),
			m.cfg.Store,
			m.log.With("device_id", deviceID),
		)
		d = &deviceSession{store: store}
		m.devices[deviceID] = d
	}
	d.lastSeen = m.now()
	return d.store
}

// Touch marks a tracked device active. Unknown devices are ignored.
func (m *SessionManager) Touch(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[deviceID]; ok {
		d.lastSeen = m.now()
	}
}

// TakeTimeout reports, once, that deviceID was logged out for inactivity.
func (m *SessionManager) TakeTimeout(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok || !d.timedOut {
		return false
	}
	d.timedOut = false
	return true
}

// Tracked reports whether deviceID has a live store.
func (m *SessionManager) Tracked(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.devices[deviceID]
	return ok
}

// Len is the number of tracked devices.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// Sweep clears devices idle past the timeout and returns how many were logged out.
// A cleared device keeps its timeout flag for one more idle period, then is dropped.
func (m *SessionManager) Sweep(ctx context.Context) int {
	now := m.now()

	type idle struct {
		id string
		d  *deviceSession
	}
	var candidates []idle
	m.mu.Lock()
	for id, d := range m.devices {
		if now.Sub(d.lastSeen) >= m.cfg.IdleTimeout {
			candidates = append(candidates, idle{id, d})
		}
	}
	m.mu.Unlock()

	loggedOut := 0
	for _, c := range candidates {
		store := c.d.store

		m.mu.Lock()
		alreadyTimedOut := c.d.timedOut
		m.mu.Unlock()

		if !alreadyTimedOut && hasSession(ctx, store) {
			store.log.Warn(ctx, "Session timeout - logging out user")
			_ = store.Clear(ctx)
			loggedOut++

			m.mu.Lock()
			if m.devices[c.id] == c.d && now.Sub(c.d.lastSeen) >= m.cfg.IdleTimeout {
				c.d.timedOut = true
				c.d.lastSeen = now
			}
			m.mu.Unlock()
			continue
		}

		m.mu.Lock()
		// the device may have come back while we were looking
		if m.devices[c.id] == c.d && now.Sub(c.d.lastSeen) >= m.cfg.IdleTimeout {
			delete(m.devices, c.id)
			m.mu.Unlock()
			store.refresher.Stop()
			if m.deps.Forget != nil {
				m.deps.Forget(c.id)
			}
			continue
		}
		m.mu.Unlock()
	}
	return loggedOut
}

func hasSession(ctx context.Context, s *SessionStore) bool {
	if s.provider.CurrentUser() != nil || s.refresher.Running() {
		return true
	}
	_, ok := s.TokenFromCookie(ctx)
	return ok || s.GetStored(ctx) != nil
}

// Run sweeps on the configured interval until ctx is done.
func (m *SessionManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.log.Info(ctx, "Idle sessions cleared", "count", n)
			}
		}
	}
}

// Close stops every refresher.
func (m *SessionManager) Close() {
	m.mu.Lock()
	stores := make([]*SessionStore, 0, len(m.devices))
	for _, d := range m.devices {
		stores = append(stores, d.store)
	}
	m.mu.Unlock()

	for _, s := range stores {
		s.refresher.Stop()
	}
}
