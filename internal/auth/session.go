package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRetention is how long an unused provider session is kept.
const DefaultRetention = 30 * 24 * time.Hour

type registryEntry struct {
	auth     *Auth
	lastUsed atomic.Int64 // unix nano
}

// Registry keeps one provider session per device.
type Registry struct {
	backend  Backend
	sessions sync.Map // map[deviceID]*registryEntry
	now      func() time.Time
}

// NewRegistry creates a registry whose sessions talk to backend.
func NewRegistry(backend Backend) *Registry {
	return &Registry{backend: backend, now: time.Now}
}

// Session returns the device's provider session, creating it on first use.
func (r *Registry) Session(deviceID string) *Auth {
	val, ok := r.sessions.Load(deviceID)
	if !ok {
		val, _ = r.sessions.LoadOrStore(deviceID, &registryEntry{auth: NewAuth(r.backend)})
	}
	e := val.(*registryEntry)
	e.lastUsed.Store(r.now().UnixNano())
	return e.auth
}

// Forget removes the device's provider session if it has no signed-in user.
func (r *Registry) Forget(deviceID string) bool {
	val, ok := r.sessions.Load(deviceID)
	if !ok {
		return false
	}
	if val.(*registryEntry).auth.CurrentUser() != nil {
		return false
	}
	r.sessions.Delete(deviceID)
	return true
}

// Prune signs out and removes sessions unused for longer than retention.
// Devices for which inUse reports true are kept.
func (r *Registry) Prune(ctx context.Context, retention time.Duration, inUse func(deviceID string) bool) int {
	cutoff := r.now().Add(-retention).UnixNano()
	removed := 0
	r.sessions.Range(func(key, value any) bool {
		id, e := key.(string), value.(*registryEntry)
		if e.lastUsed.Load() > cutoff || (inUse != nil && inUse(id)) {
			return true
		}
		if r.sessions.CompareAndDelete(key, value) {
			_ = e.auth.Logout(ctx)
			removed++
		}
		return true
	})
	return removed
}

// Run prunes every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, retention time.Duration, inUse func(deviceID string) bool) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Prune(ctx, retention, inUse)
		}
	}
}

// Len counts the devices with a provider session.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
