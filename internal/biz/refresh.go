package biz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"closet-web/internal/telemetry"
)

// DefaultRefreshInterval keeps refreshes inside the provider's 60 minute token lifetime.
const DefaultRefreshInterval = 50 * time.Minute

// TokenRefresher runs at most one refresh loop at a time. Start always
// cancels the previous loop before installing a new one. A failed tick
// stops the loop; the user has to sign in again through the normal flow.
type TokenRefresher struct {
	interval time.Duration
	tick     func(ctx context.Context) error
	log      *telemetry.Logger

	// startMu serializes Start and Stop so they never interleave.
	startMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	active atomic.Int32
}

func NewTokenRefresher(interval time.Duration, tick func(ctx context.Context) error, log *telemetry.Logger) *TokenRefresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &TokenRefresher{interval: interval, tick: tick, log: log}
}

// Start cancels any running loop and starts a new one.
func (r *TokenRefresher) Start() {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.stopLocked(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	r.active.Add(1)
	go r.loop(ctx, gen, done)
	r.log.Info(ctx, "Token refresh started", "interval", r.interval.String())
}

// Stop cancels the running loop, if any, and waits for it to exit. Idempotent.
func (r *TokenRefresher) Stop() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	r.stopLocked(true)
}

// Running reports whether a loop is installed.
func (r *TokenRefresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Active is the number of loop goroutines still alive.
func (r *TokenRefresher) Active() int {
	return int(r.active.Load())
}

func (r *TokenRefresher) stopLocked(logStop bool) {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if logStop {
		r.log.Info(context.Background(), "Token refresh stopped")
	}
}

func (r *TokenRefresher) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	defer r.active.Add(-1)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := r.tick(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.log.Error(ctx, "Auto token refresh failed", err)
			r.release(gen)
			return
		}
		r.log.Info(ctx, "Token refreshed automatically")
	}
}

// release drops the handle from inside the loop. Stop would wait on itself.
func (r *TokenRefresher) release(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen || r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel, r.done = nil, nil
	r.log.Info(context.Background(), "Token refresh stopped")
}
