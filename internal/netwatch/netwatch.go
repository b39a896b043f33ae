// Package netwatch tracks whether the identity service is reachable.
package netwatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"closet-web/internal/telemetry"
)

// ErrNetworkTimeout is returned by WaitForNetwork when connectivity does not come back in time.
var ErrNetworkTimeout = errors.New("network connection timeout")

type Config struct {
	ProbeURL string
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor probes ProbeURL on an interval. Any HTTP response counts as online;
// only transport failures count as offline. It starts out online.
type Monitor struct {
	cfg    Config
	client *http.Client
	log    *telemetry.Logger

	mu        sync.Mutex
	online    bool
	listeners map[uint64]func(bool)
	nextID    uint64
}

func New(cfg Config, client *http.Client, log *telemetry.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Monitor{
		cfg:       cfg,
		client:    client,
		log:       log,
		online:    true,
		listeners: make(map[uint64]func(bool)),
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for online/offline transitions.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Run probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if m.cfg.ProbeURL == "" {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe checks reachability once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	online := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err == nil {
		var resp *http.Response
		resp, err = m.client.Do(req)
		if err == nil {
			resp.Body.Close()
			online = true
		}
	}
	if !online && ctx.Err() != nil && errors.Is(context.Cause(ctx), context.Canceled) {
		// shutting down, keep the last known state
		return m.Online()
	}
	m.set(ctx, online, err)
	return online
}

func (m *Monitor) set(ctx context.Context, online bool, cause error) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if online {
		m.log.Info(ctx, "Network connectivity restored")
	} else {
		m.log.Warn(ctx, "Network connectivity lost", "probe_url", m.cfg.ProbeURL, "error", errString(cause))
	}
	for _, fn := range fns {
		fn(online)
	}
}

// WaitForNetwork returns nil once online, or ErrNetworkTimeout after timeout.
func (m *Monitor) WaitForNetwork(ctx context.Context, timeout time.Duration) error {
	back := make(chan struct{}, 1)
	unsubscribe := m.Subscribe(func(online bool) {
		if online {
			select {
			case back <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if m.Online() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-back:
		return nil
	case <-timer.C:
		return ErrNetworkTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
