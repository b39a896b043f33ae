package biz

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/auth/authtest"
	"closet-web/internal/telemetry"
)

var errDisk = errors.New("disk full")

type memCache struct {
	mu      sync.Mutex
	entries map[string]string
	failSet error
}

func newMemCache() *memCache { return &memCache{entries: make(map[string]string)} }

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet != nil {
		return c.failSet
	}
	c.entries[key] = value
	return nil
}

func (c *memCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) has(key string) bool {
	_, ok, _ := c.Get(context.Background(), key)
	return ok
}

type jarEntry struct {
	value string
	ttl   time.Duration
}

type memJar struct {
	mu      sync.Mutex
	entries map[string]jarEntry
}

func newMemJar() *memJar { return &memJar{entries: make(map[string]jarEntry)} }

func (j *memJar) Get(_ context.Context, name string) (string, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[name]
	return e.value, ok, nil
}

func (j *memJar) Set(_ context.Context, name, value string, ttl time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ttl <= 0 {
		delete(j.entries, name)
		return nil
	}
	j.entries[name] = jarEntry{value: value, ttl: ttl}
	return nil
}

func (j *memJar) Remove(_ context.Context, name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, name)
	return nil
}

func (j *memJar) entry(name string) (jarEntry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[name]
	return e, ok
}

// testEnv wires a SessionManager to in-memory surfaces and a fake backend.
type testEnv struct {
	backend  *authtest.Backend
	registry *auth.Registry
	manager  *SessionManager
	log      *telemetry.Logger

	mu      sync.Mutex
	caches  map[string]*memCache
	jars    map[string]*memJar
	forgets []string
}

func newTestEnv(t *testing.T, cfg ManagerConfig) *testEnv {
	t.Helper()
	b := authtest.NewBackend()
	b.AddAccount("ada@example.com", "Secret123", auth.Profile{UID: "u-ada", DisplayName: "Ada Lovelace"})
	b.AddAccount("bob@example.com", "Secret123", auth.Profile{UID: "u-bob"})
	b.AddGoogleAccount("google-token", auth.Profile{UID: "u-goo", Email: "goo@example.com", DisplayName: "Goo"})

	env := &testEnv{
		backend:  b,
		registry: auth.NewRegistry(b),
		log:      telemetry.Discard(),
		caches:   make(map[string]*memCache),
		jars:     make(map[string]*memJar),
	}
	env.manager = NewSessionManager(ManagerDeps{
		Providers: func(id string) IdentityProvider { return env.registry.Session(id) },
		Caches:    func(id string) LocalCache { return env.cache(id) },
		Jars:      func(id string) CookieJar { return env.jar(id) },
		Forget: func(id string) bool {
			env.mu.Lock()
			env.forgets = append(env.forgets, id)
			env.mu.Unlock()
			return env.registry.Forget(id)
		},
	}, cfg, env.log)
	t.Cleanup(env.manager.Close)
	return env
}

func (e *testEnv) cache(id string) *memCache {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.caches[id]
	if !ok {
		c = newMemCache()
		e.caches[id] = c
	}
	return c
}

func (e *testEnv) jar(id string) *memJar {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jars[id]
	if !ok {
		j = newMemJar()
		e.jars[id] = j
	}
	return j
}

func (e *testEnv) provider(id string) *auth.Auth { return e.registry.Session(id) }

func (e *testEnv) signIn(t *testing.T, id, email string) *auth.User {
	t.Helper()
	u, err := e.provider(id).SignIn(context.Background(), email, "Secret123")
	if err != nil {
		t.Fatalf("sign in %s: %v", email, err)
	}
	return u
}

// fakeNet is a scriptable connectivity monitor.
type fakeNet struct {
	mu      sync.Mutex
	online  bool
	waitErr error
	waits   int
}

func (n *fakeNet) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *fakeNet) WaitForNetwork(context.Context, time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.waits++
	if n.waitErr == nil {
		n.online = true
	}
	return n.waitErr
}

// decodeOwnerCookie parses an owner cookie value back into a snapshot.
func decodeOwnerCookie(value string) (*Snapshot, error) {
	raw, err := url.PathUnescape(value)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
