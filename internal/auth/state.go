package auth

import (
	"context"
	"sync"
	"time"
)

// StateStore manages CSRF state parameters and PKCE verifiers (simple in-memory)
type StateStore struct {
	states sync.Map // map[state]StateData
	now    func() time.Time
}

// NewStateStore creates a new state store
func NewStateStore() *StateStore {
	return &StateStore{now: time.Now}
}

// SaveWithVerifier stores a state bound to deviceID with expiry, code verifier (for PKCE), and return URL
func (s *StateStore) SaveWithVerifier(state string, duration time.Duration, deviceID, codeVerifier, returnTo string) {
	s.states.Store(state, StateData{
		Expiry:       s.now().Add(duration),
		CodeVerifier: codeVerifier,
		ReturnTo:     returnTo,
		DeviceID:     deviceID,
	})
}

// VerifyAndGetVerifier checks and consumes a state, returning the code verifier and return URL.
// A state presented by another device is rejected.
func (s *StateStore) VerifyAndGetVerifier(state, deviceID string) (string, string, bool) {
	val, ok := s.states.LoadAndDelete(state) // One-time use
	if !ok {
		return "", "", false
	}

	data := val.(StateData)
	if s.now().After(data.Expiry) {
		return "", "", false
	}
	if data.DeviceID == "" || data.DeviceID != deviceID {
		return "", "", false
	}
	return data.CodeVerifier, data.ReturnTo, true
}

// Run removes expired states every interval until ctx is done.
func (s *StateStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *StateStore) sweep() int {
	now := s.now()
	removed := 0
	s.states.Range(func(key, value any) bool {
		data := value.(StateData)
		if now.After(data.Expiry) {
			s.states.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
