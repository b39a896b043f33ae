package auth

import (
	"context"
	"sync"
	"time"
)

// Auth is the provider session of one device: at most one current user and
// the observers of its changes.
type Auth struct {
	backend Backend
	now     func() time.Time

	// notifyMu orders deliveries so observers never see states out of order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   *User
	listeners map[uint64]func(*User)
	nextID    uint64
}

func NewAuth(backend Backend) *Auth {
	return &Auth{
		backend:   backend,
		now:       time.Now,
		listeners: make(map[uint64]func(*User)),
	}
}

// SignIn authenticates with email and password and makes the account current.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*User, error) {
	cred, err := a.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return a.adopt(cred), nil
}

// SignUp creates the account and makes it current.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*User, error) {
	cred, err := a.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return a.adopt(cred), nil
}

// SignInWithGoogle exchanges a verified Google ID token for a provider session.
func (a *Auth) SignInWithGoogle(ctx context.Context, googleIDToken string) (*User, error) {
	cred, err := a.backend.SignInWithIdp(ctx, ProviderGoogle, googleIDToken)
	if err != nil {
		return nil, err
	}
	return a.adopt(cred), nil
}

// Logout drops the current user. It never fails; the error is part of the
// provider contract.
func (a *Auth) Logout(context.Context) error {
	a.setCurrent(nil)
	return nil
}

func (a *Auth) CurrentUser() *User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// OnAuthStateChanged calls cb with the current user right away and again on
// every sign-in or sign-out. Observers must not block or change auth state.
func (a *Auth) OnAuthStateChanged(cb func(*User)) (unsubscribe func()) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = cb
	current := a.current
	a.mu.Unlock()

	cb(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// Observers reports how many subscriptions are live.
func (a *Auth) Observers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

func (a *Auth) adopt(cred *Credential) *User {
	u := newUser(a.backend, cred, a.now)
	a.setCurrent(u)
	return u
}

func (a *Auth) setCurrent(u *User) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.current = u
	cbs := make([]func(*User), 0, len(a.listeners))
	for _, cb := range a.listeners {
		cbs = append(cbs, cb)
	}
	a.mu.Unlock()

	for _, cb := range cbs {
		cb(u)
	}
}
