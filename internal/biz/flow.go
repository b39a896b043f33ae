package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/autherr"
	"closet-web/internal/retry"
	"closet-web/internal/telemetry"
	"closet-web/internal/validate"

	"golang.org/x/sync/singleflight"
)

// OfflineMessage is shown when a submission is attempted without connectivity.
const OfflineMessage = "No internet connection. Please check your network and try again."

type Mode string

const (
	ModeSignIn   Mode = "sign-in"
	ModeRegister Mode = "register"
)

// FlowState 表单提交状态机
type FlowState string

const (
	StateIdle       FlowState = "idle"
	StateValidating FlowState = "validating"
	StateSubmitting FlowState = "submitting"
	StateSucceeded  FlowState = "succeeded"
	StateFailed     FlowState = "failed"
)

// Form is the auth screen model.
type Form struct {
	Mode             Mode              `json:"mode"`
	ShowEmailForm    bool              `json:"showEmailForm"`
	Email            string            `json:"email"`
	Password         string            `json:"-"`
	Name             string            `json:"name"`
	Error            string            `json:"error,omitempty"`
	ErrorCode        string            `json:"errorCode,omitempty"`
	FieldErrors      map[string]string `json:"fieldErrors,omitempty"`
	Loading          bool              `json:"loading"`
	Offline          bool              `json:"offline"`
	PasswordStrength int               `json:"passwordStrength"`
	State            FlowState         `json:"state"`
	Redirect         string            `json:"redirect,omitempty"`
}

func NewForm() Form {
	return Form{Mode: ModeSignIn, State: StateIdle}
}

func (f Form) IsSignIn() bool { return f.Mode != ModeRegister }

// ToggleMode switches between sign-in and register and resets everything the
// user typed. Offline status is kept.
func ToggleMode(f Form) Form {
	next := NewForm()
	if f.IsSignIn() {
		next.Mode = ModeRegister
	}
	next.Offline = f.Offline
	return next
}

type FlowConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// AuthFlow runs the password and Google sign-in flows for a device. Both end
// in the same persist-and-redirect step.
type AuthFlow struct {
	sessions *SessionManager
	net      Connectivity
	cfg      FlowConfig
	log      *telemetry.Logger

	group singleflight.Group

	mu      sync.Mutex
	pending map[string]int
}

func NewAuthFlow(sessions *SessionManager, net Connectivity, cfg FlowConfig, log *telemetry.Logger) *AuthFlow {
	if net == nil {
		net = AlwaysOnline{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &AuthFlow{
		sessions: sessions,
		net:      net,
		cfg:      cfg,
		log:      log,
		pending:  make(map[string]int),
	}
}

// Screen returns the initial auth screen for deviceID.
func (f *AuthFlow) Screen(deviceID string) Form {
	form := NewForm()
	form.Offline = !f.net.Online()
	form.Loading = f.Loading(deviceID)
	return form
}

// Loading reports whether a submission for deviceID is in progress.
func (f *AuthFlow) Loading(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[deviceID] > 0
}

func (f *AuthFlow) begin(deviceID string) func() {
	f.mu.Lock()
	f.pending[deviceID]++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.pending[deviceID]--; f.pending[deviceID] <= 0 {
			delete(f.pending, deviceID)
		}
	}
}

// SubmitEmail validates form and signs in or registers with email and password.
func (f *AuthFlow) SubmitEmail(ctx context.Context, deviceID string, form Form) Form {
	form.Error = ""
	form.ErrorCode = ""
	form.FieldErrors = nil
	form.Redirect = ""
	form.Offline = !f.net.Online()
	if form.Offline {
		form.ErrorCode = autherr.CodeNetworkRequestFailed
		return failed(form, OfflineMessage)
	}

	form.State = StateValidating
	if res := validate.Email(form.Email); !res.Valid {
		return fieldFailed(form, "email", res.Error)
	}

	opts := validate.DefaultPasswordOptions()
	if form.IsSignIn() {
		opts.MinLength = 6
		opts.RequireUppercase = false
		opts.RequireNumber = false
	}
	pw := validate.Password(form.Password, opts)
	form.PasswordStrength = pw.Strength
	if !pw.Valid {
		return fieldFailed(form, "password", pw.Error)
	}

	if !form.IsSignIn() {
		if res := validate.Name(form.Name); !res.Valid {
			return fieldFailed(form, "name", res.Error)
		}
	}

	method, event := "email_signin", "email_signin"
	if !form.IsSignIn() {
		method, event = "email_signup", "email_signup"
	}

	form.State = StateSubmitting
	f.log.AuthEvent(ctx, event+"_attempt", "")

	store := f.sessions.For(deviceID)
	email, password, signIn := form.Email, form.Password, form.IsSignIn()
	key := deviceID + "|" + string(form.Mode) + "|" + email + "|" + credentialDigest(password)

	err := f.run(ctx, deviceID, key, method, event, func(ctx context.Context) (*auth.User, error) {
		if signIn {
			return store.provider.SignIn(ctx, email, password)
		}
		return store.provider.SignUp(ctx, email, password)
	})
	form.Password = ""
	if err != nil {
		return f.fail(ctx, store, form, err, method)
	}
	return succeeded(form)
}

// SubmitGoogle signs in with an ID token obtained from Google.
func (f *AuthFlow) SubmitGoogle(ctx context.Context, deviceID string, form Form, googleIDToken string) Form {
	form.Error = ""
	form.ErrorCode = ""
	form.FieldErrors = nil
	form.Redirect = ""
	form.Offline = !f.net.Online()
	if form.Offline {
		form.ErrorCode = autherr.CodeNetworkRequestFailed
		return failed(form, OfflineMessage)
	}

	form.State = StateSubmitting
	f.log.AuthEvent(ctx, "google_signin_attempt", "")

	store := f.sessions.For(deviceID)
	key := deviceID + "|google|" + googleIDToken
	err := f.run(ctx, deviceID, key, "google_signin", "google_signin", func(ctx context.Context) (*auth.User, error) {
		return store.provider.SignInWithGoogle(ctx, googleIDToken)
	})
	if err != nil {
		return f.fail(ctx, store, form, err, "google_signin")
	}
	return succeeded(form)
}

// run calls the provider with retries and persists the user. Identical
// concurrent submissions share one call.
func (f *AuthFlow) run(ctx context.Context, deviceID, key, method, event string, call func(ctx context.Context) (*auth.User, error)) error {
	done := f.begin(deviceID)
	defer done()

	_, err, _ := f.group.Do(key, func() (any, error) {
		policy := retry.Policy{
			MaxRetries:         f.cfg.MaxRetries,
			Delay:              f.cfg.RetryDelay,
			ExponentialBackoff: true,
			Logger:             f.log,
			OnRetry: func(attempt, max int) {
				f.log.Info(ctx, fmt.Sprintf("Retrying %s (%d/%d)", method, attempt, max))
			},
		}
		start := time.Now()
		u, err := retry.Do(ctx, policy, call)
		f.log.Performance(ctx, method, time.Since(start), "success", err == nil)
		if err != nil {
			return nil, err
		}
		f.log.AuthEvent(ctx, event+"_success", u.UID)

		store := f.sessions.For(deviceID)
		if _, err := store.Store(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	})
	return err
}

// credentialDigest keeps the password out of the singleflight key while still
// separating submissions with different credentials.
func credentialDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (f *AuthFlow) fail(ctx context.Context, store *SessionStore, form Form, err error, method string) Form {
	disp := autherr.Classify(ctx, f.log, err, "method", method)
	if autherr.CodeOf(err) == autherr.CodePersistFailed {
		_ = store.Clear(ctx)
	}
	form.ErrorCode = autherr.CodeOf(err)
	if disp.ShouldRetry {
		f.log.Info(ctx, "Error is retryable - user can try again")
	}
	return failed(form, disp.UserMessage)
}

func failed(form Form, msg string) Form {
	form.Error = msg
	form.State = StateFailed
	form.Loading = false
	return form
}

func fieldFailed(form Form, field, msg string) Form {
	form.FieldErrors = map[string]string{field: msg}
	return failed(form, msg)
}

func succeeded(form Form) Form {
	form.State = StateSucceeded
	form.Loading = false
	form.Redirect = auth.WardrobePath
	return form
}
