// Package autherr classifies identity and persistence failures into stable codes
// and the sentences shown to users.
package autherr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"closet-web/internal/telemetry"

	pkgerrors "github.com/pkg/errors"
)

// Provider codes.
const (
	CodeEmailAlreadyInUse     = "auth/email-already-in-use"
	CodeInvalidEmail          = "auth/invalid-email"
	CodeOperationNotAllowed   = "auth/operation-not-allowed"
	CodeWeakPassword          = "auth/weak-password"
	CodeUserDisabled          = "auth/user-disabled"
	CodeUserNotFound          = "auth/user-not-found"
	CodeWrongPassword         = "auth/wrong-password"
	CodeInvalidCredential     = "auth/invalid-credential"
	CodeTooManyRequests       = "auth/too-many-requests"
	CodePopupClosedByUser     = "auth/popup-closed-by-user"
	CodePopupBlocked          = "auth/popup-blocked"
	CodeNetworkRequestFailed  = "auth/network-request-failed"
	CodeTimeout               = "auth/timeout"
	CodeCancelledPopupRequest = "auth/cancelled-popup-request"
	CodeInternalError         = "auth/internal-error"
	CodeInvalidAPIKey         = "auth/invalid-api-key"
	CodeAppDeleted            = "auth/app-deleted"
	CodeExpiredActionCode     = "auth/expired-action-code"
	CodeInvalidActionCode     = "auth/invalid-action-code"
	CodeRequiresRecentLogin   = "auth/requires-recent-login"
	CodeNetworkError          = "auth/network-error"
	CodeUserTokenExpired      = "auth/user-token-expired"
	CodeInvalidRefreshToken   = "auth/invalid-refresh-token"

	CodeStorageUnauthorized = "storage/unauthorized"
	CodeStorageCanceled     = "storage/canceled"
	CodeStorageUnknown      = "storage/unknown"

	CodePersistFailed = "app/persist-failed"
)

const (
	fallbackNil     = "An unexpected error occurred"
	fallbackUnknown = "An unexpected error occurred. Please try again."
	fallbackNetwork = "Network error. Please check your internet connection and try again."
	fallbackTimeout = "Request timed out. Please try again."
)

var messages = map[string]string{
	CodeEmailAlreadyInUse:     "This email is already registered. Please sign in instead.",
	CodeInvalidEmail:          "Please enter a valid email address.",
	CodeOperationNotAllowed:   "This sign-in method is not enabled. Please contact support.",
	CodeWeakPassword:          "Password is too weak. Please use at least 8 characters with mixed case and numbers.",
	CodeUserDisabled:          "This account has been disabled. Please contact support.",
	CodeUserNotFound:          "No account found with this email. Please sign up first.",
	CodeWrongPassword:         "Incorrect password. Please try again.",
	CodeInvalidCredential:     "Invalid email or password. Please try again.",
	CodeTooManyRequests:       "Too many failed attempts. Please try again later or reset your password.",
	CodePopupClosedByUser:     "Sign-in cancelled. Please try again.",
	CodePopupBlocked:          "Pop-up was blocked by your browser. Please allow pop-ups and try again.",
	CodeNetworkRequestFailed:  "Network error. Please check your connection and try again.",
	CodeTimeout:               "Request timed out. Please try again.",
	CodeCancelledPopupRequest: "Only one pop-up request is allowed at a time.",
	CodeInternalError:         "An internal error occurred. Please try again.",
	CodeInvalidAPIKey:         "Invalid API configuration. Please contact support.",
	CodeAppDeleted:            "App configuration error. Please contact support.",
	CodeExpiredActionCode:     "This link has expired. Please request a new one.",
	CodeInvalidActionCode:     "This link is invalid. Please request a new one.",
	CodeRequiresRecentLogin:   "For security, please sign in again to continue.",
	CodeNetworkError:          "Network error. Please check your internet connection.",
	CodeUserTokenExpired:      "Your session has expired. Please sign in again.",
	CodeInvalidRefreshToken:   "Your session has expired. Please sign in again.",

	CodeStorageUnauthorized: "You do not have permission to access this file.",
	CodeStorageCanceled:     "Upload was cancelled.",
	CodeStorageUnknown:      "An unknown error occurred during upload.",

	CodePersistFailed: "We could not save your session. Please try again.",
}

// Error is a failure carrying a stable code.
type Error struct {
	Code    string
	Message string
	Err     error
}

// New returns a coded error with a captured stack.
func New(code, message string) error {
	return pkgerrors.WithStack(&Error{Code: code, Message: message})
}

// Wrap attaches code to err and captures a stack. A nil err yields nil.
func Wrap(code string, err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(&Error{Code: code, Message: err.Error(), Err: err})
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity error (%s)", e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode lets telemetry pick the code up without importing this package.
func (e *Error) ErrorCode() string { return e.Code }

// CodeOf returns the code of the first coded error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageFor returns the user-facing sentence registered for code.
func MessageFor(code string) (string, bool) {
	msg, ok := messages[code]
	return msg, ok
}

// Message maps err to a user-facing sentence.
func Message(err error) string {
	if err == nil {
		return fallbackNil
	}
	if msg, ok := messages[CodeOf(err)]; ok {
		return msg
	}

	raw := err.Error()
	lowered := strings.ToLower(raw)
	if strings.Contains(lowered, "network") || strings.Contains(lowered, "fetch") {
		return fallbackNetwork
	}
	if strings.Contains(lowered, "timeout") {
		return fallbackTimeout
	}
	if raw != "" {
		return raw
	}
	return fallbackUnknown
}

// ShouldRetry reports whether the user may usefully retry the same action.
func ShouldRetry(err error) bool {
	switch CodeOf(err) {
	case CodeNetworkRequestFailed, CodeTimeout, CodeInternalError:
		return true
	}
	return false
}

// ShouldReauth reports whether the user must sign in again before continuing.
func ShouldReauth(err error) bool {
	return CodeOf(err) == CodeRequiresRecentLogin
}

// IsTransient is the retry predicate: errors without a code, and codes naming
// a network or timeout condition, may be retried.
func IsTransient(err error) bool {
	code := CodeOf(err)
	if code == "" {
		return true
	}
	return strings.Contains(code, "network") || strings.Contains(code, "timeout")
}

// Disposition is the classified outcome of a failed operation.
type Disposition struct {
	UserMessage  string
	ShouldRetry  bool
	ShouldReauth bool
}

// Classify logs err with the supplied context and returns how the caller should react.
func Classify(ctx context.Context, log *telemetry.Logger, err error, args ...any) Disposition {
	log.Error(ctx, "Authentication error", err, args...)
	return Disposition{
		UserMessage:  Message(err),
		ShouldRetry:  ShouldRetry(err),
		ShouldReauth: ShouldReauth(err),
	}
}
