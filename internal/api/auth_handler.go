package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/autherr"

	"github.com/gorilla/mux"
)

// stateTTL bounds how long a Google sign-in may take
const stateTTL = 10 * time.Minute

// GoogleOIDC is the federated sign-in client
type GoogleOIDC interface {
	AuthURL(state string, codeChallenge string) string
	ExchangeIDToken(ctx context.Context, code string, codeVerifier string) (string, *auth.UserInfo, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService AuthService
	oidc        GoogleOIDC
	stateStore  *auth.StateStore
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler. google may be nil when federated sign-in is disabled.
func NewAuthHandler(authService AuthService, google GoogleOIDC, stateStore *auth.StateStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		oidc:        google,
		stateStore:  stateStore,
		logger:      logger,
	}
}

// RegisterRoutes registers auth routes
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(auth.SignInPath, h.screen).Methods(http.MethodGet)

	ar := r.PathPrefix("/api/auth").Subrouter()
	ar.HandleFunc("/email", h.email).Methods(http.MethodPost)
	ar.HandleFunc("/mode", h.mode).Methods(http.MethodPost)
	ar.HandleFunc("/google", h.googleLogin).Methods(http.MethodGet)
	ar.HandleFunc("/google/callback", h.callback).Methods(http.MethodGet)
	ar.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
}

// screen returns the auth screen model
func (h *AuthHandler) screen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := auth.MustGetDeviceFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.authService.Screen(r.Context(), deviceID, ScreenQuery{
		Reason: q.Get("reason"),
		Error:  q.Get("error"),
	}))
}

// email signs in or registers with email and password
func (h *AuthHandler) email(w http.ResponseWriter, r *http.Request) {
	var req EmailAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deviceID := auth.MustGetDeviceFromContext(r.Context())
	screen := h.authService.SubmitEmail(r.Context(), deviceID, &req)
	writeJSON(w, screenStatus(screen), screen)
}

// mode toggles between sign-in and register
func (h *AuthHandler) mode(w http.ResponseWriter, r *http.Request) {
	var req ToggleModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deviceID := auth.MustGetDeviceFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.authService.ToggleMode(r.Context(), deviceID, &req))
}

// googleLogin initiates the Google OIDC flow with PKCE
func (h *AuthHandler) googleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		writeError(w, http.StatusNotFound, "google sign-in is not enabled")
		return
	}

	// Generate CSRF state
	state, err := auth.GenerateState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	// Generate PKCE parameters
	codeVerifier, err := auth.GenerateCodeVerifier()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate code verifier")
		return
	}
	codeChallenge := auth.GenerateCodeChallenge(codeVerifier)

	deviceID := auth.MustGetDeviceFromContext(r.Context())
	h.stateStore.SaveWithVerifier(state, stateTTL, deviceID, codeVerifier, auth.WardrobePath)

	http.Redirect(w, r, h.oidc.AuthURL(state, codeChallenge), http.StatusFound)
}

// callback finishes the Google flow and signs the device in with the verified ID token
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		writeError(w, http.StatusNotFound, "google sign-in is not enabled")
		return
	}

	q := r.URL.Query()
	deviceID := auth.MustGetDeviceFromContext(r.Context())
	// Verify state and get code verifier (CSRF protection + PKCE)
	codeVerifier, returnTo, ok := h.stateStore.VerifyAndGetVerifier(q.Get("state"), deviceID)
	if !ok {
		h.logger.Warn("rejected google callback state", "device_id", deviceID)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	if cbErr := q.Get("error"); cbErr != "" {
		h.redirectToSignIn(w, r, h.authService.GoogleError(r.Context(), cbErr))
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	rawIDToken, _, err := h.oidc.ExchangeIDToken(r.Context(), code, codeVerifier)
	if err != nil {
		h.logger.Error("google code exchange failed", "error", err)
		h.redirectToSignIn(w, r, autherr.CodeInternalError)
		return
	}

	screen := h.authService.SignInWithGoogle(r.Context(), deviceID, rawIDToken)
	if screen.Redirect == "" {
		errCode := screen.ErrorCode
		if errCode == "" {
			errCode = autherr.CodeInternalError
		}
		h.redirectToSignIn(w, r, errCode)
		return
	}

	if returnTo == "" {
		returnTo = screen.Redirect
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// logout signs the device out; the cookie flush expires the mirrored cookies
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.MustGetDeviceFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.authService.Logout(r.Context(), deviceID))
}

func (h *AuthHandler) redirectToSignIn(w http.ResponseWriter, r *http.Request, errCode string) {
	http.Redirect(w, r, auth.SignInPath+"?error="+url.QueryEscape(errCode), http.StatusFound)
}

func screenStatus(s *AuthScreen) int {
	if s.Error == "" {
		return http.StatusOK
	}
	if len(s.FieldErrors) > 0 {
		return http.StatusBadRequest
	}
	switch s.ErrorCode {
	case autherr.CodeNetworkRequestFailed, autherr.CodeTimeout:
		return http.StatusServiceUnavailable
	case autherr.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case autherr.CodeEmailAlreadyInUse:
		return http.StatusConflict
	case autherr.CodePersistFailed, autherr.CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}
