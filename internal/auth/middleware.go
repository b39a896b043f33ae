package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

const (
	// AuthTokenCookieName holds the bearer token mirror
	AuthTokenCookieName = "authToken"
	// OwnerCookieName holds the URL-encoded identity snapshot
	OwnerCookieName = "owner"

	SignInPath   = "/account/auth"
	WardrobePath = "/my-closet/wardrobe"
)

// unguardedPrefixes are never inspected by the guard. Matched against the
// path without its leading slash, so "/apidocs" is skipped as well.
var unguardedPrefixes = []string{"api", "static", "image", "favicon.ico", "health", "metrics"}

// Decision is the guard outcome. An empty Redirect lets the request through.
type Decision struct {
	Redirect string
}

// Pass reports whether the request may continue.
func (d Decision) Pass() bool { return d.Redirect == "" }

// Decide is the pure routing rule. It only looks at which cookies are present,
// never at whether they are valid.
func Decide(pathname string, hasToken, hasOwner bool) Decision {
	isPublic := pathname == "/" || pathname == SignInPath

	if !hasToken && !isPublic {
		return Decision{Redirect: SignInPath}
	}
	if hasToken && hasOwner && pathname == SignInPath {
		return Decision{Redirect: WardrobePath}
	}
	return Decision{}
}

// Matches reports whether the guard applies to pathname.
func Matches(pathname string) bool {
	trimmed := strings.TrimPrefix(pathname, "/")
	for _, p := range unguardedPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return false
		}
	}
	return true
}

// RouteGuard redirects page requests according to Decide, using only the
// request cookies. It runs before any page handler.
func RouteGuard(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Matches(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			d := Decide(r.URL.Path, hasCookie(r, AuthTokenCookieName), hasCookie(r, OwnerCookieName))
			if d.Pass() {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("route guard redirect", "path", r.URL.Path, "to", d.Redirect)
			http.Redirect(w, r, d.Redirect, http.StatusFound)
		})
	}
}

func hasCookie(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}
