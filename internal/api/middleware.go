package api

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"closet-web/internal/auth"
	"closet-web/internal/biz"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
)

// DeviceCookieName identifies the browser profile across requests
const DeviceCookieName = "closet-device"

// DefaultDeviceCookieMaxAge keeps the device id for a year
const DefaultDeviceCookieMaxAge = 365 * 24 * time.Hour

// CookieMirror is the server-side cookie state of a device.
type CookieMirror interface {
	Mirrored(ctx context.Context, deviceID string) ([]biz.MirroredCookie, error)
}

// DeviceOptions configures the device cookie.
type DeviceOptions struct {
	MaxAge time.Duration
	Secure bool
	// Touch is called for page requests, i.e. paths the route guard inspects.
	Touch func(deviceID string)
}

// DeviceMiddleware reads or issues the device cookie and puts the id into the request context.
func DeviceMiddleware(opts DeviceOptions) func(http.Handler) http.Handler {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultDeviceCookieMaxAge
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := ""
			if c, err := r.Cookie(DeviceCookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					deviceID = c.Value
				}
			}
			if deviceID == "" {
				deviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookieName,
					Value:    deviceID,
					Path:     "/",
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(opts.MaxAge.Seconds()),
				})
			}

			if opts.Touch != nil && auth.Matches(r.URL.Path) {
				opts.Touch(deviceID)
			}
			next.ServeHTTP(w, r.WithContext(auth.WithDevice(r.Context(), deviceID)))
		})
	}
}

// MirrorFlush writes the cookie mirror of the device as Set-Cookie headers
// right before the response headers go out. Cookies the request carried that
// are no longer mirrored are expired.
func MirrorFlush(mirror CookieMirror, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := auth.GetDeviceFromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			var once sync.Once
			flush := func() {
				once.Do(func() {
					cookies, err := mirror.Mirrored(r.Context(), deviceID)
					if err != nil {
						logger.Error("failed to read cookie mirror", "device_id", deviceID, "error", err)
						return
					}
					for _, c := range mirrorCookies(r, cookies, secure) {
						http.SetCookie(w, c)
					}
				})
			}

			hooked := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						flush()
						next(code)
					}
				},
				Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						flush()
						return next(b)
					}
				},
				ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
					return func(src io.Reader) (int64, error) {
						flush()
						return next(src)
					}
				},
				Flush: func(next httpsnoop.FlushFunc) httpsnoop.FlushFunc {
					return func() {
						flush()
						next()
					}
				},
			})

			next.ServeHTTP(hooked, r)
			// 没有写任何内容时，net/http 会在返回后补写 header
			flush()
		})
	}
}

func mirrorCookies(r *http.Request, mirrored []biz.MirroredCookie, secure bool) []*http.Cookie {
	live := make(map[string]bool, len(mirrored))
	out := make([]*http.Cookie, 0, len(biz.MirrorCookieNames))
	for _, m := range mirrored {
		live[m.Name] = true
		c := mirrorCookie(m.Name, secure)
		c.Value = m.Value
		c.MaxAge = int(math.Ceil(m.TTL.Seconds()))
		if c.MaxAge <= 0 {
			c.MaxAge = -1
		}
		out = append(out, c)
	}

	for _, name := range biz.MirrorCookieNames {
		if live[name] {
			continue
		}
		if _, err := r.Cookie(name); err != nil {
			continue
		}
		c := mirrorCookie(name, secure)
		c.MaxAge = -1
		out = append(out, c)
	}
	return out
}

func mirrorCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     "/",
		HttpOnly: name == auth.AuthTokenCookieName,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
