package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strings"
	"time"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/metrics"
)

// Logger middleware logs HTTP requests
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", time.Since(start),
				"ip", ClientIP(r),
			)
		})
	}
}

// Recovery middleware recovers from panics
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// MethodOverride middleware allows overriding HTTP method via _method form field
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			method := strings.ToUpper(r.FormValue("_method"))
			if method == http.MethodPut || method == http.MethodDelete {
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// TokenSource extracts the raw ID token of a request
type TokenSource func(r *http.Request) string

// Resolver turns a raw token into a principal source
type Resolver interface {
	Source(rawToken string) identity.Source
}

type ctxKey int

const (
	ctxKeySource ctxKey = iota
	ctxKeyClientAddr
)

// Auth resolves the caller from the Authorization bearer token or the
// session. The principal and a Source that re-resolves it before writes
// are stored in the request context. Pages redirect to the login page;
// JSON requests get 401.
func Auth(resolver Resolver, session TokenSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" && session != nil {
				token = session(r)
			}

			src := resolver.Source(token)
			p, err := src.Principal(r.Context())
			if err != nil {
				if token != "" {
					logger.Debug("session rejected", "path", r.URL.Path, "error", err)
				}
				if WantsJSON(r) {
					sendAPIError(w, http.StatusUnauthorized, "not signed in")
					return
				}
				http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
				return
			}

			ctx := identity.WithPrincipal(r.Context(), p)
			ctx = context.WithValue(ctx, ctxKeySource, src)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SourceFrom returns the principal source stored by Auth
func SourceFrom(ctx context.Context) identity.Source {
	if src, ok := ctx.Value(ctxKeySource).(identity.Source); ok {
		return src
	}
	return nil
}

// BearerToken returns the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// WantsJSON reports whether the client expects a JSON response
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// sendAPIError sends a JSON error response
func sendAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": message})
}

// RealIP resolves the client address once per request. Forwarding headers
// are only believed when the socket peer is one of the trusted proxies.
func RealIP(trustedProxies []string, logger *slog.Logger) func(http.Handler) http.Handler {
	proxies := metrics.ParseProxies(trustedProxies, logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ctxKeyClientAddr, proxies.ClientAddr(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientAddr returns the address resolved by RealIP, or the socket peer
// when RealIP did not run
func ClientAddr(r *http.Request) netip.Addr {
	if addr, ok := r.Context().Value(ctxKeyClientAddr).(netip.Addr); ok {
		return addr
	}
	return metrics.PeerAddr(r)
}

// ClientIP is ClientAddr as a string, falling back to RemoteAddr
func ClientIP(r *http.Request) string {
	if addr := ClientAddr(r); addr.IsValid() {
		return addr.String()
	}
	return r.RemoteAddr
}

// IPFilter restricts the console to the configured networks; an empty
// list allows all
func IPFilter(allowedIPs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return metrics.ParseAllowList(allowedIPs, logger).Middleware(ClientAddr, logger)
}
