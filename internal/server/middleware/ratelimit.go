package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// RateLimit returns middleware that limits each client to limit requests per
// window. Authenticated callers are keyed by identity, everyone else by IP.
// Limiter errors fail open.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:api:ip:" + extractClientIP(r)
			if id, ok := Caller(r.Context()); ok {
				key = "ratelimit:api:id:" + strings.ToLower(id.Hex())
			}

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "middleware: rate limiter unavailable",
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Msg, domain.ErrRateLimited.Code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
