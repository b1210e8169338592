package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Proton-105/craft-bot/internal/ratelimit"
)

// RateLimit enforces the global per-IP limit. Whitelisted addresses and the
// probe endpoints are never limited; a limiter failure lets the request through.
func RateLimit(policy *ratelimit.Policy, rules *ratelimit.Rules, log *slog.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy == nil || exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			if rules != nil && rules.IsWhitelisted(ip) {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := policy.Allow(r.Context(), ip)
			if err != nil {
				log.Warn("rate limiter error", slog.String("ip", ip), slog.Any("error", err))
			}
			if !allowed {
				log.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(policy.RetryAfter()))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"success": false, "error": "Rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func exempt(path string) bool {
	switch path {
	case "/livez", "/readyz", "/metrics":
		return true
	}
	return false
}

// ClientIP returns the caller address, preferring the first X-Forwarded-For hop
// set by the fronting proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
