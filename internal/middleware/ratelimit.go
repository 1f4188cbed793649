package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/confusion-labs/gateway/internal/ratelimit"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Limiter  ratelimit.Limiter
	Requests int
	Window   time.Duration
	// Scope prefixes the limiter key, e.g. "login".
	Scope string
}

// RateLimit throttles requests per client IP in fixed windows. The key is
// RemoteAddr, which only TrustedRealIP may rewrite from forwarding headers.
// Limiter errors fail open.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "ratelimit", "scope", opts.Scope)

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil || opts.Requests <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.Scope + ":" + clientIP(r)

			decision, err := opts.Limiter.Allow(r.Context(), key, opts.Requests, opts.Window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			writeRateLimitHeaders(w, decision)
			if !decision.Allowed {
				logger.InfoContext(r.Context(), "rate limited", "key", key)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"status":  "Too many requests, try again later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	if d.Limit > 0 {
		h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	}
	if d.Remaining >= 0 {
		h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	}
	if !d.ResetAt.IsZero() {
		h.Set("RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			retryAfter := max(int64(time.Until(d.ResetAt).Seconds()), 0)
			h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
