package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/weddary/weddary/internal/http/httperr"
	"github.com/weddary/weddary/internal/observability/logger"
	"github.com/weddary/weddary/internal/rate"
)

// RateKeyFunc derives the bucket key for a request.
type RateKeyFunc func(r *http.Request) string

// IPRateKey buckets by client IP only.
func IPRateKey(r *http.Request) string {
	return clientIP(r)
}

// IPPathRateKey buckets by IP + path so endpoints do not share a budget.
func IPPathRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// WithRateLimit enforces a fixed-window limit per key. A nil limiter disables
// enforcement; a limiter error fails open so a Redis outage cannot take the
// OAuth endpoints down with it.
func WithRateLimit(limiter rate.Limiter, keyFunc RateKeyFunc) Middleware {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if keyFunc == nil {
		keyFunc = IPPathRateKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				if res.WindowTTL > 0 {
					resetAt := time.Now().Add(res.WindowTTL).Unix()
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
				}
				httperr.WriteError(w, r, httperr.ErrRateLimitExceeded)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}

			next.ServeHTTP(w, r)
		})
	}
}
