package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/weddary/weddary/internal/metrics"
)

// WithMetrics records request latency per route pattern and status class.
// route is the mounted pattern, not the raw path, to keep cardinality bounded.
func WithMetrics(route string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			statusClass := strconv.Itoa(rec.status/100) + "xx"
			metrics.HTTPRequestDuration.
				WithLabelValues(route, statusClass).
				Observe(float64(time.Since(start).Milliseconds()))
			if rec.status == http.StatusTooManyRequests {
				metrics.RateLimitRejections.WithLabelValues(route).Inc()
			}
		})
	}
}
