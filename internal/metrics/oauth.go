package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OAuth flow and HTTP Prometheus metrics. Defined in a standalone package to
// avoid import cycles between the flow service and HTTP packages.

var (
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_ms",
		Help:    "Request latency in milliseconds, per route and status class",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"route", "status"})

	FlowOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_flow_operations_total",
		Help: "OAuth flow operations by provider, operation and result",
	}, []string{"provider", "op", "result"})

	TokenRefreshLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oauth_token_refresh_latency_ms",
		Help:    "Latency of provider token refresh calls in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"provider"})

	RateLimitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter, per route",
	}, []string{"route"})
)

// Register registers all metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		HTTPRequestDuration,
		FlowOperations,
		TokenRefreshLatency,
		RateLimitRejections,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
