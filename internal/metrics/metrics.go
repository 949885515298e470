package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	signupsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_signups_started_total",
		Help: "Count of signup starts by result",
	}, []string{"result"})

	signupsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_signups_completed_total",
		Help: "Count of signup completions by result",
	}, []string{"result"})

	tokenRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_token_rotations_total",
		Help: "Count of refresh token rotations by result",
	}, []string{"result"})

	sessionLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "identity_session_limit_hits_total",
		Help: "Count of session creations rejected by the per-tenant cap",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveSignupStart records the outcome of a signup start.
func ObserveSignupStart(result string) {
	signupsStarted.WithLabelValues(result).Inc()
}

// ObserveSignupComplete records the outcome of a signup completion.
func ObserveSignupComplete(result string) {
	signupsCompleted.WithLabelValues(result).Inc()
}

// ObserveTokenRotation records the outcome of a refresh rotation.
func ObserveTokenRotation(result string) {
	tokenRotations.WithLabelValues(result).Inc()
}

// ObserveSessionLimitHit counts a rejected session creation.
func ObserveSessionLimitHit() {
	sessionLimitHits.Inc()
}
