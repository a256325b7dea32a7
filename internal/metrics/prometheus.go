package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weddingdesk_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weddingdesk_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Signup admission metrics
	admissionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weddingdesk_signup_admission_decisions_total",
			Help: "Rate limit tier decisions by outcome (allowed, blocked, degraded)",
		},
		[]string{"tier", "outcome"},
	)

	ledgerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weddingdesk_signup_ledger_errors_total",
			Help: "Rate limit ledger failures that were admitted without a check",
		},
		[]string{"tier"},
	)

	ledgerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weddingdesk_signup_ledger_duration_seconds",
			Help:    "Rate limit ledger call latency in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"tier"},
	)

	provisioningTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weddingdesk_signup_provisioning_total",
			Help: "Account provisioning outcomes (created, duplicate, failed)",
		},
		[]string{"outcome"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, durationSeconds float64) {
	status := "unknown"
	if statusCode >= 200 && statusCode < 300 {
		status = "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		status = "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		status = "4xx"
	} else if statusCode >= 500 {
		status = "5xx"
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordAdmission counts one tier decision
func RecordAdmission(tier, outcome string, durationSeconds float64) {
	admissionDecisionsTotal.WithLabelValues(tier, outcome).Inc()
	ledgerDuration.WithLabelValues(tier).Observe(durationSeconds)
}

// RecordLedgerError counts a ledger failure on a tier
func RecordLedgerError(tier string) {
	ledgerErrorsTotal.WithLabelValues(tier).Inc()
}

// RecordProvisioning counts a provisioning outcome
func RecordProvisioning(outcome string) {
	provisioningTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
