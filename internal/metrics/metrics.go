// Package metrics holds the Prometheus collectors shared across the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "abapractice"

var (
	// HTTPRequests counts handled requests.
	// Labels: method, route (mux pattern), status (status class, e.g. 2xx)
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by method, route and status class",
	}, []string{"method", "route", "status"})

	// HTTPDuration measures request latency.
	// Labels: method, route
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// FamilyAccessOps counts family access lifecycle operations.
	// Labels: op (create, revoke, change_password), outcome (ok, validation, conflict, not_found, persistence)
	FamilyAccessOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "family_access",
		Name:      "operations_total",
		Help:      "Family access lifecycle operations by outcome",
	}, []string{"op", "outcome"})

	// SagaCompensations counts compensating actions run after a failed step.
	// Labels: saga, step, outcome (ok, error)
	SagaCompensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "saga",
		Name:      "compensations_total",
		Help:      "Compensating actions executed by saga and step",
	}, []string{"saga", "step", "outcome"})

	// ReportBuilds counts progress reports computed.
	// Labels: audience (practitioner, family), window
	ReportBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "builds_total",
		Help:      "Progress reports built by audience and window",
	}, []string{"audience", "window"})

	// SOAPDrafts counts SOAP note drafting attempts.
	// Labels: outcome (ok, disabled, error, unparsed)
	SOAPDrafts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "soap",
		Name:      "drafts_total",
		Help:      "SOAP note drafts by outcome",
	}, []string{"outcome"})

	// SOAPDraftLatency measures the chat completion call.
	SOAPDraftLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "soap",
		Name:      "draft_duration_seconds",
		Help:      "Latency of SOAP draft completions in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
	})

	// EmailsSent counts outbound email attempts.
	// Labels: kind (invitation, password_reset, welcome), outcome (ok, error, disabled)
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "email",
		Name:      "sent_total",
		Help:      "Outbound emails by kind and outcome",
	}, []string{"kind", "outcome"})

	// CleanupRemoved counts expired rows removed by the background cleanup.
	// Labels: kind (sessions, reset_tokens)
	CleanupRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cleanup",
		Name:      "removed_total",
		Help:      "Expired rows removed by background cleanup",
	}, []string{"kind"})
)

// StatusClass collapses an HTTP status code to its class label
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
