package backend

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the HTTP and storage metrics of a Server.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	RulesStored    prometheus.Counter
	IssuesReported prometheus.Counter
}

// NewMetrics creates and registers the backend metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	stored := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_stored_total",
			Help:      "Rule documents stored with a new revision",
		},
	)

	issues := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_reported_total",
			Help:      "Issues returned to submitters",
		},
	)

	registry.MustRegister(requests, duration, stored, issues)

	return &Metrics{
		registry:       registry,
		HTTPRequests:   requests,
		HTTPDuration:   duration,
		RulesStored:    stored,
		IssuesReported: issues,
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
