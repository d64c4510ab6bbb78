package remote

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records submission counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Submissions    *prometheus.CounterVec
	Duration       prometheus.Histogram
	IssuesReported prometheus.Counter
	BreakerChanges *prometheus.CounterVec
}

// NewMetrics creates and registers the submission metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	submissions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Rule document submissions by outcome",
		},
		[]string{"outcome"},
	)

	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Round trip time of rule document submissions",
			Buckets:   prometheus.DefBuckets,
		},
	)

	issues := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_issues_total",
			Help:      "Issues reported by the rule backend",
		},
	)

	breaker := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_state_changes_total",
			Help:      "Circuit breaker transitions by target state",
		},
		[]string{"to"},
	)

	registry.MustRegister(submissions, duration, issues, breaker)

	return &Metrics{
		registry:       registry,
		Submissions:    submissions,
		Duration:       duration,
		IssuesReported: issues,
		BreakerChanges: breaker,
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
