package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_planner"

// Metrics holds the Prometheus collectors for the planner.
type Metrics struct {
	CacheLookups      *prometheus.CounterVec // labels: namespace, result={hit,miss,expired,bypass}
	RetryAttempts     *prometheus.CounterVec // labels: operation
	ProviderRequests  *prometheus.CounterVec // labels: provider, outcome={success,error}
	DegradedOutlooks  *prometheus.CounterVec // labels: scope={outlook,city}
	AggregateDuration prometheus.Histogram
	Reschedules       *prometheus.CounterVec // labels: outcome={moved,unchanged,unavailable}
}

func build() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "TTL cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries scheduled after a failed attempt, by operation.",
		}, []string{"operation"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Outbound provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		DegradedOutlooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outlook_degraded_total",
			Help:      "Outlooks built with fallback or placeholder data.",
		}, []string{"scope"}),
		AggregateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of a full weekly outlook aggregation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Reschedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reschedules_total",
			Help:      "Reschedule requests by outcome.",
		}, []string{"outcome"}),
	}
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := build()
	prometheus.MustRegister(
		m.CacheLookups,
		m.RetryAttempts,
		m.ProviderRequests,
		m.DegradedOutlooks,
		m.AggregateDuration,
		m.Reschedules,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build
// as many instances as they like.
func NewMetricsForTesting() *Metrics {
	return build()
}

// The helpers below tolerate a nil receiver so components can run without metrics.

func (m *Metrics) CacheLookup(ns, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(ns, result).Inc()
}

func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(operation).Inc()
}

func (m *Metrics) ProviderRequest(provider string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) Degraded(scope string) {
	if m == nil {
		return
	}
	m.DegradedOutlooks.WithLabelValues(scope).Inc()
}

func (m *Metrics) ObserveAggregate(seconds float64) {
	if m == nil {
		return
	}
	m.AggregateDuration.Observe(seconds)
}

func (m *Metrics) Reschedule(outcome string) {
	if m == nil {
		return
	}
	m.Reschedules.WithLabelValues(outcome).Inc()
}
