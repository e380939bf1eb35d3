package aggregate

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricAggregateRefreshTotal     = "aggregate_refresh_total"
	MetricAggregateRefreshErrors    = "aggregate_refresh_errors_total"
	MetricAggregateRefreshDuration  = "aggregate_refresh_duration_seconds"
	MetricAggregateLastRefresh      = "aggregate_last_refresh_timestamp"
	MetricAggregateLastRefreshPairs = "aggregate_last_refresh_pair_count"
	MetricAggregateDirtyPairs       = "aggregate_dirty_pairs"
	MetricAggregateLookups          = "aggregate_lookups_total"
)

// Metrics contains Prometheus metrics for the interaction aggregate.
type Metrics struct {
	refreshTotal     prometheus.Counter
	refreshErrors    prometheus.Counter
	refreshDuration  prometheus.Histogram
	lastRefresh      prometheus.Gauge
	lastRefreshPairs prometheus.Gauge
	dirtyPairs       prometheus.Gauge
	lookups          *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		refreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAggregateRefreshTotal,
			Help: "Total number of aggregate refresh cycles",
		}),
		refreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAggregateRefreshErrors,
			Help: "Total number of aggregate refresh errors",
		}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricAggregateRefreshDuration,
			Help:    "Histogram of aggregate refresh duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricAggregateLastRefresh,
			Help: "Unix timestamp of the last aggregate refresh",
		}),
		lastRefreshPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricAggregateLastRefreshPairs,
			Help: "Number of pairs refreshed in the last cycle",
		}),
		dirtyPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricAggregateDirtyPairs,
			Help: "Number of pairs waiting for refresh",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAggregateLookups,
			Help: "Aggregate cache lookups by result (hit or miss)",
		}, []string{"result"}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRefreshTotal increments the refresh counter.
func (m *Metrics) IncRefreshTotal() { m.refreshTotal.Inc() }

// IncRefreshErrors increments the refresh error counter.
func (m *Metrics) IncRefreshErrors() { m.refreshErrors.Inc() }

// ObserveRefreshDuration records a refresh duration sample.
func (m *Metrics) ObserveRefreshDuration(seconds float64) { m.refreshDuration.Observe(seconds) }

// SetLastRefresh records the completion time and size of the last cycle.
func (m *Metrics) SetLastRefresh(timestamp float64, pairs int) {
	m.lastRefresh.Set(timestamp)
	m.lastRefreshPairs.Set(float64(pairs))
}

// SetDirtyPairs sets the dirty pair gauge.
func (m *Metrics) SetDirtyPairs(n int) { m.dirtyPairs.Set(float64(n)) }

// IncLookup counts a cache lookup.
func (m *Metrics) IncLookup(result string) { m.lookups.WithLabelValues(result).Inc() }

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.refreshTotal,
		m.refreshErrors,
		m.refreshDuration,
		m.lastRefresh,
		m.lastRefreshPairs,
		m.dirtyPairs,
		m.lookups,
	}
}
