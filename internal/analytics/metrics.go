package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricAnalyticsEmitted = "analytics_events_emitted_total"
	MetricAnalyticsDropped = "analytics_events_dropped_total"
	MetricAnalyticsBatches = "analytics_batches_total"
)

// Metrics contains Prometheus metrics for analytics emission.
type Metrics struct {
	emitted prometheus.Counter
	dropped prometheus.Counter
	batches *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAnalyticsEmitted,
			Help: "Total number of analytics events accepted into the buffer",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAnalyticsDropped,
			Help: "Total number of analytics events dropped because the buffer was full or closed",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAnalyticsBatches,
			Help: "Total number of analytics batches written, by status",
		}, []string{"status"}),
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

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.emitted, m.dropped, m.batches}
}
