package privacy

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricPrivacyExcluded counts candidates removed by the filter.
const MetricPrivacyExcluded = "privacy_candidates_excluded_total"

// Metrics contains Prometheus metrics for privacy filtering.
type Metrics struct {
	excluded *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		excluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrivacyExcluded,
			Help: "Total number of candidates excluded by the privacy filter, by rule",
		}, []string{"reason"}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.excluded)
}

// IncExcluded increments the exclusion counter for a rule.
func (m *Metrics) IncExcluded(reason string) {
	m.excluded.WithLabelValues(reason).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.excluded}
}
