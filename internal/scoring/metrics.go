package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricScoringDuration      = "scoring_signal_duration_seconds"
	MetricScoringDegradedTotal = "scoring_signal_degraded_total"
	MetricScoringPairsTotal    = "scoring_pairs_total"
)

// Metrics contains Prometheus metrics for signal scoring.
// All operations are thread-safe.
type Metrics struct {
	duration   *prometheus.HistogramVec
	degraded   *prometheus.CounterVec
	pairsTotal prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricScoringDuration,
			Help:    "Histogram of per-pair signal scoring duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"signal"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricScoringDegradedTotal,
			Help: "Total number of signal scores replaced by the signal's fallback value",
		}, []string{"signal"}),
		pairsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricScoringPairsTotal,
			Help: "Total number of (user, candidate) pairs scored",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveDuration records how long one scorer took for one pair.
func (m *Metrics) ObserveDuration(signal string, seconds float64) {
	m.duration.WithLabelValues(signal).Observe(seconds)
}

// IncDegraded increments the degraded counter for a signal.
func (m *Metrics) IncDegraded(signal string) {
	m.degraded.WithLabelValues(signal).Inc()
}

// AddPairs adds n scored pairs.
func (m *Metrics) AddPairs(n int) {
	m.pairsTotal.Add(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.duration,
		m.degraded,
		m.pairsTotal,
	}
}
