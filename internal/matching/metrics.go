package matching

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankingDuration = "ranking_duration_seconds"
	MetricRankingRequests = "ranking_requests_total"
	MetricRankingPoolSize = "ranking_pool_size"
	MetricExplanations    = "match_explanations_total"
)

// Metrics contains Prometheus metrics for the matching service.
type Metrics struct {
	duration     *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	poolSize     *prometheus.HistogramVec
	explanations *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRankingDuration,
			Help:    "Duration of GetRankedCandidates calls in seconds, by context",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"context"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRankingRequests,
			Help: "Total GetRankedCandidates calls by context and outcome",
		}, []string{"context", "outcome"}),
		poolSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRankingPoolSize,
			Help:    "Number of eligible candidates scored per ranking call",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7),
		}, []string{"context"}),
		explanations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricExplanations,
			Help: "Total match explanations served, by kind (data or generic)",
		}, []string{"kind"}),
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
	return []prometheus.Collector{m.duration, m.requests, m.poolSize, m.explanations}
}
