package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricExperimentAssignments = "experiment_assignments_total"
	MetricExperimentResolutions = "experiment_resolutions_total"
	MetricExperimentFallbacks   = "experiment_fallbacks_total"
)

// Metrics contains Prometheus metrics for experiment resolution.
type Metrics struct {
	assignments *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
func NewMetrics() *Metrics {
	return &Metrics{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricExperimentAssignments,
			Help: "Total number of new experiment assignments by experiment and variant",
		}, []string{"experiment", "variant"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricExperimentResolutions,
			Help: "Total number of weight resolutions by experiment and variant",
		}, []string{"experiment", "variant"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricExperimentFallbacks,
			Help: "Total number of resolutions that fell back to control, by reason",
		}, []string{"reason"}),
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

// IncAssignment records a newly persisted assignment.
func (m *Metrics) IncAssignment(experiment, variant string) {
	m.assignments.WithLabelValues(experiment, variant).Inc()
}

// IncResolution records a resolved variant.
func (m *Metrics) IncResolution(experiment, variant string) {
	m.resolutions.WithLabelValues(experiment, variant).Inc()
}

// IncFallback records a fallback to control.
func (m *Metrics) IncFallback(reason string) {
	m.fallbacks.WithLabelValues(reason).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.assignments,
		m.resolutions,
		m.fallbacks,
	}
}
