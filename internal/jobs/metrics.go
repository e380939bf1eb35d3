// Package jobs holds the run accounting shared by the background workers:
// the aggregate refresh loop and the analytics flusher.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBackgroundJobsTotal      = "background_jobs_total"
	MetricBackgroundJobsDuration   = "background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "background_job_errors_total"
	MetricBackgroundJobLastSuccess = "background_job_last_success_timestamp_seconds"
)

// Job types used as the job_type label.
const (
	JobTypeAggregateRefresh = "aggregate_refresh"
	JobTypeAnalyticsFlush   = "analytics_flush"
)

// Run outcomes used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics counts background job runs. A nil *Metrics is valid and records
// nothing, so workers can run without a registry.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobsTotal,
			Help: "Background job runs by type and status",
		}, []string{"job_type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricBackgroundJobsDuration,
			Help:    "Background job run time in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"job_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobErrorsTotal,
			Help: "Background job errors by type and error class",
		}, []string{"job_type", "error_type"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricBackgroundJobLastSuccess,
			Help: "Unix time of the last successful run; alert when aggregate_refresh falls behind the max staleness",
		}, []string{"job_type"}),
		now: time.Now,
	}
}

// Collectors lists every collector.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.runs, m.duration, m.errors, m.lastSuccess}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRun records one finished run that began at start. A successful run
// also moves the last-success timestamp.
func (m *Metrics) ObserveRun(jobType string, start time.Time, ok bool) {
	if m == nil {
		return
	}
	now := m.now()
	status := StatusSuccess
	if !ok {
		status = StatusFailure
	}
	m.runs.WithLabelValues(jobType, status).Inc()
	m.duration.WithLabelValues(jobType).Observe(now.Sub(start).Seconds())
	if ok {
		m.lastSuccess.WithLabelValues(jobType).Set(float64(now.Unix()))
	}
}

// IncJobErrors counts an error of class errorType, such as "store_error" or
// "sink_error". Use ErrorClass when the class follows from the error itself.
func (m *Metrics) IncJobErrors(jobType, errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(jobType, errorType).Inc()
}

// ErrorClass maps context errors onto "timeout" and "canceled" and returns
// fallback for everything else.
func ErrorClass(err error, fallback string) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return fallback
	}
}
