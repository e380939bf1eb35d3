package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exported by the middleware chain.
const (
	MetricHTTPRequestsTotal      = "http_requests_total"
	MetricHTTPRequestDuration    = "http_request_duration_seconds"
	MetricHTTPResponseSizeBytes  = "http_response_size_bytes"
	MetricHTTPRequestsInFlight   = "http_requests_in_flight"
	MetricRateLimitDecisions     = "rate_limit_decisions_total"
	MetricRateLimitStoreFailures = "rate_limit_store_failures_total"
)

// Metrics holds the HTTP and rate limit collectors. All methods are safe for
// concurrent use.
type Metrics struct {
	requests         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	responseSize     *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	limitDecisions   *prometheus.CounterVec
	limitStoreFailed prometheus.Counter
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests served, by method, route and status",
		}, []string{"method", "route", "status"}),
		// Ranking a large pool is the slow path, hence the long tail buckets.
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "HTTP response body size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricHTTPRequestsInFlight,
			Help: "HTTP requests currently being served",
		}),
		limitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitDecisions,
			Help: "Rate limit checks by route, key type and outcome",
		}, []string{"route", "key_type", "outcome"}),
		limitStoreFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitStoreFailures,
			Help: "Rate limit store errors that let a request through unchecked",
		}),
	}
}

// Collectors lists every collector, for registration and tests.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests, m.duration, m.responseSize, m.inFlight,
		m.limitDecisions, m.limitStoreFailed,
	}
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

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64, responseBytes int64) {
	m.requests.WithLabelValues(method, route, status).Inc()
	m.duration.WithLabelValues(method, route).Observe(seconds)
	m.responseSize.WithLabelValues(route).Observe(float64(responseBytes))
}

// ObserveRateLimit records an allowed or blocked decision.
func (m *Metrics) ObserveRateLimit(route, keyType string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "blocked"
	}
	m.limitDecisions.WithLabelValues(route, keyType, outcome).Inc()
}

// IncRateLimitStoreFailures counts a fail-open rate limit check.
func (m *Metrics) IncRateLimitStoreFailures() {
	m.limitStoreFailed.Inc()
}
