package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics interface for dependency injection
type Metrics interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordWebhook(source, kind, outcome string)
	RecordCharge(reason, outcome string, credits int64)
	SetDBConnectionsActive(count float64)
	RecordDBQuery(operation, status string)
	Handler() http.Handler
}

// NoOpMetrics provides a no-op implementation
type NoOpMetrics struct{}

func (m *NoOpMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
}
func (m *NoOpMetrics) RecordWebhook(source, kind, outcome string)         {}
func (m *NoOpMetrics) RecordCharge(reason, outcome string, credits int64) {}
func (m *NoOpMetrics) SetDBConnectionsActive(count float64)               {}
func (m *NoOpMetrics) RecordDBQuery(operation, status string)             {}
func (m *NoOpMetrics) Handler() http.Handler                              { return http.NotFoundHandler() }

// Collector records metrics into Prometheus collectors
type Collector struct {
	gatherer        prometheus.Gatherer
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	webhooks        *prometheus.CounterVec
	charges         *prometheus.CounterVec
	creditsCharged  *prometheus.CounterVec
	dbQueries       *prometheus.CounterVec
	dbConnsAcquired prometheus.Gauge
}

// NewCollector creates the collectors and registers them with reg
func NewCollector(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	c := &Collector{
		gatherer: gatherer,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumecore_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "endpoint", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resumecore_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumecore_webhook_deliveries_total",
			Help: "Webhook deliveries by source, event kind and outcome",
		}, []string{"source", "kind", "outcome"}),
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumecore_charges_total",
			Help: "Charge attempts by reason and outcome",
		}, []string{"reason", "outcome"}),
		creditsCharged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumecore_credits_charged_total",
			Help: "Credits drawn down by reason",
		}, []string{"reason"}),
		dbQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resumecore_db_queries_total",
			Help: "Database operations by type and status",
		}, []string{"operation", "status"}),
		dbConnsAcquired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resumecore_db_connections_active",
			Help: "Acquired database pool connections",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.webhooks,
		c.charges,
		c.creditsCharged,
		c.dbQueries,
		c.dbConnsAcquired,
	)
	return c
}

func (c *Collector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (c *Collector) RecordWebhook(source, kind, outcome string) {
	c.webhooks.WithLabelValues(source, kind, outcome).Inc()
}

func (c *Collector) RecordCharge(reason, outcome string, credits int64) {
	c.charges.WithLabelValues(reason, outcome).Inc()
	if credits > 0 {
		c.creditsCharged.WithLabelValues(reason).Add(float64(credits))
	}
}

func (c *Collector) SetDBConnectionsActive(count float64) {
	c.dbConnsAcquired.Set(count)
}

func (c *Collector) RecordDBQuery(operation, status string) {
	c.dbQueries.WithLabelValues(operation, status).Inc()
}

// Gatherer returns the registry the collector exposes
func (c *Collector) Gatherer() prometheus.Gatherer { return c.gatherer }

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Global metrics instance
var globalMetrics Metrics = &NoOpMetrics{}

// Init switches the package-level facade to Prometheus collectors
// registered on a fresh registry
func Init() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c := NewCollector(reg, reg)
	globalMetrics = c
	return c
}

// Set replaces the package-level implementation
func Set(m Metrics) {
	if m == nil {
		m = &NoOpMetrics{}
	}
	globalMetrics = m
}

// Handler returns the metrics handler
func Handler() http.Handler {
	return globalMetrics.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	globalMetrics.RecordHTTPRequest(method, endpoint, statusCode, duration)
}

// RecordWebhook records the outcome of one webhook delivery
func RecordWebhook(source, kind, outcome string) {
	globalMetrics.RecordWebhook(source, kind, outcome)
}

// RecordCharge records a charge attempt and the credits it drew
func RecordCharge(reason, outcome string, credits int64) {
	globalMetrics.RecordCharge(reason, outcome, credits)
}

// SetDBConnectionsActive sets the number of active database connections
func SetDBConnectionsActive(count float64) {
	globalMetrics.SetDBConnectionsActive(count)
}

// RecordDBQuery records database query metrics
func RecordDBQuery(operation, status string) {
	globalMetrics.RecordDBQuery(operation, status)
}
