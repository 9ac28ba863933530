// Package metrics collects Prometheus metrics for backend traffic and auth activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the backend client and auth layer report to.
type Recorder interface {
	RecordRequest(api string, statusCode int, duration time.Duration)
	RecordNetworkError(api string, timeout bool)
	RecordAuthEvent(kind string)
	RecordValidationFailure()
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	networkErrors *prometheus.CounterVec
	authEvents    *prometheus.CounterVec
	validation    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipebox_backend_requests_total",
			Help: "Backend responses by API and status code.",
		}, []string{"api", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recipebox_backend_request_seconds",
			Help:    "Backend request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"api"}),
		networkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipebox_backend_network_errors_total",
			Help: "Backend requests that produced no response.",
		}, []string{"api", "timeout"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipebox_auth_events_total",
			Help: "Auth state transitions by kind.",
		}, []string{"kind"}),
		validation: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipebox_recipe_validation_failures_total",
			Help: "Recipe submissions rejected before reaching the backend.",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.networkErrors,
		c.authEvents,
		c.validation,
	)

	return c
}

func (c *Collector) RecordRequest(api string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(api, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(api).Observe(duration.Seconds())
}

func (c *Collector) RecordNetworkError(api string, timeout bool) {
	c.networkErrors.WithLabelValues(api, strconv.FormatBool(timeout)).Inc()
}

// RecordAuthEvent counts sign_in, sign_up, sign_out and expired transitions.
func (c *Collector) RecordAuthEvent(kind string) {
	c.authEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordValidationFailure() {
	c.validation.Inc()
}

// Nop discards everything. Used when metrics are not wired.
type Nop struct{}

func (Nop) RecordRequest(string, int, time.Duration) {}
func (Nop) RecordNetworkError(string, bool)          {}
func (Nop) RecordAuthEvent(string)                   {}
func (Nop) RecordValidationFailure()                 {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
