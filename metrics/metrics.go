// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is used by services and middleware. Nop is a valid implementation.
type Recorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RecordReservation(event string)
	RecordExternalCall(service string, err error, duration time.Duration)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	reservations    *prometheus.CounterVec
	externalFail    *prometheus.CounterVec
	externalLatency *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rental_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_reservations_total",
			Help: "Reservation lifecycle events.",
		}, []string{"event"}),
		externalFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_external_failures_total",
			Help: "Failed calls to external services.",
		}, []string{"service"}),
		externalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rental_external_call_duration_seconds",
			Help:    "Latency of calls to external services.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.reservations,
		c.externalFail,
		c.externalLatency,
	)
	return c
}

func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestLatency.WithLabelValues(route).Observe(duration.Seconds())
}

func (c *Collector) RecordReservation(event string) {
	c.reservations.WithLabelValues(event).Inc()
}

func (c *Collector) RecordExternalCall(service string, err error, duration time.Duration) {
	c.externalLatency.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil {
		c.externalFail.WithLabelValues(service).Inc()
	}
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordReservation(string)                         {}
func (Nop) RecordExternalCall(string, error, time.Duration)  {}
