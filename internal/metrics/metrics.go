// Package metrics provides Prometheus metrics for the sync service.
//
// Metrics register with an injected registry so tests and multiple servers
// in one process never collide on the default one. Every method is safe on
// a nil *Metrics, which disables collection.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	requestsInFlight  prometheus.Gauge
	rateLimited       prometheus.Counter
	mutationsTotal    *prometheus.CounterVec
	pushBatchSize     prometheus.Histogram
	pulledChanges     prometheus.Counter
	invoiceClaimed    prometheus.Counter
	sideEffectFailure *prometheus.CounterVec
}

// New creates the collectors on reg. A nil reg gets a fresh registry with
// the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laundrysync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "laundrysync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		requestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "laundrysync_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		rateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Name: "laundrysync_http_rate_limited_total",
				Help: "Requests refused by the rate limiter",
			},
		),
		mutationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laundrysync_mutations_total",
				Help: "Pushed mutations by type and outcome",
			},
			[]string{"type", "status", "reason_code"},
		),
		pushBatchSize: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "laundrysync_push_batch_size",
				Help:    "Mutations per push request",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		pulledChanges: f.NewCounter(
			prometheus.CounterOpts{
				Name: "laundrysync_pulled_changes_total",
				Help: "Change records served to devices",
			},
		),
		invoiceClaimed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "laundrysync_invoice_numbers_claimed_total",
				Help: "Invoice counters reserved by range claims",
			},
		),
		sideEffectFailure: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "laundrysync_side_effect_failures_total",
				Help: "Post-commit side effects that failed",
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one finished request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) IncRequestsInFlight() {
	if m != nil {
		m.requestsInFlight.Inc()
	}
}

func (m *Metrics) DecRequestsInFlight() {
	if m != nil {
		m.requestsInFlight.Dec()
	}
}

func (m *Metrics) RecordRateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// RecordMutation counts one mutation outcome. status is applied, duplicate
// or rejected; reasonCode is empty unless rejected.
func (m *Metrics) RecordMutation(mutationType, status, reasonCode string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(mutationType, status, reasonCode).Inc()
}

func (m *Metrics) RecordPushBatch(size int) {
	if m != nil {
		m.pushBatchSize.Observe(float64(size))
	}
}

func (m *Metrics) RecordPulledChanges(n int) {
	if m != nil {
		m.pulledChanges.Add(float64(n))
	}
}

func (m *Metrics) RecordInvoiceClaimed(n int64) {
	if m != nil {
		m.invoiceClaimed.Add(float64(n))
	}
}

// RecordSideEffectFailure counts a failed notify, audit or cache call.
func (m *Metrics) RecordSideEffectFailure(kind string) {
	if m != nil {
		m.sideEffectFailure.WithLabelValues(kind).Inc()
	}
}
