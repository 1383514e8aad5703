package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the API server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	OrdersCreatedTotal   prometheus.Counter
	OrderStatusChanges   *prometheus.CounterVec
	EmailsSentTotal      *prometheus.CounterVec
	StatsCacheLookups    *prometheus.CounterVec
	EventsPublishedTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchforge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "merchforge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		OrdersCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merchforge_orders_created_total",
				Help: "Total number of orders placed",
			},
		),
		OrderStatusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchforge_order_status_changes_total",
				Help: "Total number of admin order status changes",
			},
			[]string{"status"},
		),
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchforge_emails_sent_total",
				Help: "Total number of transactional emails by kind and outcome",
			},
			[]string{"kind", "result"},
		),
		StatsCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchforge_stats_cache_lookups_total",
				Help: "Admin statistics cache lookups by result",
			},
			[]string{"result"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchforge_events_published_total",
				Help: "Order events handed to the message broker by type and outcome",
			},
			[]string{"type", "result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersCreatedTotal,
		m.OrderStatusChanges,
		m.EmailsSentTotal,
		m.StatsCacheLookups,
		m.EventsPublishedTotal,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labelled by the matched chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Outcome labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultHit   = "hit"
	ResultMiss  = "miss"
)

// ObserveEmail counts one email send attempt.
func (m *Metrics) ObserveEmail(kind string, err error) {
	if m == nil {
		return
	}
	m.EmailsSentTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// ObserveEvent counts one broker publish attempt.
func (m *Metrics) ObserveEvent(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, outcome(err)).Inc()
}

// ObserveStatsCache counts one statistics cache lookup.
func (m *Metrics) ObserveStatsCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.StatsCacheLookups.WithLabelValues(ResultHit).Inc()
		return
	}
	m.StatsCacheLookups.WithLabelValues(ResultMiss).Inc()
}

// ObserveOrderCreated counts one placed order.
func (m *Metrics) ObserveOrderCreated() {
	if m == nil {
		return
	}
	m.OrdersCreatedTotal.Inc()
}

// ObserveStatusChange counts one admin status update.
func (m *Metrics) ObserveStatusChange(status string) {
	if m == nil {
		return
	}
	m.OrderStatusChanges.WithLabelValues(status).Inc()
}

func outcome(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
