// Package metrics exposes Prometheus collectors for the HTTP layer and the
// seat hold engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service registers.
type Metrics struct {
	// HTTP requests (method, path, status_code)
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP latency (method, path)
	HTTPRequestDuration *prometheus.HistogramVec

	// hold operations (op: acquire, extend, refresh, release; result: ok or an error code)
	HoldsTotal *prometheus.CounterVec

	// finalize attempts (result: ok or an error code)
	BookingsTotal *prometheus.CounterVec

	// seats returned to available by expiry (source: lazy, sweep, task)
	ExpiredSeatsTotal *prometheus.CounterVec

	// broadcast events dropped (stage: dispatch, sink, subscriber)
	EventsDroppedTotal *prometheus.CounterVec

	// open realtime subscriptions
	Subscribers prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates collectors registered on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.  When reg is also a
// Gatherer, Handler serves it; otherwise the default gatherer is used.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HoldsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_hold_operations_total",
				Help: "Seat hold operations by kind and outcome",
			},
			[]string{"op", "result"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_bookings_total",
				Help: "Booking finalize attempts by outcome",
			},
			[]string{"result"},
		),
		ExpiredSeatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_holds_expired_total",
				Help: "Seats released because their hold TTL lapsed",
			},
			[]string{"source"},
		),
		EventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_dropped_total",
				Help: "Seat events dropped before reaching a subscriber",
			},
			[]string{"stage"},
		),
		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_subscribers",
				Help: "Open realtime subscriptions",
			},
		),
		gatherer: prometheus.DefaultGatherer,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HoldsTotal,
		m.BookingsTotal,
		m.ExpiredSeatsTotal,
		m.EventsDroppedTotal,
		m.Subscribers,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			method := c.Request().Method

			m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
			return err
		}
	}
}
