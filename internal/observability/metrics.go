package observability

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// It also implements orders.Recorder.
type Metrics struct {
	registry     *prometheus.Registry
	Requests     *prometheus.CounterVec
	LatencyMS    *prometheus.HistogramVec
	Reservations *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
}

func NewMetrics(service string) *Metrics {
	subsystem := strings.ReplaceAll(service, "-", "_")
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orders",
			Subsystem: subsystem,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Subsystem: subsystem,
			Name:      "reservations_total",
			Help:      "Stock reservations by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "Order status transitions by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.Requests, m.LatencyMS, m.Reservations, m.Transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveReservation(outcome string) {
	m.Reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(outcome string) {
	m.Transitions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRequest(route, method string, status int, latencyMS float64) {
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(latencyMS)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
