package telemetry

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service on a private registry.
type Metrics struct {
	registry            *prometheus.Registry
	labels              prometheus.Labels
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	LogEventsTotal      *prometheus.CounterVec
	AuthEventsTotal     *prometheus.CounterVec
	TokenRefreshTotal   *prometheus.CounterVec
	EventsDropped       prometheus.CounterFunc
}

// NewMetrics registers the collectors. serviceName becomes the service label.
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		labels:   labels,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Histogram of HTTP request latency",
				ConstLabels: labels,
				Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		LogEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "log_events_total",
				Help:        "Warn, error and auth events by level",
				ConstLabels: labels,
			},
			[]string{"level"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_events_total",
				Help:        "Authentication lifecycle events",
				ConstLabels: labels,
			},
			[]string{"event"},
		),
		TokenRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "token_refresh_total",
				Help:        "Scheduled token refresh ticks by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LogEventsTotal,
		m.AuthEventsTotal,
		m.TokenRefreshTotal,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency per route template.
// Use it with router.Use so the matched route is known.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		snap := httpsnoop.CaptureMetrics(next, w, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(snap.Code)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(snap.Duration.Seconds())
	})
}

// WatchDispatcher exports the events d dropped because its buffer was full.
func (m *Metrics) WatchDispatcher(d *Dispatcher) {
	if m == nil || d == nil {
		return
	}
	m.EventsDropped = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "telemetry_events_dropped_total",
			Help:        "Telemetry events dropped on a full dispatcher buffer",
			ConstLabels: m.labels,
		},
		func() float64 { return float64(d.Dropped()) },
	)
	m.registry.MustRegister(m.EventsDropped)
}

func (m *Metrics) ObserveEvent(level Level) {
	if m == nil {
		return
	}
	m.LogEventsTotal.WithLabelValues(string(level)).Inc()
}

func (m *Metrics) ObserveAuthEvent(event string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.TokenRefreshTotal.WithLabelValues(result).Inc()
}
