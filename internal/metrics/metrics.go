// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Geocode outcomes.
const (
	GeocodeHit      = "hit"
	GeocodeMiss     = "miss"
	GeocodeNotFound = "not_found"
	GeocodeError    = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	geocodeRequests     *prometheus.CounterVec
	layerToggles        *prometheus.CounterVec
	activeSessions      prometheus.Gauge
}

// New creates a private registry with every collector registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platmap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "platmap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	geocodeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platmap",
		Name:      "geocode_requests_total",
		Help:      "Geocoding lookups by outcome",
	}, []string{"outcome"})

	layerToggles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platmap",
		Name:      "layer_toggles_total",
		Help:      "Layer group visibility changes",
	}, []string{"group", "visible"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "platmap",
		Name:      "active_sessions",
		Help:      "Map sessions currently open",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		geocodeRequests,
		layerToggles,
		activeSessions,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		geocodeRequests:     geocodeRequests,
		layerToggles:        layerToggles,
		activeSessions:      activeSessions,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncGeocode counts one lookup with the given outcome.
func (m *Metrics) IncGeocode(outcome string) {
	if m == nil {
		return
	}
	m.geocodeRequests.WithLabelValues(outcome).Inc()
}

// IncLayerToggle counts one layer group change.
func (m *Metrics) IncLayerToggle(group string, visible bool) {
	if m == nil {
		return
	}
	m.layerToggles.WithLabelValues(group, strconv.FormatBool(visible)).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
