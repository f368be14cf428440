package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	m.IncGeocode(GeocodeHit)
	m.IncLayerToggle("highways", false)
	m.SessionOpened()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 12*time.Millisecond)
	m.IncGeocode(GeocodeMiss)
	m.IncGeocode(GeocodeMiss)
	m.IncLayerToggle("highways", false)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	for _, want := range []string{
		`platmap_http_requests_total{method="GET",path="/health",status="200"} 1`,
		`platmap_geocode_requests_total{outcome="miss"} 2`,
		`platmap_layer_toggles_total{group="highways",visible="false"} 1`,
		`platmap_active_sessions 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body=%s", want, body)
		}
	}
}
