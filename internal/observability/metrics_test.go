package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http and service packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/forecast", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/forecast").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues(UpstreamForecast, "success").Inc()
	UpstreamCallsTotal.WithLabelValues(UpstreamGeocoding, "error").Inc()
	UpstreamDuration.WithLabelValues(UpstreamForecast, "success").Observe(0.1)
	UpstreamErrorsTotal.WithLabelValues(UpstreamResend, "upstream_5xx").Inc()
	CircuitBreakerState.WithLabelValues(UpstreamForecast).Set(0)
	DefaultLocationShortCircuitTotal.Inc()
	ForecastBuildsTotal.WithLabelValues("success").Inc()
	EmailsSentTotal.WithLabelValues("sent").Inc()
	DigestRunsTotal.WithLabelValues("skipped").Inc()
	RecordSlice(88, "Prime")
}

// TestRegisterRateLimitGauges_Idempotent verifies repeated registration does not panic.
func TestRegisterRateLimitGauges_Idempotent(t *testing.T) {
	RegisterRateLimitGauges(time.Minute)
	RegisterRateLimitGauges(time.Minute)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
