package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/dogwalk-index/internal/traffic"
)

// Upstream labels used across client metrics.
const (
	UpstreamGeocoding = "geocoding"
	UpstreamForecast  = "forecast"
	UpstreamResend    = "resend"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate per upstream (geocoding, forecast, resend) and status class.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s (Open-Meteo degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Upstream failures by CategorizeError label.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Geocoding calls avoided because the query matched the default location.
	DefaultLocationShortCircuitTotal prometheus.Counter

	// Forecast builds by outcome (success, resolution_error, fetch_error).
	ForecastBuildsTotal *prometheus.CounterVec

	// Slices produced by badge. Watch for: a run of Poor during an outage of sane data.
	SlicesByBadgeTotal *prometheus.CounterVec

	// Distribution of slice scores.
	SuitabilityScore prometheus.Histogram

	// Digest emails by status (sent, failed).
	EmailsSentTotal *prometheus.CounterVec

	// Scheduled digest runs by status (success, error, skipped).
	DigestRunsTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream API calls",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Upstream API failures by error category",
		},
		[]string{"upstream", "category"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
		},
		[]string{"upstream"},
	)
	DefaultLocationShortCircuitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "defaultLocationShortCircuitTotal",
			Help: "Location queries answered with the built-in default without geocoding",
		},
	)
	ForecastBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastBuildsTotal",
			Help: "Forecast builds by outcome",
		},
		[]string{"outcome"},
	)
	SlicesByBadgeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastSlicesByBadgeTotal",
			Help: "Forecast slices produced per suitability badge",
		},
		[]string{"badge"},
	)
	SuitabilityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "suitabilityScore",
			Help:    "Distribution of slice suitability scores",
			Buckets: []float64{10, 25, 50, 60, 75, 90, 100},
		},
	)
	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailsSentTotal",
			Help: "Digest emails by delivery status",
		},
		[]string{"status"},
	)
	DigestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digestRunsTotal",
			Help: "Scheduled digest runs by status",
		},
		[]string{"status"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal, CircuitBreakerState,
		DefaultLocationShortCircuitTotal, ForecastBuildsTotal, SlicesByBadgeTotal, SuitabilityScore,
		EmailsSentTotal, DigestRunsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordSlice records the score and badge of one produced forecast slice.
func RecordSlice(score int, badge string) {
	SlicesByBadgeTotal.WithLabelValues(badge).Inc()
	SuitabilityScore.Observe(float64(score))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
