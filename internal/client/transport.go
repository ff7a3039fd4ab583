package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// maxErrorBody bounds how much of a non-2xx body is kept in error messages.
const maxErrorBody = 512

// Options configures the HTTP behaviour shared by every upstream client.
type Options struct {
	// Timeout is the per-call http.Client timeout. Zero keeps the transport default (none).
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout. Used by tests.
	HTTPClient *http.Client
	Breaker    BreakerConfig
}

// BreakerConfig enables an optional circuit breaker in front of an upstream.
type BreakerConfig struct {
	Enabled bool
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a half-open probe.
	OpenTimeout time.Duration
}

// upstream executes requests against one named upstream, recording metrics
// and mapping HTTP status codes to client sentinel errors.
type upstream struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newUpstream(name string, opts Options) *upstream {
	c := opts.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: opts.Timeout}
	}
	return &upstream{
		name:    name,
		client:  c,
		breaker: newBreaker(name, opts.Breaker),
	}
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	observability.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// response is a fully read upstream reply.
type response struct {
	statusCode int
	body       []byte
}

// do sends req and returns the body of a 2xx response. Non-2xx statuses are
// mapped with handleErrorResponse. Transport errors, 429 and 5xx count as
// breaker failures; other 4xx do not.
func (u *upstream) do(ctx context.Context, req *http.Request) ([]byte, error) {
	logger := observability.LoggerFromContext(ctx)
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	start := time.Now()
	resp, err := u.execute(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(u.name, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(u.name, "error").Observe(duration)
		observability.UpstreamErrorsTotal.WithLabelValues(u.name, string(CategorizeError(err))).Inc()
		logger.Debug("upstream call failed", zap.String("upstream", u.name), zap.Error(err))
		return nil, err
	}

	status := statusLabel(resp.statusCode)
	observability.UpstreamCallsTotal.WithLabelValues(u.name, status).Inc()
	observability.UpstreamDuration.WithLabelValues(u.name, status).Observe(duration)

	if err := handleErrorResponse(resp.statusCode, resp.body); err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(u.name, string(CategorizeError(err))).Inc()
		logger.Debug("upstream returned error status",
			zap.String("upstream", u.name),
			zap.Int("status", resp.statusCode),
			zap.Error(err))
		return nil, err
	}
	return resp.body, nil
}

func (u *upstream) execute(req *http.Request) (response, error) {
	if u.breaker == nil {
		return u.roundTrip(req)
	}
	result, err := u.breaker.Execute(func() (interface{}, error) {
		resp, err := u.roundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.statusCode == http.StatusTooManyRequests || resp.statusCode >= 500 {
			return resp, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.statusCode)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return response{}, fmt.Errorf("%s: %w", u.name, ErrCircuitOpen)
	}
	if resp, ok := result.(response); ok {
		// Breaker-counted status failures still carry the reply for precise mapping.
		return resp, nil
	}
	return response{}, err
}

func (u *upstream) roundTrip(req *http.Request) (response, error) {
	resp, err := u.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return response{}, fmt.Errorf("request timeout: %w", err)
		}
		return response{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read response body: %w", err)
	}
	return response{statusCode: resp.StatusCode, body: body}, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, statusCode)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}
	if reason := errorReason(body); reason != "" {
		return fmt.Errorf("%w: HTTP %d: %s", ErrUpstreamFailure, statusCode, reason)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
}

// errorReason returns the trimmed body, cut to maxErrorBody bytes on a rune boundary.
func errorReason(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	n := maxErrorBody
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
