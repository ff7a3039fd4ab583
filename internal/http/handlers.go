package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/degraded"
	"github.com/kjstillabower/dogwalk-index/internal/lifecycle"
	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
	"github.com/kjstillabower/dogwalk-index/internal/service"
	"github.com/kjstillabower/dogwalk-index/internal/traffic"
	"github.com/kjstillabower/dogwalk-index/internal/validation"
)

// maxBodyBytes bounds POST /email bodies.
const maxBodyBytes = 1 << 16

// ForecastBuilder builds a scored forecast for a location request.
type ForecastBuilder interface {
	BuildForecast(ctx context.Context, req models.LocationRequest) (models.ForecastResponse, error)
}

// DigestSender builds a forecast and emails it to recipient.
type DigestSender interface {
	Send(ctx context.Context, recipient string, req models.LocationRequest) (models.ForecastResponse, error)
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	RateLimitBurst       int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	// Idle is reported once lifecycle.Uptime reaches MinimumLifespan and fewer
	// than IdleThresholdReqPerMin requests arrived within IdleWindow.
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
}

// EmailConfig holds the email endpoints' settings.
type EmailConfig struct {
	// Token, when set, must accompany POST /email as a bearer header or body field.
	Token string
	// CronRecipient receives the GET /cron-email digest. Empty makes the endpoint fail.
	CronRecipient string
	CronRequest   models.LocationRequest
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts        ForecastBuilder
	digest           DigestSender
	emailConfig      EmailConfig
	healthConfig     *HealthConfig
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	recovery         *degraded.Recovery
	inFlight         *InFlight
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. recovery may be nil.
func NewHandler(
	forecasts ForecastBuilder,
	digest DigestSender,
	emailConfig EmailConfig,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
	recovery *degraded.Recovery,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		forecasts:    forecasts,
		digest:       digest,
		emailConfig:  emailConfig,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
		recovery:     recovery,
		inFlight:     &InFlight{},
	}
}

// InFlight returns the tracker of requests served through this handler's router.
func (h *Handler) InFlight() *InFlight {
	return h.inFlight
}

// GetForecast handles GET /forecast?location=&lat=&lon=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location, err := validation.ValidateLocation(q.Get("location"))
	if err != nil {
		traffic.Record(traffic.OutcomeClientError)
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	lat, lon, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		traffic.Record(traffic.OutcomeClientError)
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.forecasts.BuildForecast(r.Context(), models.LocationRequest{
		Query:     location,
		Latitude:  lat,
		Longitude: lon,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	traffic.Record(traffic.OutcomeSuccess)
	writeJSON(w, http.StatusOK, result)
}

// PostEmail handles POST /email with a JSON validation.EmailRequest body.
func (h *Handler) PostEmail(w http.ResponseWriter, r *http.Request) {
	var req validation.EmailRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		traffic.Record(traffic.OutcomeClientError)
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "An email address is required")
		return
	}
	if err := validation.Struct(req); err != nil {
		traffic.Record(traffic.OutcomeClientError)
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if !h.authorized(r, req.Token) {
		traffic.Record(traffic.OutcomeClientError)
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid access token")
		return
	}

	loc := models.LocationRequest{
		Query:     strings.TrimSpace(req.Location),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	if _, err := h.digest.Send(r.Context(), req.Email, loc); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	traffic.Record(traffic.OutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetCronEmail handles GET /cron-email, sending the digest to the configured recipient.
func (h *Handler) GetCronEmail(w http.ResponseWriter, r *http.Request) {
	if h.emailConfig.CronRecipient == "" {
		writeError(w, r, http.StatusInternalServerError, "CONFIG_MISSING", "DOGWALK_CRON_EMAIL environment variable is missing")
		return
	}
	if _, err := h.digest.Send(r.Context(), h.emailConfig.CronRecipient, h.emailConfig.CronRequest); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	traffic.Record(traffic.OutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// authorized compares the bearer header and body token against the configured
// token in constant time. No configured token allows every request.
func (h *Handler) authorized(r *http.Request, bodyToken string) bool {
	want := h.emailConfig.Token
	if want == "" {
		return true
	}
	return tokenEqual(bearerToken(r.Header.Get("Authorization")), want) ||
		tokenEqual(strings.TrimSpace(bodyToken), want)
}

// bearerToken extracts the credentials of a "Bearer <token>" header. The
// scheme is case-insensitive; any other scheme yields "".
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func tokenEqual(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	if result.status == "degraded" {
		h.recovery.Notify()
	}

	checks := map[string]string{"openMeteo": "healthy"}
	if result.status == "degraded" {
		checks["openMeteo"] = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "dogwalk-index",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.IdleWindow > 0 && h.healthConfig.MinimumLifespan > 0 && lifecycle.Uptime() >= h.healthConfig.MinimumLifespan {
		if traffic.RequestCount(h.healthConfig.IdleWindow) < h.healthConfig.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if degraded.Breached(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeDomainError maps forecast and digest failures to status codes and
// records the outcome for health tracking.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, service.ErrResolution):
		// A geocoder outage still counts against upstream health.
		if errors.Is(err, client.ErrLocationNotFound) {
			traffic.Record(traffic.OutcomeClientError)
		} else {
			traffic.Record(traffic.OutcomeUpstreamError)
		}
		logger.Debug("location unresolved", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "LOCATION_UNRESOLVED", resolutionMessage(err))
	case errors.Is(err, client.ErrMissingAPIKey):
		logger.Error("email delivery not configured", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "CONFIG_MISSING", "RESEND_API_KEY is not configured")
	case errors.Is(err, client.ErrSendFailed):
		traffic.Record(traffic.OutcomeUpstreamError)
		writeError(w, r, http.StatusBadGateway, "EMAIL_FAILED", "Unable to send email")
	case errors.Is(err, service.ErrFetch), errors.Is(err, context.DeadlineExceeded):
		traffic.Record(traffic.OutcomeUpstreamError)
		writeServiceError(w, r, err)
	default:
		traffic.Record(traffic.OutcomeUpstreamError)
		logger.Error("unexpected handler error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unable to prepare forecast")
	}
}

func resolutionMessage(err error) string {
	if errors.Is(err, client.ErrLocationNotFound) {
		return "Unable to find that location"
	}
	return fmt.Sprintf("Unable to resolve location (%s)", client.CategorizeError(err))
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes a 503 Service Unavailable error response for upstream failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch forecast data")
	observability.LoggerFromContext(r.Context()).Debug("upstream error",
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
}
