package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// NewRouter wires the public routes. The forecast and email routes are rate
// limited and bounded by requestTimeout; /health and /metrics are not.
func NewRouter(h *Handler, logger *zap.Logger, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(h.inFlight.Track)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	limited := func(fn http.HandlerFunc) http.Handler {
		return RateLimitMiddleware(h.rateLimiter)(TimeoutMiddleware(requestTimeout)(fn))
	}

	router.Handle("/forecast", limited(h.GetForecast)).Methods("GET")
	router.Handle("/email", limited(h.PostEmail)).Methods("POST")
	router.Handle("/cron-email", limited(h.GetCronEmail)).Methods("GET")
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	return router
}
