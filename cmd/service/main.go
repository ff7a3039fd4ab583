package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/config"
	"github.com/kjstillabower/dogwalk-index/internal/degraded"
	"github.com/kjstillabower/dogwalk-index/internal/email"
	httphandler "github.com/kjstillabower/dogwalk-index/internal/http"
	"github.com/kjstillabower/dogwalk-index/internal/lifecycle"
	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
	"github.com/kjstillabower/dogwalk-index/internal/scheduler"
	"github.com/kjstillabower/dogwalk-index/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	opts := clientOptions(cfg)
	if opts.Breaker.Enabled {
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", opts.Breaker.FailureThreshold),
			zap.Duration("timeout", opts.Breaker.OpenTimeout))
	}
	geocoder := client.NewOpenMeteoGeocoder(cfg.GeocodingURL, opts)
	forecaster := client.NewOpenMeteoForecaster(cfg.ForecastURL, opts)
	resend := client.NewResendClient(cfg.ResendAPIKey, cfg.ResendURL, opts)
	if !resend.Configured() {
		logger.Warn("RESEND_API_KEY not set; email endpoints will fail with CONFIG_MISSING")
	}

	forecastService := service.NewForecastService(geocoder, forecaster)
	digest := email.NewDigest(forecastService, resend, cfg.EmailFrom)

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	recovery := degraded.NewRecovery(forecastProbe(forecaster), cfg.DegradedRetryInitial, cfg.DegradedRetryMax, logger)
	recovery.Start(appCtx)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		RateLimitBurst:       cfg.RateLimitBurst,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,

		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
	}
	cronRequest := digestRequest(cfg)
	emailConfig := httphandler.EmailConfig{
		Token:         cfg.EmailToken,
		CronRecipient: cfg.DigestRecipient,
		CronRequest:   cronRequest,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(forecastService, digest, emailConfig, healthConfig, logger, limiter, recovery)
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	var digestScheduler *scheduler.Scheduler
	if cfg.DigestEnabled {
		digestScheduler = scheduler.New(digest, cfg.DigestRecipient, cronRequest, cfg.DigestInterval, logger)
		if err := digestScheduler.Start(); err != nil {
			logger.Error("digest scheduler", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler, logger, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout(cfg.RequestTimeout),
	}

	lifecycle.MarkStarted(time.Now())
	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	if digestScheduler != nil {
		digestScheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := handler.InFlight()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.Drain(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	appCancel()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// clientOptions maps upstream settings onto the shared client options.
func clientOptions(cfg *config.Config) client.Options {
	return client.Options{
		Timeout: cfg.UpstreamTimeout,
		Breaker: client.BreakerConfig{
			Enabled:          cfg.CircuitBreakerEnabled,
			FailureThreshold: uint32(cfg.CircuitBreakerFailureThreshold),
			OpenTimeout:      cfg.CircuitBreakerTimeout,
		},
	}
}

// digestRequest is the location used by /cron-email and the scheduled digest.
func digestRequest(cfg *config.Config) models.LocationRequest {
	return models.LocationRequest{
		Query:     cfg.DigestLocation,
		Latitude:  cfg.DigestLatitude,
		Longitude: cfg.DigestLongitude,
	}
}

// forecastProbe fetches the default location's forecast; success means Open-Meteo is back.
func forecastProbe(f client.ForecastProvider) degraded.ProbeFunc {
	return func(ctx context.Context) error {
		_, err := f.FetchHourly(ctx, service.DefaultLocation.Latitude, service.DefaultLocation.Longitude)
		return err
	}
}

// writeTimeout leaves headroom over the request timeout so its error response can be written.
func writeTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return 30 * time.Second
	}
	return requestTimeout + 5*time.Second
}
