package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// Source is the provenance string attached to every forecast.
const Source = "Open-Meteo.com"

var (
	// ErrResolution means the location could not be resolved to coordinates.
	ErrResolution = errors.New("location resolution failed")
	// ErrFetch means the hourly forecast could not be retrieved.
	ErrFetch = errors.New("forecast fetch failed")
)

// ForecastService builds dog-walk forecasts: resolve, fetch, sample, score.
// It holds no per-request state and is safe for concurrent use.
type ForecastService struct {
	resolver   *LocationResolver
	forecaster client.ForecastProvider
	now        func() time.Time
}

// NewForecastService wires a resolver over geocoder and the forecast provider.
func NewForecastService(geocoder client.Geocoder, forecaster client.ForecastProvider) *ForecastService {
	return &ForecastService{
		resolver:   NewLocationResolver(geocoder),
		forecaster: forecaster,
		now:        time.Now,
	}
}

// BuildForecast returns slices at SliceOffsets from the current time.
// Geocoding, when needed, completes before the forecast fetch; any failure
// fails the whole build with ErrResolution or ErrFetch.
func (s *ForecastService) BuildForecast(ctx context.Context, req models.LocationRequest) (models.ForecastResponse, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	loc, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		observability.ForecastBuildsTotal.WithLabelValues("resolution_error").Inc()
		return models.ForecastResponse{}, err
	}

	series, err := s.forecaster.FetchHourly(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		observability.ForecastBuildsTotal.WithLabelValues("fetch_error").Inc()
		logger.Warn("forecast fetch failed",
			zap.String("location", loc.Name),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.ForecastResponse{}, fmt.Errorf("%w: %s: %w", ErrFetch, loc.Name, err)
	}

	now := s.now()
	resp := models.ForecastResponse{
		Location: models.LocationSummary{
			Name:      loc.Name,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Timezone:  series.Timezone,

			UTCOffsetSeconds: series.UTCOffsetSeconds,
		},
		GeneratedAt: formatISO(now),
		Slices:      buildSlices(series, now),
		Source:      Source,
	}

	observability.ForecastBuildsTotal.WithLabelValues("success").Inc()
	logger.Debug("forecast built",
		zap.String("location", loc.Name),
		zap.Int("hours", len(series.Time)),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}
