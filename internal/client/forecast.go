package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// DefaultForecastURL is the Open-Meteo forecast endpoint.
const DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

// HourlyMetrics are the hourly variables requested from the forecast provider.
var HourlyMetrics = []string{
	"temperature_2m",
	"apparent_temperature",
	"precipitation",
	"precipitation_probability",
	"wind_speed_10m",
}

// Open-Meteo returns local wall-clock timestamps without an offset when timezone=auto.
var hourlyTimeLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339}

// ForecastProvider fetches an hourly series for a coordinate pair.
type ForecastProvider interface {
	FetchHourly(ctx context.Context, latitude, longitude float64) (models.HourlySeries, error)
}

// OpenMeteoForecaster implements ForecastProvider against the Open-Meteo forecast API.
type OpenMeteoForecaster struct {
	baseURL  string
	upstream *upstream
}

// NewOpenMeteoForecaster returns a forecaster for baseURL (DefaultForecastURL when empty).
func NewOpenMeteoForecaster(baseURL string, opts Options) *OpenMeteoForecaster {
	if baseURL == "" {
		baseURL = DefaultForecastURL
	}
	return &OpenMeteoForecaster{
		baseURL:  baseURL,
		upstream: newUpstream(observability.UpstreamForecast, opts),
	}
}

type forecastResponse struct {
	Timezone         string `json:"timezone"`
	UTCOffsetSeconds int    `json:"utc_offset_seconds"`
	Hourly           struct {
		Time                     []string  `json:"time"`
		Temperature2m            []float64 `json:"temperature_2m"`
		ApparentTemperature      []float64 `json:"apparent_temperature"`
		Precipitation            []float64 `json:"precipitation"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		WindSpeed10m             []float64 `json:"wind_speed_10m"`
	} `json:"hourly"`
}

// FetchHourly requests the tracked hourly metrics with timezone=auto.
// JSON nulls inside the hourly arrays decode as 0.
func (f *OpenMeteoForecaster) FetchHourly(ctx context.Context, latitude, longitude float64) (models.HourlySeries, error) {
	req, err := f.buildRequest(ctx, latitude, longitude)
	if err != nil {
		return models.HourlySeries{}, fmt.Errorf("build request: %w", err)
	}

	body, err := f.upstream.do(ctx, req)
	if err != nil {
		return models.HourlySeries{}, err
	}

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.HourlySeries{}, fmt.Errorf("%w: parse forecast response: %v", ErrInvalidPayload, err)
	}
	return mapForecastResponse(resp)
}

func (f *OpenMeteoForecaster) buildRequest(ctx context.Context, latitude, longitude float64) (*http.Request, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid forecast URL: %w", err)
	}
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	params.Set("hourly", strings.Join(HourlyMetrics, ","))
	params.Set("current_weather", "true")
	params.Set("timezone", "auto")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func mapForecastResponse(resp forecastResponse) (models.HourlySeries, error) {
	h := resp.Hourly
	n := len(h.Time)
	for name, values := range map[string][]float64{
		"temperature_2m":            h.Temperature2m,
		"apparent_temperature":      h.ApparentTemperature,
		"precipitation":             h.Precipitation,
		"precipitation_probability": h.PrecipitationProbability,
		"wind_speed_10m":            h.WindSpeed10m,
	} {
		if len(values) != n {
			return models.HourlySeries{}, fmt.Errorf("%w: %s has %d values for %d timestamps", ErrInvalidPayload, name, len(values), n)
		}
	}

	loc := LoadZone(resp.Timezone, resp.UTCOffsetSeconds)
	times := make([]time.Time, n)
	for i, raw := range h.Time {
		ts, err := parseHourlyTime(raw, loc)
		if err != nil {
			return models.HourlySeries{}, fmt.Errorf("%w: hourly time %q: %v", ErrInvalidPayload, raw, err)
		}
		times[i] = ts
	}

	return models.HourlySeries{
		Timezone:                 resp.Timezone,
		UTCOffsetSeconds:         resp.UTCOffsetSeconds,
		Location:                 loc,
		Time:                     times,
		Temperature:              h.Temperature2m,
		ApparentTemperature:      h.ApparentTemperature,
		Precipitation:            h.Precipitation,
		PrecipitationProbability: h.PrecipitationProbability,
		WindSpeed:                h.WindSpeed10m,
	}, nil
}

func parseHourlyTime(raw string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range hourlyTimeLayouts {
		ts, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// LoadZone resolves an IANA timezone name, falling back to a fixed zone built
// from offsetSeconds when the name is unknown to the local tz database.
func LoadZone(name string, offsetSeconds int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if offsetSeconds == 0 {
		return time.UTC
	}
	label := name
	if label == "" {
		label = fmt.Sprintf("UTC%+03d:%02d", offsetSeconds/3600, abs(offsetSeconds%3600)/60)
	}
	return time.FixedZone(label, offsetSeconds)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
