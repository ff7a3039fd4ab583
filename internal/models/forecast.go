package models

import "time"

// LocationRequest identifies where a forecast is wanted. Coordinates win over
// the free-text query when both Latitude and Longitude are set.
type LocationRequest struct {
	Query     string
	Latitude  *float64
	Longitude *float64
}

// HasCoordinates reports whether both coordinates were supplied.
func (r LocationRequest) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// ResolvedLocation is the outcome of location resolution.
type ResolvedLocation struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSummary is the location block of a ForecastResponse.
type LocationSummary struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	// UTCOffsetSeconds is the provider's offset for Timezone, used when the
	// zone name is not in the local tz database.
	UTCOffsetSeconds int `json:"utcOffsetSeconds"`
}

// HourlySeries holds the parallel hourly arrays returned by the forecast provider.
// Every value slice is index-aligned with Time.
type HourlySeries struct {
	Timezone         string
	UTCOffsetSeconds int
	// Location is the zone Time values were parsed in. Nil means UTC.
	Location                 *time.Location
	Time                     []time.Time
	Temperature              []float64
	ApparentTemperature      []float64
	Precipitation            []float64
	PrecipitationProbability []float64
	WindSpeed                []float64
}

// ForecastSlice is one sampled instant with its suitability.
type ForecastSlice struct {
	ISOTime        string            `json:"isoTime"`
	LocalTimeLabel string            `json:"localTimeLabel"`
	Parameters     SuitabilityInputs `json:"parameters"`
	Suitability    SuitabilityResult `json:"suitability"`
}

// ForecastResponse is the full result of a forecast build.
type ForecastResponse struct {
	Location    LocationSummary `json:"location"`
	GeneratedAt string          `json:"generatedAt"`
	Slices      []ForecastSlice `json:"slices"`
	Source      string          `json:"source"`
}

// BestSlice returns the slice with the highest score. Ties go to the earliest slice.
func (r ForecastResponse) BestSlice() (ForecastSlice, bool) {
	if len(r.Slices) == 0 {
		return ForecastSlice{}, false
	}
	best := r.Slices[0]
	for _, s := range r.Slices[1:] {
		if s.Suitability.Score > best.Suitability.Score {
			best = s
		}
	}
	return best, true
}
