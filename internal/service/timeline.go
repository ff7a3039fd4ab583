package service

import (
	"time"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
	"github.com/kjstillabower/dogwalk-index/internal/suitability"
)

// SliceOffsets are the forward offsets from "now" at which slices are sampled.
var SliceOffsets = []time.Duration{0, 30 * time.Minute, 60 * time.Minute}

const (
	isoLayout   = "2006-01-02T15:04:05.000Z"
	labelLayout = "3:04 PM"
)

// SampleSeries returns the value of a piecewise-linear series at target.
// Targets outside the series are clamped to the first or last value; an
// empty series yields values[0] when present, else 0.
func SampleSeries(times []time.Time, values []float64, target time.Time) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(times) == 0 || !target.After(times[0]) {
		return values[0]
	}

	n := min(len(times), len(values))
	for i := 0; i+1 < n; i++ {
		start, end := times[i], times[i+1]
		if target.Before(start) || target.After(end) {
			continue
		}
		span := end.Sub(start)
		if span <= 0 || target.Equal(start) {
			return values[i]
		}
		if target.Equal(end) {
			return values[i+1]
		}
		ratio := float64(target.Sub(start)) / float64(span)
		return values[i] + ratio*(values[i+1]-values[i])
	}
	return values[n-1]
}

// sampleInputs samples every tracked metric at target on the shared time axis.
func sampleInputs(series models.HourlySeries, target time.Time) models.SuitabilityInputs {
	return models.SuitabilityInputs{
		TemperatureC:             SampleSeries(series.Time, series.Temperature, target),
		ApparentTemperatureC:     SampleSeries(series.Time, series.ApparentTemperature, target),
		PrecipitationMm:          SampleSeries(series.Time, series.Precipitation, target),
		PrecipitationProbability: SampleSeries(series.Time, series.PrecipitationProbability, target),
		WindSpeedKph:             SampleSeries(series.Time, series.WindSpeed, target),
	}
}

// buildSlices produces one scored slice per SliceOffsets entry, anchored at now.
func buildSlices(series models.HourlySeries, now time.Time) []models.ForecastSlice {
	loc := seriesLocation(series)
	slices := make([]models.ForecastSlice, 0, len(SliceOffsets))
	for _, offset := range SliceOffsets {
		target := now.Add(offset)
		inputs := sampleInputs(series, target)
		result := suitability.Score(inputs)
		observability.RecordSlice(result.Score, string(result.Badge))

		slices = append(slices, models.ForecastSlice{
			ISOTime:        formatISO(target),
			LocalTimeLabel: target.In(loc).Format(labelLayout),
			Parameters:     inputs,
			Suitability:    result,
		})
	}
	return slices
}

func seriesLocation(series models.HourlySeries) *time.Location {
	if series.Location != nil {
		return series.Location
	}
	return client.LoadZone(series.Timezone, series.UTCOffsetSeconds)
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
