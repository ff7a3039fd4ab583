// Package suitability scores weather parameters for dog-walk comfort.
package suitability

import (
	"math"

	"github.com/kjstillabower/dogwalk-index/internal/models"
)

// Factor strings. Their order in a result follows rule evaluation order.
const (
	FactorSteadyRain   = "Steady rain expected"
	FactorDrizzle      = "Light drizzle possible"
	FactorPrecipChance = "Elevated chance of precipitation"
	FactorBreezy       = "Breezy conditions"
	FactorBundleUp     = "Bundle up"
	FactorIcyPaws      = "Watch for icy paws"
	FactorWarm         = "Warm and potentially uncomfortable"
	FactorExtraWater   = "Bring extra water"
	FactorRainJacket   = "Wear a rain jacket"
)

const (
	summaryPrime = "Great window for a walk"
	summaryFair  = "Acceptable with minor tradeoffs"
	summaryPoor  = "Consider waiting for better conditions"

	maxScore       = 100.0
	primeThreshold = 75
	fairThreshold  = 50

	comfortLowC         = 10.0
	comfortHighC        = 26.0
	precipProbThreshold = 35.0
	rainJacketThreshold = 55.0
	breezyThresholdKph  = 24.0
)

// rule evaluates one condition. It returns the penalty to subtract and the
// factors to append; a rule that does not trigger returns 0 and nil.
// Triggers are written as positive comparisons so a NaN input never fires.
type rule func(in models.SuitabilityInputs) (float64, []string)

// rules run in this exact order; factor order in results depends on it.
var rules = []rule{
	precipitationRule,
	precipitationChanceRule,
	windRule,
	coldRule,
	heatRule,
	rainJacketRule,
}

func precipitationRule(in models.SuitabilityInputs) (float64, []string) {
	if !(in.PrecipitationMm > 0) {
		return 0, nil
	}
	penalty := math.Min(35, in.PrecipitationMm*12)
	if penalty > 15 {
		return penalty, []string{FactorSteadyRain}
	}
	return penalty, []string{FactorDrizzle}
}

func precipitationChanceRule(in models.SuitabilityInputs) (float64, []string) {
	if !(in.PrecipitationProbability > precipProbThreshold) {
		return 0, nil
	}
	return (in.PrecipitationProbability - precipProbThreshold) / 65 * 20, []string{FactorPrecipChance}
}

func windRule(in models.SuitabilityInputs) (float64, []string) {
	if !(in.WindSpeedKph > breezyThresholdKph) {
		return 0, nil
	}
	return math.Min(20, (in.WindSpeedKph-breezyThresholdKph)*0.8), []string{FactorBreezy}
}

func coldRule(in models.SuitabilityInputs) (float64, []string) {
	feels := in.ApparentTemperatureC
	if !(feels < comfortLowC) {
		return 0, nil
	}
	var factors []string
	if feels < 5 {
		factors = append(factors, FactorBundleUp)
	}
	if feels < -5 {
		factors = append(factors, FactorIcyPaws)
	}
	return math.Min(40, (comfortLowC-feels)*1.7), factors
}

func heatRule(in models.SuitabilityInputs) (float64, []string) {
	feels := in.ApparentTemperatureC
	if !(feels > comfortHighC) {
		return 0, nil
	}
	factors := []string{FactorWarm}
	if feels > 30 {
		factors = append(factors, FactorExtraWater)
	}
	return math.Min(35, (feels-comfortHighC)*1.5), factors
}

// rainJacketRule is informational only and co-occurs with precipitationChanceRule.
func rainJacketRule(in models.SuitabilityInputs) (float64, []string) {
	if in.PrecipitationProbability > rainJacketThreshold {
		return 0, []string{FactorRainJacket}
	}
	return 0, nil
}

// Score maps inputs to a 0-100 score, a badge, a summary and the triggered factors.
// Penalties are summed, then the total is clamped once and rounded.
func Score(in models.SuitabilityInputs) models.SuitabilityResult {
	score := maxScore
	factors := make([]string, 0, 4)
	for _, r := range rules {
		penalty, fs := r(in)
		score -= penalty
		factors = append(factors, fs...)
	}
	score = math.Max(0, math.Min(maxScore, score))
	rounded := int(math.Round(score))

	badge := BadgeFor(rounded)
	return models.SuitabilityResult{
		Score:   rounded,
		Badge:   badge,
		Summary: SummaryFor(badge),
		Factors: factors,
	}
}

// BadgeFor returns the badge for an already rounded score.
func BadgeFor(score int) models.Badge {
	switch {
	case score >= primeThreshold:
		return models.BadgePrime
	case score >= fairThreshold:
		return models.BadgeFair
	default:
		return models.BadgePoor
	}
}

// SummaryFor returns the fixed summary sentence for a badge.
func SummaryFor(b models.Badge) string {
	switch b {
	case models.BadgePrime:
		return summaryPrime
	case models.BadgeFair:
		return summaryFair
	default:
		return summaryPoor
	}
}
