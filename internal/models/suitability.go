package models

// SuitabilityInputs are the weather parameters sampled for a single instant.
type SuitabilityInputs struct {
	TemperatureC             float64 `json:"temperatureC"`
	ApparentTemperatureC     float64 `json:"apparentTemperatureC"`
	PrecipitationMm          float64 `json:"precipitationMm"`
	PrecipitationProbability float64 `json:"precipitationProbability"`
	WindSpeedKph             float64 `json:"windSpeedKph"`
}

// Badge is the categorical label derived from a suitability score.
type Badge string

const (
	BadgePoor  Badge = "Poor"
	BadgeFair  Badge = "Fair"
	BadgePrime Badge = "Prime"
)

// SuitabilityResult is the scored outcome for one set of inputs.
type SuitabilityResult struct {
	Score   int      `json:"score"`
	Badge   Badge    `json:"badge"`
	Summary string   `json:"summary"`
	Factors []string `json:"factors"`
}
