//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/email"
	"github.com/kjstillabower/dogwalk-index/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	GeocodingURL string
	ForecastURL  string
	Timeout      time.Duration
	// ResendAPIKey and Recipient enable live email tests when both are set.
	ResendAPIKey string
	Recipient    string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test under -short since every integration test hits Open-Meteo.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping live Open-Meteo test in short mode")
	}
	return IntegrationTestConfig{
		GeocodingURL: os.Getenv("GEOCODING_URL"),
		ForecastURL:  os.Getenv("FORECAST_URL"),
		Timeout:      10 * time.Second,
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		Recipient:    os.Getenv("DOGWALK_TEST_EMAIL"),
	}
}

// SetupIntegrationService returns a ForecastService backed by the live Open-Meteo APIs.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) *service.ForecastService {
	t.Helper()
	opts := client.Options{Timeout: cfg.Timeout}
	return service.NewForecastService(
		client.NewOpenMeteoGeocoder(cfg.GeocodingURL, opts),
		client.NewOpenMeteoForecaster(cfg.ForecastURL, opts),
	)
}

// SetupIntegrationDigest returns a Digest sending through live Resend. Skips when
// RESEND_API_KEY or DOGWALK_TEST_EMAIL is unset.
func SetupIntegrationDigest(t *testing.T, cfg IntegrationTestConfig, svc *service.ForecastService) *email.Digest {
	t.Helper()
	if cfg.ResendAPIKey == "" || cfg.Recipient == "" {
		t.Skip("RESEND_API_KEY or DOGWALK_TEST_EMAIL not set, skipping live email test")
	}
	sender := client.NewResendClient(cfg.ResendAPIKey, "", client.Options{Timeout: cfg.Timeout})
	return email.NewDigest(svc, sender, "")
}
