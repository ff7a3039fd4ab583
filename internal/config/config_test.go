package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var overrideVars = []string{
	"ENV_NAME", "PORT", "RESEND_API_KEY", "RESEND_FROM", "DOGWALK_EMAIL_TOKEN",
	"DOGWALK_CRON_EMAIL", "DOGWALK_CRON_LOCATION", "DOGWALK_CRON_LATITUDE", "DOGWALK_CRON_LONGITUDE",
}

// clearEnv unsets every override variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"\"\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.UpstreamTimeout != 0 {
		t.Errorf("UpstreamTimeout = %v, want 0 (transport default)", cfg.UpstreamTimeout)
	}
	if cfg.RequestTimeout != 0 {
		t.Errorf("RequestTimeout = %v, want 0", cfg.RequestTimeout)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false by default")
	}
	if cfg.GeocodingURL != "" || cfg.ForecastURL != "" {
		t.Errorf("upstream URLs = %q %q, want empty (client defaults)", cfg.GeocodingURL, cfg.ForecastURL)
	}
	if cfg.DigestEnabled || cfg.DigestInterval != 24*time.Hour {
		t.Errorf("digest = %v every %v", cfg.DigestEnabled, cfg.DigestInterval)
	}
	if cfg.ResendAPIKey != "" || cfg.EmailToken != "" {
		t.Error("secrets set without a secrets file or env")
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 250 {
		t.Errorf("rate limit = %d/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.IdleWindow != 5*time.Minute || cfg.IdleThresholdReqPerMin != 5 || cfg.MinimumLifespan != 5*time.Minute {
		t.Errorf("idle = %v/%d/%v", cfg.IdleWindow, cfg.IdleThresholdReqPerMin, cfg.MinimumLifespan)
	}
	if cfg.ShutdownTimeout != 30*time.Second || cfg.ShutdownInFlightCheckInterval != 100*time.Millisecond {
		t.Errorf("shutdown = %v / %v", cfg.ShutdownTimeout, cfg.ShutdownInFlightCheckInterval)
	}
}

func TestLoad_FullFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, fullYAML)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.ForecastURL != "http://forecast.local/v1/forecast" {
		t.Errorf("ForecastURL = %q", cfg.ForecastURL)
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Errorf("UpstreamTimeout = %v", cfg.UpstreamTimeout)
	}
	if !cfg.CircuitBreakerEnabled || cfg.CircuitBreakerFailureThreshold != 3 || cfg.CircuitBreakerTimeout != 45*time.Second {
		t.Errorf("breaker = %v/%d/%v", cfg.CircuitBreakerEnabled, cfg.CircuitBreakerFailureThreshold, cfg.CircuitBreakerTimeout)
	}
	if cfg.EmailFrom != "Walks <walks@example.com>" {
		t.Errorf("EmailFrom = %q", cfg.EmailFrom)
	}
	if !cfg.DigestEnabled || cfg.DigestInterval != 6*time.Hour || cfg.DigestRecipient != "walker@example.com" {
		t.Errorf("digest = %v/%v/%q", cfg.DigestEnabled, cfg.DigestInterval, cfg.DigestRecipient)
	}
	if cfg.DigestLatitude == nil || *cfg.DigestLatitude != 52.52 {
		t.Errorf("DigestLatitude = %v", cfg.DigestLatitude)
	}
	if cfg.DegradedErrorPct != 25 || cfg.OverloadThresholdPct != 90 {
		t.Errorf("lifecycle = %d/%d", cfg.DegradedErrorPct, cfg.OverloadThresholdPct)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, fullYAML)
	writeSecretsFile(t, dir, "resend_api_key: re_from_file\nemail_token: file-token\n")

	t.Setenv("PORT", "7000")
	t.Setenv("RESEND_API_KEY", "re_from_env")
	t.Setenv("RESEND_FROM", "Env <env@example.com>")
	t.Setenv("DOGWALK_CRON_EMAIL", "env@example.com")
	t.Setenv("DOGWALK_CRON_LOCATION", "Oslo")
	t.Setenv("DOGWALK_CRON_LATITUDE", "59.91")
	t.Setenv("DOGWALK_CRON_LONGITUDE", "not-a-number")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.ResendAPIKey != "re_from_env" {
		t.Errorf("ResendAPIKey = %q, want env value", cfg.ResendAPIKey)
	}
	if cfg.EmailToken != "file-token" {
		t.Errorf("EmailToken = %q, want secrets file value", cfg.EmailToken)
	}
	if cfg.EmailFrom != "Env <env@example.com>" {
		t.Errorf("EmailFrom = %q", cfg.EmailFrom)
	}
	if cfg.DigestRecipient != "env@example.com" || cfg.DigestLocation != "Oslo" {
		t.Errorf("digest target = %q %q", cfg.DigestRecipient, cfg.DigestLocation)
	}
	if cfg.DigestLatitude == nil || *cfg.DigestLatitude != 59.91 {
		t.Errorf("DigestLatitude = %v", cfg.DigestLatitude)
	}
	// Unparsable env keeps the file value.
	if cfg.DigestLongitude == nil || *cfg.DigestLongitude != 13.41 {
		t.Errorf("DigestLongitude = %v", cfg.DigestLongitude)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"8080\"\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DOGWALK_EMAIL_TOKEN=dotenv-token\nRESEND_FROM=Dot <dot@example.com>\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.EmailToken != "dotenv-token" {
		t.Errorf("EmailToken = %q, want value from .env", cfg.EmailToken)
	}
	if cfg.EmailFrom != "Dot <dot@example.com>" {
		t.Errorf("EmailFrom = %q, want value from .env", cfg.EmailFrom)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := LoadFrom(t.TempDir())
	if err == nil {
		t.Fatal("LoadFrom() expected error when config file missing")
	}
	if cfg != nil {
		t.Errorf("LoadFrom() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("LoadFrom() error = %v", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
upstream:
  circuit_breaker_timeout: "soon"
digest:
  interval: "-1h"
shutdown:
  timeout: "forever"
`)
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.CircuitBreakerTimeout != 30*time.Second {
		t.Errorf("CircuitBreakerTimeout = %v, want 30s default", cfg.CircuitBreakerTimeout)
	}
	if cfg.DigestInterval != 24*time.Hour {
		t.Errorf("DigestInterval = %v, want 24h default", cfg.DigestInterval)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s default", cfg.ShutdownTimeout)
	}
}

func TestLoad_RequestTimeoutRaisedAboveUpstream(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "upstream:\n  timeout: \"4s\"\nrequest:\n  timeout: \"2s\"\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"negative upstream timeout", "upstream:\n  timeout: \"-1s\"\n", "upstream.timeout"},
		{"digest without recipient", "digest:\n  enabled: true\n", "recipient"},
		{"retry max below initial", "lifecycle:\n  degraded_retry_initial: \"5m\"\n  degraded_retry_max: \"1m\"\n", "degraded_retry_max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			_, err := LoadFrom(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("LoadFrom() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "server: [unclosed\n")
	if _, err := LoadFrom(dir); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("LoadFrom() error = %v, want parse error", err)
	}

	writeEnvFile(t, dir, "server:\n  port: \"8080\"\n")
	writeSecretsFile(t, dir, "resend_api_key: [oops\n")
	if _, err := LoadFrom(dir); err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Errorf("LoadFrom() error = %v, want secrets parse error", err)
	}
}

// TestLoad_ShippedDevConfig verifies that the repository's config/dev.yaml loads.
func TestLoad_ShippedDevConfig(t *testing.T) {
	clearEnv(t)
	root := findProjectRoot(t)
	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom(%s) error = %v", root, err)
	}
	if cfg.ServerPort == "" {
		t.Error("ServerPort empty")
	}
}

const fullYAML = `
server:
  port: "9090"
upstream:
  geocoding_url: "http://geo.local/v1/search"
  forecast_url: "http://forecast.local/v1/forecast"
  timeout: "3s"
  circuit_breaker_enabled: true
  circuit_breaker_failure_threshold: 3
  circuit_breaker_timeout: "45s"
request:
  timeout: "10s"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
email:
  from: "Walks <walks@example.com>"
digest:
  enabled: true
  interval: "6h"
  recipient: "walker@example.com"
  location: "Berlin"
  latitude: 52.52
  longitude: 13.41
shutdown:
  timeout: "10s"
lifecycle:
  overload_window: "30s"
  overload_threshold_pct: 90
  degraded_window: "30s"
  degraded_error_pct: 25
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
