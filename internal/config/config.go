package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string

	GeocodingURL    string
	ForecastURL     string
	UpstreamTimeout time.Duration // 0 keeps the transport default

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerTimeout          time.Duration

	RequestTimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ResendAPIKey string
	ResendURL    string
	EmailFrom    string
	EmailToken   string

	DigestEnabled   bool
	DigestInterval  time.Duration
	DigestRecipient string
	DigestLocation  string
	DigestLatitude  *float64
	DigestLongitude *float64

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	DegradedRetryInitial time.Duration
	DegradedRetryMax     time.Duration

	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Upstream struct {
		GeocodingURL                   string `yaml:"geocoding_url"`
		ForecastURL                    string `yaml:"forecast_url"`
		Timeout                        string `yaml:"timeout"`
		CircuitBreakerEnabled          bool   `yaml:"circuit_breaker_enabled"`
		CircuitBreakerFailureThreshold int    `yaml:"circuit_breaker_failure_threshold"`
		CircuitBreakerTimeout          string `yaml:"circuit_breaker_timeout"`
	} `yaml:"upstream"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Email struct {
		ResendURL string `yaml:"resend_url"`
		From      string `yaml:"from"`
	} `yaml:"email"`

	Digest struct {
		Enabled   bool     `yaml:"enabled"`
		Interval  string   `yaml:"interval"`
		Recipient string   `yaml:"recipient"`
		Location  string   `yaml:"location"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
	} `yaml:"digest"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial string `yaml:"degraded_retry_initial"`
		DegradedRetryMax     string `yaml:"degraded_retry_max"`

		IdleWindow             string `yaml:"idle_window"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	EmailToken   string `yaml:"email_token"`
}

// Load reads an optional .env, then config/{ENV_NAME}.yaml (default dev) and the
// optional config/secrets.yaml, then applies env overrides. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir instead of the working directory.
func LoadFrom(dir string) (*Config, error) {
	// godotenv never overrides variables already set in the process env.
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env file: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.GeocodingURL = strings.TrimSpace(fc.Upstream.GeocodingURL)
	cfg.ForecastURL = strings.TrimSpace(fc.Upstream.ForecastURL)
	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstream.Timeout, 0)
	cfg.CircuitBreakerEnabled = fc.Upstream.CircuitBreakerEnabled
	cfg.CircuitBreakerFailureThreshold = fc.Upstream.CircuitBreakerFailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Upstream.CircuitBreakerTimeout, 30*time.Second)

	cfg.RequestTimeout = parseDurationOrZero(fc.Request.Timeout, 0)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ResendAPIKey = firstNonEmpty(os.Getenv("RESEND_API_KEY"), sec.ResendAPIKey)
	cfg.ResendURL = strings.TrimSpace(fc.Email.ResendURL)
	cfg.EmailFrom = firstNonEmpty(os.Getenv("RESEND_FROM"), fc.Email.From)
	cfg.EmailToken = firstNonEmpty(os.Getenv("DOGWALK_EMAIL_TOKEN"), sec.EmailToken)

	cfg.DigestEnabled = fc.Digest.Enabled
	cfg.DigestInterval = parseDuration(fc.Digest.Interval, 24*time.Hour)
	cfg.DigestRecipient = firstNonEmpty(os.Getenv("DOGWALK_CRON_EMAIL"), fc.Digest.Recipient)
	cfg.DigestLocation = firstNonEmpty(os.Getenv("DOGWALK_CRON_LOCATION"), fc.Digest.Location)
	cfg.DigestLatitude = envFloatOr("DOGWALK_CRON_LATITUDE", fc.Digest.Latitude)
	cfg.DigestLongitude = envFloatOr("DOGWALK_CRON_LONGITUDE", fc.Digest.Longitude)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedRetryInitial = parseDuration(fc.Lifecycle.DegradedRetryInitial, 1*time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Lifecycle.DegradedRetryMax, 20*time.Minute)

	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// envFloatOr returns the env value when it parses as a finite float, else fallback.
func envFloatOr(key string, fallback *float64) *float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return &f
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Negative timeouts are rejected. A request timeout not above the upstream
// timeout is raised to upstream + 1s.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request.timeout must not be negative")
	}
	if cfg.RequestTimeout > 0 && cfg.UpstreamTimeout > 0 && cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	if cfg.DegradedRetryMax < cfg.DegradedRetryInitial {
		return fmt.Errorf("lifecycle.degraded_retry_max must be >= degraded_retry_initial")
	}
	if cfg.DigestEnabled && cfg.DigestRecipient == "" {
		return fmt.Errorf("digest.enabled requires a recipient (digest.recipient or DOGWALK_CRON_EMAIL)")
	}
	return nil
}
