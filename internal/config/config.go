// Package config provides configuration loading for flywheeld.
//
// Configuration is loaded from environment variables with sensible defaults,
// optionally layered on top of a YAML file (see LoadWithFile). This package
// covers the HTTP server, the four control loops, analysis thresholds, the
// record store, metrics polling, event publishing, and note scrubbing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the complete flywheeld configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Store         StoreConfig         `koanf:"store"`
	Loops         LoopsConfig         `koanf:"loops"`
	Thresholds    ThresholdsConfig    `koanf:"thresholds"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Events        EventsConfig        `koanf:"events"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Rules         RulesConfig         `koanf:"rules"`
	Scrub         ScrubConfig         `koanf:"scrub"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// StoreConfig holds record store configuration.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string `koanf:"path"`
}

// LoopsConfig holds the cadence of the four background loops and the shared
// error back-off applied when an iteration fails.
type LoopsConfig struct {
	AnalysisInterval   time.Duration `koanf:"analysis_interval"`
	MonitorInterval    time.Duration `koanf:"monitor_interval"`
	ExecutionInterval  time.Duration `koanf:"execution_interval"`
	ValidationInterval time.Duration `koanf:"validation_interval"`
	ErrorBackoff       time.Duration `koanf:"error_backoff"`
}

// ThresholdsConfig holds the analysis and monitoring thresholds.
type ThresholdsConfig struct {
	// Satisfaction is the average score below which a retrain is generated.
	Satisfaction float64 `koanf:"satisfaction"`
	// Quality is the minimum acceptable mean quality score in reports.
	Quality float64 `koanf:"quality"`
	// ErrorRate is the acceptable error-rate fraction in reports.
	ErrorRate float64 `koanf:"error_rate"`
	// BatchSize caps how many queued entries one analysis run drains.
	BatchSize int `koanf:"batch_size"`
	// RetrainingVolume is the queued-feedback count that triggers a
	// scheduled retrain.
	RetrainingVolume int `koanf:"retraining_volume"`
	// DegradationRatio: current below baseline*ratio emits a degradation
	// action.
	DegradationRatio float64 `koanf:"degradation_ratio"`
	// TrendBand is the fractional band around the baseline treated as
	// stable.
	TrendBand float64 `koanf:"trend_band"`
	// BaselineWindowDays is the measurement period recorded on baselines.
	BaselineWindowDays int `koanf:"baseline_window_days"`
	// ValidationWindow bounds how far back the validator looks for
	// completed actions.
	ValidationWindow time.Duration `koanf:"validation_window"`
}

// MetricsConfig holds the observability source configuration.
type MetricsConfig struct {
	// Endpoint is the Prometheus-compatible query API base URL.
	Endpoint string `koanf:"endpoint"`
	// Tracked lists the metric names the baseline monitor polls.
	Tracked []string `koanf:"tracked"`
}

// EventsConfig holds NATS event publishing configuration.
type EventsConfig struct {
	// URL is the NATS server URL. Empty disables publishing.
	URL string `koanf:"nats_url"`
}

// IngestConfig holds ingestion rate limiting for the HTTP boundary.
type IngestConfig struct {
	// RatePerSecond is the sustained feedback submissions allowed per second.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// RulesConfig holds the keyword rule table source.
type RulesConfig struct {
	// Path is an optional YAML file overriding the built-in tables.
	Path string `koanf:"path"`
	// Watch reloads the file on change when true.
	Watch bool `koanf:"watch"`
}

// ScrubConfig holds feedback note scrubbing configuration.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
	// AllowlistPath is an optional TOML allowlist of permitted patterns.
	AllowlistPath string `koanf:"allowlist_path"`
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables:
//   - SERVER_HTTP_PORT: HTTP server port (default: 8093)
//   - SERVER_SHUTDOWN_TIMEOUT: Graceful shutdown timeout (default: 10s)
//   - OBSERVABILITY_ENABLE_TELEMETRY: Enable OpenTelemetry (default: false)
//   - OBSERVABILITY_SERVICE_NAME: Service name for traces (default: flywheeld)
//   - STORE_PATH: SQLite database path (default: ~/.local/share/flywheeld/flywheel.db)
//   - LOOPS_ANALYSIS_INTERVAL: Pattern analysis cadence (default: 1h)
//   - LOOPS_MONITOR_INTERVAL: Baseline monitor cadence (default: 30m)
//   - LOOPS_EXECUTION_INTERVAL: Action execution cadence (default: 10m)
//   - LOOPS_VALIDATION_INTERVAL: Quality validation cadence (default: 1h)
//   - LOOPS_ERROR_BACKOFF: Pause after a failed iteration (default: 5m)
//   - THRESHOLDS_SATISFACTION: Retrain threshold (default: 4.0)
//   - THRESHOLDS_RETRAINING_VOLUME: Queued-feedback retrain trigger (default: 100)
//   - METRICS_ENDPOINT: Prometheus query API base URL (default: http://localhost:8428)
//   - EVENTS_NATS_URL: NATS server URL, empty disables events (default: "")
//   - INGEST_RATE_PER_SECOND / INGEST_BURST: HTTP ingest limiter (default: 50, 100)
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_HTTP_PORT", 8093),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OBSERVABILITY_ENABLE_TELEMETRY", false),
			ServiceName:     getEnvString("OBSERVABILITY_SERVICE_NAME", "flywheeld"),
		},
		Store: StoreConfig{
			Path: getEnvString("STORE_PATH", defaultStorePath()),
		},
		Loops: LoopsConfig{
			AnalysisInterval:   getEnvDuration("LOOPS_ANALYSIS_INTERVAL", time.Hour),
			MonitorInterval:    getEnvDuration("LOOPS_MONITOR_INTERVAL", 30*time.Minute),
			ExecutionInterval:  getEnvDuration("LOOPS_EXECUTION_INTERVAL", 10*time.Minute),
			ValidationInterval: getEnvDuration("LOOPS_VALIDATION_INTERVAL", time.Hour),
			ErrorBackoff:       getEnvDuration("LOOPS_ERROR_BACKOFF", 5*time.Minute),
		},
		Thresholds: ThresholdsConfig{
			Satisfaction:       getEnvFloat("THRESHOLDS_SATISFACTION", 4.0),
			Quality:            getEnvFloat("THRESHOLDS_QUALITY", 0.8),
			ErrorRate:          getEnvFloat("THRESHOLDS_ERROR_RATE", 0.05),
			BatchSize:          getEnvInt("THRESHOLDS_BATCH_SIZE", 50),
			RetrainingVolume:   getEnvInt("THRESHOLDS_RETRAINING_VOLUME", 100),
			DegradationRatio:   getEnvFloat("THRESHOLDS_DEGRADATION_RATIO", 0.9),
			TrendBand:          getEnvFloat("THRESHOLDS_TREND_BAND", 0.05),
			BaselineWindowDays: getEnvInt("THRESHOLDS_BASELINE_WINDOW_DAYS", 7),
			ValidationWindow:   getEnvDuration("THRESHOLDS_VALIDATION_WINDOW", 24*time.Hour),
		},
		Metrics: MetricsConfig{
			Endpoint: getEnvString("METRICS_ENDPOINT", "http://localhost:8428"),
			Tracked:  defaultTrackedMetrics(),
		},
		Events: EventsConfig{
			URL: getEnvString("EVENTS_NATS_URL", ""),
		},
		Ingest: IngestConfig{
			RatePerSecond: getEnvFloat("INGEST_RATE_PER_SECOND", 50),
			Burst:         getEnvInt("INGEST_BURST", 100),
		},
		Rules: RulesConfig{
			Path:  getEnvString("RULES_PATH", ""),
			Watch: getEnvBool("RULES_WATCH", false),
		},
		Scrub: ScrubConfig{
			Enabled:       getEnvBool("SCRUB_ENABLED", true),
			AllowlistPath: getEnvString("SCRUB_ALLOWLIST_PATH", ""),
		},
	}

	return cfg
}

// defaultTrackedMetrics returns the metric names polled when METRICS_TRACKED
// is not set. Overridable via YAML (metrics.tracked).
func defaultTrackedMetrics() []string {
	return []string{
		"response_quality",
		"user_satisfaction",
		"response_time",
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "flywheel.db"
	}
	return home + "/.local/share/flywheeld/flywheel.db"
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Service name is empty (when telemetry is enabled)
//   - A loop interval or the error back-off is not positive
//   - The analysis batch size or retraining volume is not positive
//   - The degradation ratio or trend band is outside (0, 1)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.Store.Path == "" {
		return errors.New("store path must not be empty")
	}

	for name, d := range map[string]time.Duration{
		"analysis interval":   c.Loops.AnalysisInterval,
		"monitor interval":    c.Loops.MonitorInterval,
		"execution interval":  c.Loops.ExecutionInterval,
		"validation interval": c.Loops.ValidationInterval,
		"error backoff":       c.Loops.ErrorBackoff,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Thresholds.BatchSize < 1 {
		return fmt.Errorf("analysis batch size must be positive, got %d", c.Thresholds.BatchSize)
	}
	if c.Thresholds.RetrainingVolume < 1 {
		return fmt.Errorf("retraining volume threshold must be positive, got %d", c.Thresholds.RetrainingVolume)
	}
	if c.Thresholds.DegradationRatio <= 0 || c.Thresholds.DegradationRatio >= 1 {
		return fmt.Errorf("degradation ratio must be in (0, 1), got %v", c.Thresholds.DegradationRatio)
	}
	if c.Thresholds.TrendBand <= 0 || c.Thresholds.TrendBand >= 1 {
		return fmt.Errorf("trend band must be in (0, 1), got %v", c.Thresholds.TrendBand)
	}
	if c.Thresholds.ValidationWindow <= 0 {
		return errors.New("validation window must be positive")
	}

	if c.Ingest.RatePerSecond <= 0 {
		return fmt.Errorf("ingest rate must be positive, got %v", c.Ingest.RatePerSecond)
	}
	if c.Ingest.Burst < 1 {
		return fmt.Errorf("ingest burst must be positive, got %d", c.Ingest.Burst)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
