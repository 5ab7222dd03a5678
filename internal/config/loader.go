// Package config provides configuration loading for flywheeld.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, THRESHOLDS_SATISFACTION, etc.)
//  2. YAML config file (~/.config/flywheeld/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path ~/.config/flywheeld/config.yaml is used.
//
// # Security Considerations
//
// File permissions: the configuration file must have 0600 permissions (owner
// read/write only). Files with weaker permissions are rejected.
//
// Path validation: only configuration files in allowed directories can be
// loaded (~/.config/flywheeld/ or /etc/flywheeld/). Paths outside these
// directories are rejected to prevent path traversal.
//
// File size: configuration files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Environment variables use an underscore separator and are uppercased. The
// transformer maps them to YAML field names by splitting on the first
// underscore:
//
//	SERVER_HTTP_PORT          -> server.http_port
//	LOOPS_ANALYSIS_INTERVAL   -> loops.analysis_interval
//	THRESHOLDS_SATISFACTION   -> thresholds.satisfaction
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "flywheeld", "config.yaml")
	}

	// Validate config path (even if file doesn't exist)
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	// Load from YAML file if it exists
	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables.
	// Example: SERVER_HTTP_PORT -> server.http_port
	if err := k.Load(env.Provider("", ".", func(s string) string {
		// Split on the first underscore only: section.field_name.
		// Field names keep their own underscores.
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)

		if len(parts) == 1 {
			return lower
		}

		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the flywheeld config directory if it doesn't exist.
// Called during startup so new installs have the directory ready. Created
// with 0700 permissions (owner only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "flywheeld")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Symlink evaluation fails for paths that don't exist yet;
		// fall back to the absolute path.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "flywheeld"),
		"/etc/flywheeld",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/flywheeld/ or /etc/flywheeld/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid a TOCTOU
// race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Permission check is skipped on Windows (different permission model).
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8093
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "flywheeld"
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}

	if cfg.Loops.AnalysisInterval == 0 {
		cfg.Loops.AnalysisInterval = time.Hour
	}
	if cfg.Loops.MonitorInterval == 0 {
		cfg.Loops.MonitorInterval = 30 * time.Minute
	}
	if cfg.Loops.ExecutionInterval == 0 {
		cfg.Loops.ExecutionInterval = 10 * time.Minute
	}
	if cfg.Loops.ValidationInterval == 0 {
		cfg.Loops.ValidationInterval = time.Hour
	}
	if cfg.Loops.ErrorBackoff == 0 {
		cfg.Loops.ErrorBackoff = 5 * time.Minute
	}

	if cfg.Thresholds.Satisfaction == 0 {
		cfg.Thresholds.Satisfaction = 4.0
	}
	if cfg.Thresholds.Quality == 0 {
		cfg.Thresholds.Quality = 0.8
	}
	if cfg.Thresholds.ErrorRate == 0 {
		cfg.Thresholds.ErrorRate = 0.05
	}
	if cfg.Thresholds.BatchSize == 0 {
		cfg.Thresholds.BatchSize = 50
	}
	if cfg.Thresholds.RetrainingVolume == 0 {
		cfg.Thresholds.RetrainingVolume = 100
	}
	if cfg.Thresholds.DegradationRatio == 0 {
		cfg.Thresholds.DegradationRatio = 0.9
	}
	if cfg.Thresholds.TrendBand == 0 {
		cfg.Thresholds.TrendBand = 0.05
	}
	if cfg.Thresholds.BaselineWindowDays == 0 {
		cfg.Thresholds.BaselineWindowDays = 7
	}
	if cfg.Thresholds.ValidationWindow == 0 {
		cfg.Thresholds.ValidationWindow = 24 * time.Hour
	}

	if cfg.Metrics.Endpoint == "" {
		cfg.Metrics.Endpoint = "http://localhost:8428"
	}
	if len(cfg.Metrics.Tracked) == 0 {
		cfg.Metrics.Tracked = defaultTrackedMetrics()
	}

	if cfg.Ingest.RatePerSecond == 0 {
		cfg.Ingest.RatePerSecond = 50
	}
	if cfg.Ingest.Burst == 0 {
		cfg.Ingest.Burst = 100
	}

	// Scrub.Enabled defaults to true, but a bool zero value is
	// indistinguishable from an explicit false here. Load() handles the
	// default with getEnvBool; YAML users set scrub.enabled explicitly.
}
