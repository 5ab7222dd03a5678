package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp directory so the loader's allowed-path
// checks operate on test-owned files. Returns the home dir and a cleanup
// function.
func setupTestHome(t *testing.T) (string, func()) {
	t.Helper()

	tmpHome := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)

	cleanup := func() {
		if originalHome != "" {
			os.Setenv("HOME", originalHome)
		} else {
			os.Unsetenv("HOME")
		}
	}

	return tmpHome, cleanup
}

func writeConfigFile(t *testing.T, home, content string) string {
	t.Helper()

	configDir := filepath.Join(home, ".config", "flywheeld")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeConfigFile(t, home, `server:
  http_port: 9191
  shutdown_timeout: 15s

store:
  path: /tmp/flywheel-test.db

loops:
  analysis_interval: 30m
  error_backoff: 1m

thresholds:
  satisfaction: 3.5
  retraining_volume: 40

metrics:
  endpoint: http://localhost:9009
  tracked:
    - response_quality
    - response_time
`)

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 15s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Store.Path != "/tmp/flywheel-test.db" {
		t.Errorf("Store.Path = %q, want /tmp/flywheel-test.db", cfg.Store.Path)
	}
	if cfg.Loops.AnalysisInterval != 30*time.Minute {
		t.Errorf("Loops.AnalysisInterval = %v, want 30m", cfg.Loops.AnalysisInterval)
	}
	if cfg.Loops.ErrorBackoff != time.Minute {
		t.Errorf("Loops.ErrorBackoff = %v, want 1m", cfg.Loops.ErrorBackoff)
	}
	if cfg.Thresholds.Satisfaction != 3.5 {
		t.Errorf("Thresholds.Satisfaction = %v, want 3.5", cfg.Thresholds.Satisfaction)
	}
	if cfg.Thresholds.RetrainingVolume != 40 {
		t.Errorf("Thresholds.RetrainingVolume = %d, want 40", cfg.Thresholds.RetrainingVolume)
	}
	if cfg.Metrics.Endpoint != "http://localhost:9009" {
		t.Errorf("Metrics.Endpoint = %q, want http://localhost:9009", cfg.Metrics.Endpoint)
	}
	if len(cfg.Metrics.Tracked) != 2 {
		t.Errorf("Metrics.Tracked = %v, want 2 entries", cfg.Metrics.Tracked)
	}

	// Unset fields come from defaults.
	if cfg.Loops.MonitorInterval != 30*time.Minute {
		t.Errorf("Loops.MonitorInterval = %v, want default 30m", cfg.Loops.MonitorInterval)
	}
	if cfg.Thresholds.BatchSize != 50 {
		t.Errorf("Thresholds.BatchSize = %d, want default 50", cfg.Thresholds.BatchSize)
	}
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeConfigFile(t, home, `server:
  http_port: 9191
`)

	os.Setenv("SERVER_HTTP_PORT", "9292")
	defer os.Unsetenv("SERVER_HTTP_PORT")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 9292 {
		t.Errorf("Server.Port = %d, want env override 9292", cfg.Server.Port)
	}
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := filepath.Join(home, ".config", "flywheeld", "config.yaml")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 8093 {
		t.Errorf("Server.Port = %d, want default 8093", cfg.Server.Port)
	}
	if cfg.Loops.AnalysisInterval != time.Hour {
		t.Errorf("Loops.AnalysisInterval = %v, want default 1h", cfg.Loops.AnalysisInterval)
	}
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission checks are skipped on Windows")
	}

	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeConfigFile(t, home, "server:\n  http_port: 9191\n")
	if err := os.Chmod(configPath, 0644); err != nil {
		t.Fatalf("Failed to chmod config file: %v", err)
	}

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("LoadWithFile() = nil, want permissions error")
	}
	if !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("LoadWithFile() error = %v, want permissions error", err)
	}
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	_, cleanup := setupTestHome(t)
	defer cleanup()

	outside := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(outside, []byte("server:\n  http_port: 9191\n"), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadWithFile(outside)
	if err == nil {
		t.Fatal("LoadWithFile() = nil, want path validation error")
	}
	if !strings.Contains(err.Error(), "config path validation failed") {
		t.Errorf("LoadWithFile() error = %v, want path validation error", err)
	}
}

func TestLoadWithFile_RejectsInvalidConfig(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeConfigFile(t, home, `thresholds:
  degradation_ratio: 2.0
`)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("LoadWithFile() = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("LoadWithFile() error = %v, want validation error", err)
	}
}
