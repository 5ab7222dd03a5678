package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// configEnvKeys lists every environment variable Load reads, so tests can
// save and restore the ambient environment.
var configEnvKeys = []string{
	"SERVER_HTTP_PORT",
	"SERVER_SHUTDOWN_TIMEOUT",
	"OBSERVABILITY_ENABLE_TELEMETRY",
	"OBSERVABILITY_SERVICE_NAME",
	"STORE_PATH",
	"LOOPS_ANALYSIS_INTERVAL",
	"LOOPS_MONITOR_INTERVAL",
	"LOOPS_EXECUTION_INTERVAL",
	"LOOPS_VALIDATION_INTERVAL",
	"LOOPS_ERROR_BACKOFF",
	"THRESHOLDS_SATISFACTION",
	"THRESHOLDS_QUALITY",
	"THRESHOLDS_ERROR_RATE",
	"THRESHOLDS_BATCH_SIZE",
	"THRESHOLDS_RETRAINING_VOLUME",
	"THRESHOLDS_DEGRADATION_RATIO",
	"THRESHOLDS_TREND_BAND",
	"THRESHOLDS_BASELINE_WINDOW_DAYS",
	"THRESHOLDS_VALIDATION_WINDOW",
	"METRICS_ENDPOINT",
	"EVENTS_NATS_URL",
	"INGEST_RATE_PER_SECOND",
	"INGEST_BURST",
	"RULES_PATH",
	"RULES_WATCH",
	"SCRUB_ENABLED",
	"SCRUB_ALLOWLIST_PATH",
}

func saveEnv() map[string]string {
	saved := make(map[string]string)
	for _, key := range configEnvKeys {
		if value, ok := os.LookupEnv(key); ok {
			saved[key] = value
		}
		os.Unsetenv(key)
	}
	return saved
}

func restoreEnv(saved map[string]string) {
	for _, key := range configEnvKeys {
		os.Unsetenv(key)
	}
	for key, value := range saved {
		os.Setenv(key, value)
	}
}

func TestLoad(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	tests := []struct {
		name     string
		env      map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8093 {
					t.Errorf("Server.Port = %d, want 8093", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 10*time.Second {
					t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
				}
				if cfg.Observability.EnableTelemetry {
					t.Error("Observability.EnableTelemetry = true, want false (disabled by default)")
				}
				if cfg.Observability.ServiceName != "flywheeld" {
					t.Errorf("Observability.ServiceName = %q, want flywheeld", cfg.Observability.ServiceName)
				}
				if cfg.Loops.AnalysisInterval != time.Hour {
					t.Errorf("Loops.AnalysisInterval = %v, want 1h", cfg.Loops.AnalysisInterval)
				}
				if cfg.Loops.MonitorInterval != 30*time.Minute {
					t.Errorf("Loops.MonitorInterval = %v, want 30m", cfg.Loops.MonitorInterval)
				}
				if cfg.Loops.ExecutionInterval != 10*time.Minute {
					t.Errorf("Loops.ExecutionInterval = %v, want 10m", cfg.Loops.ExecutionInterval)
				}
				if cfg.Loops.ErrorBackoff != 5*time.Minute {
					t.Errorf("Loops.ErrorBackoff = %v, want 5m", cfg.Loops.ErrorBackoff)
				}
				if cfg.Thresholds.Satisfaction != 4.0 {
					t.Errorf("Thresholds.Satisfaction = %v, want 4.0", cfg.Thresholds.Satisfaction)
				}
				if cfg.Thresholds.BatchSize != 50 {
					t.Errorf("Thresholds.BatchSize = %d, want 50", cfg.Thresholds.BatchSize)
				}
				if cfg.Thresholds.RetrainingVolume != 100 {
					t.Errorf("Thresholds.RetrainingVolume = %d, want 100", cfg.Thresholds.RetrainingVolume)
				}
				if cfg.Thresholds.DegradationRatio != 0.9 {
					t.Errorf("Thresholds.DegradationRatio = %v, want 0.9", cfg.Thresholds.DegradationRatio)
				}
				if !cfg.Scrub.Enabled {
					t.Error("Scrub.Enabled = false, want true")
				}
				if len(cfg.Metrics.Tracked) == 0 {
					t.Error("Metrics.Tracked is empty, want defaults")
				}
			},
		},
		{
			name: "environment variable overrides",
			env: map[string]string{
				"SERVER_HTTP_PORT":             "9191",
				"SERVER_SHUTDOWN_TIMEOUT":      "5s",
				"OBSERVABILITY_SERVICE_NAME":   "flywheeld-test",
				"LOOPS_ANALYSIS_INTERVAL":      "15m",
				"THRESHOLDS_SATISFACTION":      "3.5",
				"THRESHOLDS_RETRAINING_VOLUME": "25",
				"EVENTS_NATS_URL":              "nats://localhost:4222",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 9191 {
					t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 5*time.Second {
					t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
				}
				if cfg.Observability.ServiceName != "flywheeld-test" {
					t.Errorf("Observability.ServiceName = %q, want flywheeld-test", cfg.Observability.ServiceName)
				}
				if cfg.Loops.AnalysisInterval != 15*time.Minute {
					t.Errorf("Loops.AnalysisInterval = %v, want 15m", cfg.Loops.AnalysisInterval)
				}
				if cfg.Thresholds.Satisfaction != 3.5 {
					t.Errorf("Thresholds.Satisfaction = %v, want 3.5", cfg.Thresholds.Satisfaction)
				}
				if cfg.Thresholds.RetrainingVolume != 25 {
					t.Errorf("Thresholds.RetrainingVolume = %d, want 25", cfg.Thresholds.RetrainingVolume)
				}
				if cfg.Events.URL != "nats://localhost:4222" {
					t.Errorf("Events.URL = %q, want nats://localhost:4222", cfg.Events.URL)
				}
			},
		},
		{
			name: "invalid values fall back to defaults",
			env: map[string]string{
				"SERVER_HTTP_PORT":        "not-a-number",
				"LOOPS_ANALYSIS_INTERVAL": "soon",
				"THRESHOLDS_SATISFACTION": "high",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8093 {
					t.Errorf("Server.Port = %d, want default 8093", cfg.Server.Port)
				}
				if cfg.Loops.AnalysisInterval != time.Hour {
					t.Errorf("Loops.AnalysisInterval = %v, want default 1h", cfg.Loops.AnalysisInterval)
				}
				if cfg.Thresholds.Satisfaction != 4.0 {
					t.Errorf("Thresholds.Satisfaction = %v, want default 4.0", cfg.Thresholds.Satisfaction)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range configEnvKeys {
				os.Unsetenv(key)
			}
			for key, value := range tt.env {
				os.Setenv(key, value)
			}

			cfg := Load()
			tt.validate(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Load()
		cfg.Store.Path = "flywheel-test.db"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(cfg *Config) { cfg.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too high",
			mutate:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "negative shutdown timeout",
			mutate:  func(cfg *Config) { cfg.Server.ShutdownTimeout = -time.Second },
			wantErr: "shutdown timeout must be positive",
		},
		{
			name: "telemetry without service name",
			mutate: func(cfg *Config) {
				cfg.Observability.EnableTelemetry = true
				cfg.Observability.ServiceName = ""
			},
			wantErr: "service name required",
		},
		{
			name:    "empty store path",
			mutate:  func(cfg *Config) { cfg.Store.Path = "" },
			wantErr: "store path",
		},
		{
			name:    "zero analysis interval",
			mutate:  func(cfg *Config) { cfg.Loops.AnalysisInterval = 0 },
			wantErr: "analysis interval must be positive",
		},
		{
			name:    "zero error backoff",
			mutate:  func(cfg *Config) { cfg.Loops.ErrorBackoff = 0 },
			wantErr: "error backoff must be positive",
		},
		{
			name:    "zero batch size",
			mutate:  func(cfg *Config) { cfg.Thresholds.BatchSize = 0 },
			wantErr: "batch size must be positive",
		},
		{
			name:    "degradation ratio out of range",
			mutate:  func(cfg *Config) { cfg.Thresholds.DegradationRatio = 1.5 },
			wantErr: "degradation ratio",
		},
		{
			name:    "trend band out of range",
			mutate:  func(cfg *Config) { cfg.Thresholds.TrendBand = 0 },
			wantErr: "trend band",
		},
		{
			name:    "zero ingest rate",
			mutate:  func(cfg *Config) { cfg.Ingest.RatePerSecond = 0 },
			wantErr: "ingest rate must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecret(t *testing.T) {
	s := Secret("hunter2")

	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", s.String())
	}
	if s.Value() != "hunter2" {
		t.Errorf("Value() = %q, want hunter2", s.Value())
	}
	if !s.IsSet() {
		t.Error("IsSet() = false, want true")
	}

	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(data) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON() = %s, want \"[REDACTED]\"", data)
	}

	var empty Secret
	if empty.IsSet() {
		t.Error("empty IsSet() = true, want false")
	}
	if empty.String() != "" {
		t.Errorf("empty String() = %q, want empty", empty.String())
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", d.Duration())
	}

	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("UnmarshalText(-1s) = nil, want error")
	}

	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("UnmarshalText(soon) = nil, want error")
	}
}
