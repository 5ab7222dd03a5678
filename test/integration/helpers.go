package integration

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/baseline"
	"github.com/fyrsmithlabs/flywheeld/internal/config"
	"github.com/fyrsmithlabs/flywheeld/internal/flywheel"
	"github.com/fyrsmithlabs/flywheeld/internal/store"
)

// stubSource is an in-memory metrics source standing in for the
// Prometheus query API during integration tests.
type stubSource struct {
	mu     sync.Mutex
	values map[string]float64
}

func newStubSource() *stubSource {
	return &stubSource{values: map[string]float64{
		"response_quality":  0.85,
		"user_satisfaction": 4.3,
		"response_time":     0.8,
	}}
}

func (s *stubSource) Read(_ context.Context, name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	if !ok {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	return v, nil
}

func (s *stubSource) set(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// testConfig returns a pipeline configuration with millisecond loop
// intervals so a full cycle completes within a test run.
func testConfig(t *testing.T) config.Config {
	t.Helper()

	return config.Config{
		Store: config.StoreConfig{
			Path: filepath.Join(t.TempDir(), "flywheel.db"),
		},
		Loops: config.LoopsConfig{
			AnalysisInterval:   25 * time.Millisecond,
			MonitorInterval:    25 * time.Millisecond,
			ExecutionInterval:  25 * time.Millisecond,
			ValidationInterval: 25 * time.Millisecond,
			ErrorBackoff:       25 * time.Millisecond,
		},
		Thresholds: config.ThresholdsConfig{
			Satisfaction:       4.0,
			Quality:            0.8,
			ErrorRate:          0.05,
			BatchSize:          50,
			RetrainingVolume:   100,
			DegradationRatio:   0.9,
			TrendBand:          0.05,
			BaselineWindowDays: 7,
			ValidationWindow:   24 * time.Hour,
		},
		Metrics: config.MetricsConfig{
			Tracked: []string{"response_quality", "user_satisfaction", "response_time"},
		},
	}
}

// createTestStore opens a store in a temp directory and returns a cleanup
// function.
func createTestStore(t *testing.T, cfg config.Config) (*store.Store, func()) {
	t.Helper()

	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err, "Should open test store")

	cleanup := func() {
		st.Close()
	}
	return st, cleanup
}

// createTestEngine builds an engine over a fresh store and the given
// metrics source. The returned cleanup stops the engine and closes the
// store; it is safe to call whether or not the engine was started.
func createTestEngine(t *testing.T, cfg config.Config, source baseline.Source) (*flywheel.Engine, *store.Store, func()) {
	t.Helper()

	st, storeCleanup := createTestStore(t, cfg)

	engine, err := flywheel.New(cfg, st, source, zap.NewNop())
	require.NoError(t, err, "Should build test engine")

	cleanup := func() {
		engine.Stop()
		storeCleanup()
	}
	return engine, st, cleanup
}

// freePort reserves an ephemeral TCP port and releases it for the caller.
func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "Should reserve a local port")
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close(), "Should release the reserved port")
	return port
}
