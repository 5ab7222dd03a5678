package baseline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
	"github.com/fyrsmithlabs/flywheeld/internal/feedback"
)

const instrumentationName = "github.com/fyrsmithlabs/flywheeld/internal/baseline"

// Source reads the current value of one named quality metric.
type Source interface {
	Read(ctx context.Context, name string) (float64, error)
}

// Sink receives generated actions for scheduling.
type Sink interface {
	Dispatch(ctx context.Context, acts ...*action.Action) error
}

// Config tunes one monitor.
type Config struct {
	// Tracked lists the metric names polled each cycle.
	Tracked []string
	// TrendBand is the fractional band around the baseline read as stable.
	TrendBand float64
	// DegradationRatio: a current value below baseline*ratio emits a
	// degradation action.
	DegradationRatio float64
	// RetrainingVolume is the queued-feedback count that triggers a
	// scheduled retrain.
	RetrainingVolume int
	// WindowDays is the measurement period recorded on new baselines.
	WindowDays int
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		TrendBand:        0.05,
		DegradationRatio: 0.9,
		RetrainingVolume: 100,
		WindowDays:       7,
	}
}

// Monitor polls tracked metrics each cycle, maintains their baselines,
// and emits degradation and volume actions.
type Monitor struct {
	cfg    Config
	source Source
	queue  *feedback.Queue
	sink   Sink
	logger *zap.Logger

	// Telemetry
	tracer             trace.Tracer
	meter              metric.Meter
	observationCounter metric.Int64Counter
	degradationCounter metric.Int64Counter

	mu        sync.RWMutex
	baselines map[string]*Baseline
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithConfig overrides the default monitor configuration.
func WithConfig(cfg Config) MonitorOption {
	return func(m *Monitor) {
		m.cfg = cfg
	}
}

// NewMonitor creates a monitor reading from source and dispatching to
// sink.
func NewMonitor(source Source, queue *feedback.Queue, sink Sink, logger *zap.Logger, opts ...MonitorOption) (*Monitor, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		cfg:       DefaultConfig(),
		source:    source,
		queue:     queue,
		sink:      sink,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
		baselines: make(map[string]*Baseline),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()

	return m, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (m *Monitor) initMetrics() {
	var err error

	m.observationCounter, err = m.meter.Int64Counter(
		"flywheeld.baseline.observations_total",
		metric.WithDescription("Total number of metric readings folded into baselines"),
		metric.WithUnit("{observation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create observation counter", zap.Error(err))
	}

	m.degradationCounter, err = m.meter.Int64Counter(
		"flywheeld.baseline.degradations_total",
		metric.WithDescription("Total number of degradation actions generated"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		m.logger.Warn("failed to create degradation counter", zap.Error(err))
	}
}

// Run performs one monitoring cycle: read every tracked metric, fold the
// readings into the baselines, and dispatch degradation and volume
// actions. A metric whose read fails is skipped for the cycle.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "baseline.monitor")
	defer span.End()

	now := time.Now().UTC()
	var acts []*action.Action

	for _, name := range m.cfg.Tracked {
		value, err := m.source.Read(ctx, name)
		if err != nil {
			m.logger.Warn("metric read failed, skipping",
				zap.String("metric", name),
				zap.Error(err))
			continue
		}
		if m.observationCounter != nil {
			m.observationCounter.Add(ctx, 1,
				metric.WithAttributes(attribute.String("metric", name)))
		}
		if act := m.observe(ctx, name, value, now); act != nil {
			acts = append(acts, act)
		}
	}

	if queued := m.queue.Len(); queued >= m.cfg.RetrainingVolume {
		acts = append(acts, action.New(
			action.TriggerScheduled,
			action.PriorityMedium,
			action.KindRetrain,
			fmt.Sprintf("scheduled retrain: %d feedback entries queued", queued),
			map[string]any{"queued_feedback": queued},
			0.3,
		))
	}

	span.SetAttributes(attribute.Int("monitor.actions_generated", len(acts)))

	if len(acts) > 0 {
		if err := m.sink.Dispatch(ctx, acts...); err != nil {
			return fmt.Errorf("dispatching %d actions: %w", len(acts), err)
		}
	}

	m.logger.Debug("monitoring cycle complete",
		zap.Int("metrics_tracked", len(m.cfg.Tracked)),
		zap.Int("actions_generated", len(acts)))

	return nil
}

// observe folds one reading into the baseline map and returns a
// degradation action when the reading falls below the floor. The first
// reading of a metric establishes its baseline and can never degrade.
func (m *Monitor) observe(ctx context.Context, name string, value float64, now time.Time) *action.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.baselines[name]
	if !ok {
		m.baselines[name] = &Baseline{
			MetricName:        name,
			BaselineValue:     value,
			CurrentValue:      value,
			Trend:             TrendStable,
			LastUpdated:       now,
			ConfidenceLevel:   initialConfidence,
			MeasurementPeriod: fmt.Sprintf("%dd", m.cfg.WindowDays),
		}
		m.logger.Info("baseline established",
			zap.String("metric", name),
			zap.Float64("value", value))
		return nil
	}

	b.CurrentValue = value
	b.LastUpdated = now
	b.Trend = classify(value, b.BaselineValue, m.cfg.TrendBand)

	if value >= b.BaselineValue*m.cfg.DegradationRatio {
		return nil
	}

	m.logger.Warn("metric degraded below baseline floor",
		zap.String("metric", name),
		zap.Float64("baseline", b.BaselineValue),
		zap.Float64("current", value))
	if m.degradationCounter != nil {
		m.degradationCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("metric", name)))
	}

	return action.New(
		action.TriggerPerformanceDegradation,
		action.PriorityHigh,
		action.KindUpdateKnowledge,
		fmt.Sprintf("%s degraded: current %.3f against baseline %.3f", name, value, b.BaselineValue),
		map[string]any{
			"metric":         name,
			"baseline_value": b.BaselineValue,
			"current_value":  value,
		},
		0.25,
	)
}

// Baselines returns a snapshot of the current baselines keyed by metric
// name.
func (m *Monitor) Baselines() map[string]Baseline {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Baseline, len(m.baselines))
	for name, b := range m.baselines {
		out[name] = *b
	}
	return out
}
