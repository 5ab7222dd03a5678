// Package flywheel composes the improvement pipeline: it owns the
// in-memory queues, wires each stage to the store, and runs the
// background loops that keep the cycle turning. Generated actions
// enter the system only through the engine's Dispatch.
package flywheel

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
	"github.com/fyrsmithlabs/flywheeld/internal/analysis"
	"github.com/fyrsmithlabs/flywheeld/internal/baseline"
	"github.com/fyrsmithlabs/flywheeld/internal/config"
	"github.com/fyrsmithlabs/flywheeld/internal/events"
	"github.com/fyrsmithlabs/flywheeld/internal/executor"
	"github.com/fyrsmithlabs/flywheeld/internal/feedback"
	"github.com/fyrsmithlabs/flywheeld/internal/insight"
	"github.com/fyrsmithlabs/flywheeld/internal/rules"
	"github.com/fyrsmithlabs/flywheeld/internal/sched"
	"github.com/fyrsmithlabs/flywheeld/internal/scrub"
	"github.com/fyrsmithlabs/flywheeld/internal/store"
	"github.com/fyrsmithlabs/flywheeld/internal/validation"
)

const instrumentationName = "github.com/fyrsmithlabs/flywheeld/internal/flywheel"

// statusCompletedWindow is the lookback for the completed-action count
// reported by Status.
const statusCompletedWindow = 7 * 24 * time.Hour

// Engine wires ingest, analysis, baseline monitoring, execution, and
// validation over one store, and schedules each stage on its own loop.
type Engine struct {
	cfg    config.Config
	logger *zap.Logger

	store   *store.Store
	source  baseline.Source
	modeler executor.Modeler
	events  *events.Publisher

	fbQueue  *feedback.Queue
	actQueue *action.Queue
	rules    *rules.Table
	scrubber *scrub.Scrubber

	ingestor  *feedback.Ingestor
	analyzer  *analysis.Analyzer
	monitor   *baseline.Monitor
	exec      *executor.Engine
	validator *validation.Validator
	insights  *insight.Service

	loops []*sched.Loop

	// Telemetry
	tracer          trace.Tracer
	meter           metric.Meter
	dispatchCounter metric.Int64Counter

	lifeMu sync.Mutex   // serializes Start and Stop
	mu     sync.RWMutex // guards running, startedAt, lastRun

	running   bool
	startedAt time.Time
	lastRun   *analysis.RunSummary
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher attaches a NATS publisher for action lifecycle events.
func WithPublisher(p *events.Publisher) Option {
	return func(e *Engine) {
		e.events = p
	}
}

// WithModeler overrides the development modeler that executes actions.
func WithModeler(m executor.Modeler) Option {
	return func(e *Engine) {
		e.modeler = m
	}
}

// New builds the pipeline over st, reading serving-quality metrics from
// source. The engine is inert until Start.
func New(cfg config.Config, st *store.Store, source baseline.Source, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if source == nil {
		return nil, errors.New("metrics source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		source:   source,
		fbQueue:  feedback.NewQueue(),
		actQueue: action.NewQueue(),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.modeler == nil {
		e.modeler = executor.NewDevModeler(logger)
	}

	if err := e.build(); err != nil {
		return nil, err
	}

	e.initMetrics()

	return e, nil
}

// build constructs the stages in data-flow order: ingest, analysis,
// monitoring, execution, validation, insight, then the loops over them.
func (e *Engine) build() error {
	scrubber, err := scrub.New(scrub.Config{
		Enabled:       e.cfg.Scrub.Enabled,
		AllowlistPath: e.cfg.Scrub.AllowlistPath,
	}, e.logger)
	if err != nil {
		return fmt.Errorf("building scrubber: %w", err)
	}
	e.scrubber = scrubber

	table, err := rules.NewTable(e.cfg.Rules.Path, e.logger)
	if err != nil {
		return fmt.Errorf("building rules table: %w", err)
	}
	e.rules = table

	ingestor, err := feedback.NewIngestor(e.store, e.fbQueue, e.logger,
		feedback.WithScrubber(scrubber))
	if err != nil {
		return fmt.Errorf("building ingestor: %w", err)
	}
	e.ingestor = ingestor

	analyzer, err := analysis.NewAnalyzer(e.fbQueue, table, e, e, e.logger,
		analysis.WithConfig(analysis.Config{
			BatchSize:             e.cfg.Thresholds.BatchSize,
			SatisfactionThreshold: e.cfg.Thresholds.Satisfaction,
		}))
	if err != nil {
		return fmt.Errorf("building analyzer: %w", err)
	}
	e.analyzer = analyzer

	monitor, err := baseline.NewMonitor(e.source, e.fbQueue, e, e.logger,
		baseline.WithConfig(baseline.Config{
			Tracked:          e.cfg.Metrics.Tracked,
			TrendBand:        e.cfg.Thresholds.TrendBand,
			DegradationRatio: e.cfg.Thresholds.DegradationRatio,
			RetrainingVolume: e.cfg.Thresholds.RetrainingVolume,
			WindowDays:       e.cfg.Thresholds.BaselineWindowDays,
		}))
	if err != nil {
		return fmt.Errorf("building baseline monitor: %w", err)
	}
	e.monitor = monitor

	var execOpts []executor.EngineOption
	if e.events != nil {
		execOpts = append(execOpts, executor.WithEvents(e.events))
	}
	exec, err := executor.NewEngine(e.actQueue, e.store, e.modeler, e.logger, execOpts...)
	if err != nil {
		return fmt.Errorf("building executor: %w", err)
	}
	e.exec = exec

	validator, err := validation.NewValidator(e.store, e.logger,
		validation.WithWindow(e.cfg.Thresholds.ValidationWindow))
	if err != nil {
		return fmt.Errorf("building validator: %w", err)
	}
	e.validator = validator

	insightCfg := insight.DefaultConfig()
	insightCfg.ErrorRateLimit = e.cfg.Thresholds.ErrorRate
	insightCfg.SatisfactionFloor = e.cfg.Thresholds.Satisfaction
	insightCfg.QualityFloor = e.cfg.Thresholds.Quality
	insights, err := insight.NewService(e.store, e.logger, insight.WithConfig(insightCfg))
	if err != nil {
		return fmt.Errorf("building insight service: %w", err)
	}
	e.insights = insights

	return e.buildLoops()
}

// buildLoops creates one loop per stage. Producer loops come first so a
// forward iteration starts and stops them ahead of the executor.
func (e *Engine) buildLoops() error {
	specs := []struct {
		name     string
		interval time.Duration
		task     sched.Task
	}{
		{"analysis", e.cfg.Loops.AnalysisInterval, e.analyzer.Run},
		{"monitor", e.cfg.Loops.MonitorInterval, e.monitor.Run},
		{"execution", e.cfg.Loops.ExecutionInterval, e.exec.Run},
		{"validation", e.cfg.Loops.ValidationInterval, e.validator.Run},
	}
	for _, spec := range specs {
		loop, err := sched.NewLoop(sched.Config{
			Name:     spec.name,
			Interval: spec.interval,
			Backoff:  e.cfg.Loops.ErrorBackoff,
			Task:     spec.task,
		}, e.logger)
		if err != nil {
			return fmt.Errorf("building %s loop: %w", spec.name, err)
		}
		e.loops = append(e.loops, loop)
	}
	return nil
}

// initMetrics initializes OpenTelemetry metrics.
func (e *Engine) initMetrics() {
	var err error

	e.dispatchCounter, err = e.meter.Int64Counter(
		"flywheeld.flywheel.actions_dispatched_total",
		metric.WithDescription("Total number of actions accepted for scheduling"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		e.logger.Warn("failed to create dispatch counter", zap.Error(err))
	}
}

// Dispatch accepts generated actions: each is persisted, enqueued for
// execution, and announced. It is the sink behind both the analyzer and
// the baseline monitor.
func (e *Engine) Dispatch(ctx context.Context, acts ...*action.Action) error {
	ctx, span := e.tracer.Start(ctx, "flywheel.dispatch",
		trace.WithAttributes(attribute.Int("dispatch.count", len(acts))))
	defer span.End()

	for _, act := range acts {
		if err := e.store.SaveAction(ctx, act); err != nil {
			return fmt.Errorf("persisting action: %w", err)
		}
		if err := e.actQueue.Enqueue(act); err != nil {
			return fmt.Errorf("queueing action: %w", err)
		}
		e.events.ActionEvent(ctx, act, events.EventEnqueued)

		if e.dispatchCounter != nil {
			e.dispatchCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("kind", string(act.Kind)),
				attribute.String("trigger", string(act.Trigger)),
			))
		}
		e.logger.Info("action dispatched",
			zap.String("id", act.ID),
			zap.String("kind", string(act.Kind)),
			zap.String("priority", string(act.Priority)))
	}
	return nil
}

// SaveAnalysisRun persists an analysis summary and keeps it as the
// latest for status reporting. It is the run store behind the analyzer.
func (e *Engine) SaveAnalysisRun(ctx context.Context, run *analysis.RunSummary) error {
	if err := e.store.SaveAnalysisRun(ctx, run); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastRun = run
	e.mu.Unlock()
	return nil
}

// Start recovers pending actions from the store, begins watching the
// rules file when configured, and starts the loops. The context bounds
// every loop iteration.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if running {
		return errors.New("engine already started")
	}

	if err := e.recoverPending(ctx); err != nil {
		return err
	}

	if e.cfg.Rules.Watch && e.cfg.Rules.Path != "" {
		if err := e.rules.Watch(ctx); err != nil {
			return fmt.Errorf("watching rules file: %w", err)
		}
	}

	for i, loop := range e.loops {
		if err := loop.Start(ctx); err != nil {
			for _, started := range e.loops[:i] {
				started.Stop()
			}
			e.rules.Stop()
			return fmt.Errorf("starting loops: %w", err)
		}
	}

	e.mu.Lock()
	e.running = true
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.logger.Info("flywheel engine started",
		zap.Int("pending_actions", e.actQueue.Len()),
		zap.Int("loops", len(e.loops)))
	return nil
}

// recoverPending requeues actions that were pending when the previous
// process exited. Actions caught in_progress by a crash are left for
// the operator; re-running a half-executed action is not safe.
func (e *Engine) recoverPending(ctx context.Context) error {
	pending, err := e.store.ListActions(ctx, action.StatusPending, time.Time{})
	if err != nil {
		return fmt.Errorf("recovering pending actions: %w", err)
	}
	for _, act := range pending {
		if err := e.actQueue.Enqueue(act); err != nil {
			return fmt.Errorf("recovering pending actions: %w", err)
		}
	}
	if len(pending) > 0 {
		e.logger.Info("recovered pending actions", zap.Int("count", len(pending)))
	}
	return nil
}

// Stop halts the loops and the rules watcher, waiting for in-flight
// iterations to finish. The store and the NATS connection stay open;
// their lifecycle belongs to the caller. Stopping a stopped engine is a
// no-op.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	for _, loop := range e.loops {
		loop.Stop()
	}
	e.rules.Stop()

	e.logger.Info("flywheel engine stopped")
}

// Status is the engine's queryable state, served by the HTTP API.
type Status struct {
	Running            bool                         `json:"running"`
	UptimeSeconds      int64                        `json:"uptime_seconds"`
	FeedbackQueued     int                          `json:"feedback_queued"`
	ActionsPending     int                          `json:"actions_pending"`
	FeedbackStored     int                          `json:"feedback_stored"`
	ActionsCompleted7d int                          `json:"actions_completed_7d"`
	RetrainingVolume   int                          `json:"retraining_volume"`
	LastAnalysis       *analysis.RunSummary         `json:"last_analysis,omitempty"`
	Baselines          map[string]baseline.Baseline `json:"baselines"`
	Loops              []sched.Status               `json:"loops"`
}

// Status reports the engine's current state. The last analysis falls
// back to the store so a restart does not blank the field.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	e.mu.RLock()
	running := e.running
	startedAt := e.startedAt
	lastRun := e.lastRun
	e.mu.RUnlock()

	st := &Status{
		Running:          running,
		FeedbackQueued:   e.fbQueue.Len(),
		ActionsPending:   e.actQueue.Len(),
		RetrainingVolume: e.cfg.Thresholds.RetrainingVolume,
		LastAnalysis:     lastRun,
		Baselines:        e.monitor.Baselines(),
		Loops:            make([]sched.Status, 0, len(e.loops)),
	}
	if running {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	for _, loop := range e.loops {
		st.Loops = append(st.Loops, loop.Status())
	}

	stored, err := e.store.FeedbackCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting stored feedback: %w", err)
	}
	st.FeedbackStored = stored

	completed, err := e.store.CompletedActionCount(ctx, time.Now().Add(-statusCompletedWindow))
	if err != nil {
		return nil, fmt.Errorf("counting completed actions: %w", err)
	}
	st.ActionsCompleted7d = completed

	if st.LastAnalysis == nil {
		last, err := e.store.LastAnalysisRun(ctx)
		if err != nil {
			return nil, err
		}
		st.LastAnalysis = last
	}

	return st, nil
}

// Ingestor returns the feedback ingestor for the HTTP layer.
func (e *Engine) Ingestor() *feedback.Ingestor {
	return e.ingestor
}

// Insights returns the interaction insight service for the HTTP layer.
func (e *Engine) Insights() *insight.Service {
	return e.insights
}

// Actions lists persisted actions, optionally filtered by status and by
// creation time.
func (e *Engine) Actions(ctx context.Context, status action.Status, since time.Time) ([]*action.Action, error) {
	return e.store.ListActions(ctx, status, since)
}
