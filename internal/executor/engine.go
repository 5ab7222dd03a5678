package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
	"github.com/fyrsmithlabs/flywheeld/internal/events"
)

const instrumentationName = "github.com/fyrsmithlabs/flywheeld/internal/executor"

// Store persists action state transitions and execution results.
type Store interface {
	UpdateAction(ctx context.Context, act *action.Action) error
	SaveActionResult(ctx context.Context, res *Result) error
}

// Events observes action lifecycle transitions.
type Events interface {
	ActionEvent(ctx context.Context, act *action.Action, event string)
}

// Engine pulls one action off the queue per cycle and runs it through
// the modeler, recording the transition trail and the outcome.
type Engine struct {
	queue   *action.Queue
	store   Store
	modeler Modeler
	events  Events
	logger  *zap.Logger

	// Telemetry
	tracer          trace.Tracer
	meter           metric.Meter
	executedCounter metric.Int64Counter
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEvents sets the lifecycle event publisher.
func WithEvents(ev Events) EngineOption {
	return func(e *Engine) {
		e.events = ev
	}
}

// NewEngine creates an engine draining queue through modeler.
func NewEngine(queue *action.Queue, store Store, modeler Modeler, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if modeler == nil {
		return nil, errors.New("modeler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		queue:   queue,
		store:   store,
		modeler: modeler,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.initMetrics()

	return e, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (e *Engine) initMetrics() {
	var err error

	e.executedCounter, err = e.meter.Int64Counter(
		"flywheeld.executor.actions_executed_total",
		metric.WithDescription("Total number of actions executed, by kind and final status"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		e.logger.Warn("failed to create executed counter", zap.Error(err))
	}
}

// Run executes at most one queued action. An empty queue is a no-op. A
// modeler failure marks the action failed and is not an iteration
// error; only persistence failures propagate.
func (e *Engine) Run(ctx context.Context) error {
	act := e.queue.Next()
	if act == nil {
		e.logger.Debug("no pending actions")
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "executor.run", trace.WithAttributes(
		attribute.String("action.id", act.ID),
		attribute.String("action.kind", string(act.Kind)),
	))
	defer span.End()

	if err := act.Begin(); err != nil {
		return fmt.Errorf("beginning action: %w", err)
	}
	if err := e.store.UpdateAction(ctx, act); err != nil {
		return fmt.Errorf("persisting action start: %w", err)
	}
	e.notify(ctx, act, events.EventStarted)

	e.logger.Info("executing action",
		zap.String("action_id", act.ID),
		zap.String("kind", string(act.Kind)),
		zap.String("priority", string(act.Priority)))

	start := time.Now()
	detail, execErr := e.dispatch(ctx, act)
	elapsed := time.Since(start)
	finished := time.Now().UTC()

	res := &Result{
		ActionID:   act.ID,
		Success:    execErr == nil,
		Detail:     detail,
		Duration:   elapsed,
		RecordedAt: finished,
	}

	event := events.EventCompleted
	if execErr != nil {
		res.Detail = execErr.Error()
		event = events.EventFailed
		if err := act.Fail(finished); err != nil {
			return err
		}
	} else {
		if err := act.Complete(finished); err != nil {
			return err
		}
	}

	if err := e.store.UpdateAction(ctx, act); err != nil {
		return fmt.Errorf("persisting action outcome: %w", err)
	}
	if err := e.store.SaveActionResult(ctx, res); err != nil {
		return fmt.Errorf("persisting action result: %w", err)
	}
	e.notify(ctx, act, event)

	if e.executedCounter != nil {
		e.executedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(act.Kind)),
			attribute.String("status", string(act.Status))))
	}

	if execErr != nil {
		e.logger.Warn("action failed",
			zap.String("action_id", act.ID),
			zap.String("kind", string(act.Kind)),
			zap.Duration("duration", elapsed),
			zap.Error(execErr))
		return nil
	}

	e.logger.Info("action completed",
		zap.String("action_id", act.ID),
		zap.String("kind", string(act.Kind)),
		zap.Duration("duration", elapsed),
		zap.String("detail", res.Detail))

	return nil
}

func (e *Engine) notify(ctx context.Context, act *action.Action, event string) {
	if e.events != nil {
		e.events.ActionEvent(ctx, act, event)
	}
}

// dispatch routes the action to the modeler call for its kind.
func (e *Engine) dispatch(ctx context.Context, act *action.Action) (string, error) {
	switch act.Kind {
	case action.KindRetrain:
		return e.modeler.Retrain(ctx, act)
	case action.KindUpdateKnowledge:
		return e.modeler.UpdateKnowledge(ctx, act)
	case action.KindOptimizePrompts:
		return e.modeler.OptimizePrompts(ctx, act)
	case action.KindAdjustThresholds:
		return e.modeler.AdjustThresholds(ctx, act)
	default:
		return "", fmt.Errorf("unknown action kind %q", act.Kind)
	}
}
