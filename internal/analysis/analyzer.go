package analysis

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
	"github.com/fyrsmithlabs/flywheeld/internal/rules"
)

const instrumentationName = "github.com/fyrsmithlabs/flywheeld/internal/analysis"

// Sink receives generated actions for scheduling.
type Sink interface {
	Dispatch(ctx context.Context, acts ...*action.Action) error
}

// RunStore persists analysis run summaries.
type RunStore interface {
	SaveAnalysisRun(ctx context.Context, run *RunSummary) error
}

// Config tunes one analyzer.
type Config struct {
	// BatchSize caps how many queued entries one run drains.
	BatchSize int
	// SatisfactionThreshold is the batch average below which a retrain
	// action is generated.
	SatisfactionThreshold float64
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:             50,
		SatisfactionThreshold: 4.0,
	}
}

// Analyzer drains the feedback queue each cycle and turns the patterns
// it finds into improvement actions.
type Analyzer struct {
	cfg    Config
	queue  *feedback.Queue
	rules  *rules.Table
	sink   Sink
	runs   RunStore
	logger *zap.Logger

	// Telemetry
	tracer        trace.Tracer
	meter         metric.Meter
	runCounter    metric.Int64Counter
	actionCounter metric.Int64Counter

	mu        sync.RWMutex
	lastStats *BatchStats
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithConfig overrides the default analyzer configuration.
func WithConfig(cfg Config) AnalyzerOption {
	return func(a *Analyzer) {
		a.cfg = cfg
	}
}

// NewAnalyzer creates an analyzer draining queue and dispatching to sink.
func NewAnalyzer(queue *feedback.Queue, table *rules.Table, sink Sink, runs RunStore, logger *zap.Logger, opts ...AnalyzerOption) (*Analyzer, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if table == nil {
		return nil, errors.New("rules table is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	if runs == nil {
		return nil, errors.New("run store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Analyzer{
		cfg:    DefaultConfig(),
		queue:  queue,
		rules:  table,
		sink:   sink,
		runs:   runs,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.cfg.BatchSize < 1 {
		a.cfg.BatchSize = DefaultConfig().BatchSize
	}

	a.initMetrics()

	return a, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (a *Analyzer) initMetrics() {
	var err error

	a.runCounter, err = a.meter.Int64Counter(
		"flywheeld.analysis.runs_total",
		metric.WithDescription("Total number of completed analysis cycles"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		a.logger.Warn("failed to create run counter", zap.Error(err))
	}

	a.actionCounter, err = a.meter.Int64Counter(
		"flywheeld.analysis.actions_generated_total",
		metric.WithDescription("Total number of improvement actions generated by analysis"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		a.logger.Warn("failed to create action counter", zap.Error(err))
	}
}

// Run performs one analysis cycle: drain the most recent batch, compute
// statistics, dispatch any generated actions, and persist the run
// summary. An empty queue is a no-op.
func (a *Analyzer) Run(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, "analysis.run")
	defer span.End()

	batch := a.queue.DrainRecent(a.cfg.BatchSize)
	if len(batch) == 0 {
		a.logger.Debug("no feedback queued, skipping analysis")
		return nil
	}

	stats := a.analyze(batch)
	acts := a.generateActions(stats)

	span.SetAttributes(
		attribute.Int("analysis.batch_size", stats.Total),
		attribute.Float64("analysis.average_satisfaction", stats.AvgSatisfaction),
		attribute.String("analysis.trend", string(stats.Trend)),
		attribute.Int("analysis.actions_generated", len(acts)),
	)

	if len(acts) > 0 {
		if err := a.sink.Dispatch(ctx, acts...); err != nil {
			return fmt.Errorf("dispatching %d actions: %w", len(acts), err)
		}
	}

	run := &RunSummary{
		BatchSize:        stats.Total,
		AvgSatisfaction:  stats.AvgSatisfaction,
		Trend:            stats.Trend,
		QualityFlag:      stats.QualityFlag,
		ActionsGenerated: len(acts),
		KindCounts:       stats.KindCounts,
		IssueCounts:      stats.IssueCounts,
		RanAt:            time.Now().UTC(),
	}
	if err := a.runs.SaveAnalysisRun(ctx, run); err != nil {
		return fmt.Errorf("persisting analysis run: %w", err)
	}

	a.mu.Lock()
	a.lastStats = stats
	a.mu.Unlock()

	if a.runCounter != nil {
		a.runCounter.Add(ctx, 1)
	}
	if a.actionCounter != nil && len(acts) > 0 {
		a.actionCounter.Add(ctx, int64(len(acts)))
	}

	if stats.QualityFlag {
		a.logger.Warn("low-satisfaction share above limit",
			zap.Float64("average_satisfaction", stats.AvgSatisfaction),
			zap.Int("batch_size", stats.Total))
	}

	a.logger.Info("analysis cycle complete",
		zap.Int("batch_size", stats.Total),
		zap.Float64("average_satisfaction", stats.AvgSatisfaction),
		zap.String("trend", string(stats.Trend)),
		zap.Int("actions_generated", len(acts)))

	return nil
}

// LastStats returns the statistics of the most recent non-empty cycle,
// or nil before the first one.
func (a *Analyzer) LastStats() *BatchStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastStats
}

// analyze computes batch statistics for one drained batch. The batch
// must be non-empty.
func (a *Analyzer) analyze(batch []*feedback.Entry) *BatchStats {
	stats := &BatchStats{
		Total:            len(batch),
		KindCounts:       make(map[feedback.Kind]int),
		IssueCounts:      make(map[string]int),
		SuggestionCounts: make(map[string]int),
	}

	low := 0
	var sum float64
	for _, e := range batch {
		sum += e.Satisfaction
		stats.KindCounts[e.Kind]++
		if e.Satisfaction < rules.LowSatisfactionScore {
			low++
		}
		if e.Note != "" {
			for _, tag := range a.rules.Match(e.Note) {
				stats.IssueCounts[tag]++
			}
		}
		for _, s := range e.Suggestions {
			stats.SuggestionCounts[s]++
		}
	}

	stats.AvgSatisfaction = sum / float64(len(batch))
	stats.Trend = classifyTrend(batch)
	stats.QualityFlag = float64(low) > rules.LowQualityShare*float64(len(batch))

	return stats
}

// generateActions derives improvement actions from batch statistics.
func (a *Analyzer) generateActions(stats *BatchStats) []*action.Action {
	var acts []*action.Action

	if stats.AvgSatisfaction < a.cfg.SatisfactionThreshold {
		acts = append(acts, action.New(
			action.TriggerUserSatisfaction,
			action.PriorityHigh,
			action.KindRetrain,
			fmt.Sprintf("retrain model on recent feedback: average satisfaction %.2f below target %.2f",
				stats.AvgSatisfaction, a.cfg.SatisfactionThreshold),
			map[string]any{
				"average_satisfaction": stats.AvgSatisfaction,
				"threshold":            a.cfg.SatisfactionThreshold,
			},
			0.3,
		))
	}

	for _, issue := range topIssues(stats.IssueCounts, rules.TopIssueTags) {
		if issue.count <= rules.IssueTagMinCount {
			continue
		}
		acts = append(acts, action.New(
			action.TriggerQualityThreshold,
			action.PriorityMedium,
			action.KindOptimizePrompts,
			fmt.Sprintf("optimize prompts to address recurring %s issues", issue.tag),
			map[string]any{
				"issue": issue.tag,
				"count": issue.count,
			},
			0.2,
		))
	}

	if stats.Trend == TrendDeclining {
		acts = append(acts, action.New(
			action.TriggerQualityThreshold,
			action.PriorityCritical,
			action.KindRetrain,
			"retrain model: satisfaction declining across recent feedback",
			map[string]any{
				"trend":                string(TrendDeclining),
				"average_satisfaction": stats.AvgSatisfaction,
			},
			0.4,
		))
	}

	return acts
}
