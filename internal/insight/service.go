package insight

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
)

const instrumentationName = "github.com/fyrsmithlabs/flywheeld/internal/insight"

// Store persists and queries interaction records.
type Store interface {
	SaveInteraction(ctx context.Context, r *InteractionRecord) error
	LinkFeedback(ctx context.Context, interactionID, feedbackID string) error
	InteractionsSince(ctx context.Context, since time.Time) ([]*InteractionRecord, error)
}

// Config holds the report thresholds recommendations are derived from.
type Config struct {
	// ResponseTimeLimitMs flags slow serving; ResponseTimeTargetMs is the
	// recommended goal.
	ResponseTimeLimitMs  float64
	ResponseTimeTargetMs float64
	// ErrorRateLimit and ErrorRateTarget are fractions of interactions.
	ErrorRateLimit  float64
	ErrorRateTarget float64
	// SatisfactionFloor and SatisfactionTarget are 1-5 scores.
	SatisfactionFloor  float64
	SatisfactionTarget float64
	// QualityFloor and QualityTarget apply to each quality metric mean.
	QualityFloor  float64
	QualityTarget float64
}

// DefaultConfig returns the recommendation thresholds.
func DefaultConfig() Config {
	return Config{
		ResponseTimeLimitMs:  5000,
		ResponseTimeTargetMs: 3000,
		ErrorRateLimit:       0.05,
		ErrorRateTarget:      0.01,
		SatisfactionFloor:    4.0,
		SatisfactionTarget:   4.5,
		QualityFloor:         0.8,
		QualityTarget:        0.9,
	}
}

// Service logs interactions and answers report, anomaly, and export
// queries over them.
type Service struct {
	cfg    Config
	store  Store
	logger *zap.Logger

	// Telemetry
	tracer        trace.Tracer
	meter         metric.Meter
	loggedCounter metric.Int64Counter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// NewService creates an insight service over store.
func NewService(store Store, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:    DefaultConfig(),
		store:  store,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *Service) initMetrics() {
	var err error

	s.loggedCounter, err = s.meter.Int64Counter(
		"flywheeld.insight.interactions_logged_total",
		metric.WithDescription("Total number of interaction records logged"),
		metric.WithUnit("{interaction}"),
	)
	if err != nil {
		s.logger.Warn("failed to create logged counter", zap.Error(err))
	}
}

// Log persists one interaction record, assigning an id and timestamp
// when the reporter left them unset.
func (s *Service) Log(ctx context.Context, rec *InteractionRecord) error {
	if rec == nil {
		return errors.New("interaction record is required")
	}

	ctx, span := s.tracer.Start(ctx, "insight.log")
	defer span.End()

	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	span.SetAttributes(
		attribute.String("interaction.id", rec.ID),
		attribute.String("interaction.kind", rec.Kind),
		attribute.Bool("interaction.failed", rec.Failed()),
	)

	if err := s.store.SaveInteraction(ctx, rec); err != nil {
		return fmt.Errorf("persisting interaction: %w", err)
	}

	if s.loggedCounter != nil {
		s.loggedCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("failed", rec.Failed())))
	}

	s.logger.Debug("interaction logged",
		zap.String("interaction_id", rec.ID),
		zap.String("kind", rec.Kind),
		zap.Float64("processing_time_ms", rec.ProcessingTimeMs))

	return nil
}

// AttachFeedback links a feedback entry to the interaction it concerns.
// Interactions this instance never logged are tolerated.
func (s *Service) AttachFeedback(ctx context.Context, interactionID, feedbackID string) error {
	if interactionID == "" || feedbackID == "" {
		return nil
	}
	if err := s.store.LinkFeedback(ctx, interactionID, feedbackID); err != nil {
		return fmt.Errorf("linking feedback: %w", err)
	}
	return nil
}
