package feedback

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

const instrumentationName = "github.com/fyrsmithlabs/flywheeld/internal/feedback"

// Store persists feedback entries.
type Store interface {
	SaveFeedback(ctx context.Context, e *Entry) error
}

// Scrubber removes secrets and other sensitive material from free text
// before it is persisted.
type Scrubber interface {
	Scrub(text string) string
}

// Submission is the raw feedback payload handed to Collect by the
// surrounding platform (HTTP ingest, webhook connector, CLI).
type Submission struct {
	Kind         string         `json:"kind"`
	Satisfaction float64        `json:"satisfaction"`
	Note         string         `json:"note,omitempty"`
	Suggestions  []string       `json:"suggestions,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// Ingestor normalizes, persists, and queues incoming feedback.
type Ingestor struct {
	store    Store
	queue    *Queue
	scrubber Scrubber
	logger   *zap.Logger

	// Telemetry
	tracer           trace.Tracer
	meter            metric.Meter
	collectedCounter metric.Int64Counter
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithScrubber sets the note scrubber. Without one, notes are stored as
// submitted.
func WithScrubber(s Scrubber) IngestorOption {
	return func(i *Ingestor) {
		i.scrubber = s
	}
}

// NewIngestor creates an ingestor writing to store and queue.
func NewIngestor(store Store, queue *Queue, logger *zap.Logger, opts ...IngestorOption) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	i := &Ingestor{
		store:  store,
		queue:  queue,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(i)
	}

	i.initMetrics()

	return i, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (i *Ingestor) initMetrics() {
	var err error

	i.collectedCounter, err = i.meter.Int64Counter(
		"flywheeld.feedback.collected_total",
		metric.WithDescription("Total number of feedback entries collected"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		i.logger.Warn("failed to create collected counter", zap.Error(err))
	}
}

// Collect normalizes the submission, persists it, and appends it to the
// pending queue for the analyzer.
//
// Malformed input (unknown kind, missing fields) is normalized rather than
// rejected. The only error surfaced to the caller is storage
// unavailability, which the caller must retry.
func (i *Ingestor) Collect(ctx context.Context, interactionRef, userRef string, sub Submission) (*Entry, error) {
	ctx, span := i.tracer.Start(ctx, "feedback.collect")
	defer span.End()

	now := time.Now().UTC()
	kind := NormalizeKind(sub.Kind)

	note := sub.Note
	if i.scrubber != nil {
		note = i.scrubber.Scrub(note)
	}

	entry := &Entry{
		ID:            DeriveID(interactionRef, userRef, now),
		InteractionID: interactionRef,
		UserID:        userRef,
		Kind:          kind,
		Satisfaction:  sub.Satisfaction,
		Note:          note,
		Suggestions:   sub.Suggestions,
		Timestamp:     now,
		Context:       sub.Context,
	}

	span.SetAttributes(
		attribute.String("feedback.kind", string(kind)),
		attribute.Float64("feedback.satisfaction", entry.Satisfaction),
	)

	if err := i.store.SaveFeedback(ctx, entry); err != nil {
		return nil, fmt.Errorf("persisting feedback: %w", err)
	}

	i.queue.Append(entry)

	if i.collectedCounter != nil {
		i.collectedCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", string(kind))))
	}

	i.logger.Info("feedback collected",
		zap.String("feedback_id", entry.ID),
		zap.String("kind", string(kind)),
		zap.Float64("satisfaction", entry.Satisfaction),
		zap.Int("queued", i.queue.Len()))

	return entry, nil
}
