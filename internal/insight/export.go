package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TrainingMinSatisfaction is the linked-feedback score an interaction
// needs before it qualifies as a training example.
const TrainingMinSatisfaction = 4.0

// ExportTraining writes qualifying interactions to w as JSON lines,
// oldest first, and returns how many were written. An interaction
// qualifies when it completed without error and its linked feedback
// scored at least TrainingMinSatisfaction.
func (s *Service) ExportTraining(ctx context.Context, w io.Writer) (int, error) {
	ctx, span := s.tracer.Start(ctx, "insight.export_training")
	defer span.End()

	records, err := s.store.InteractionsSince(ctx, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("loading interactions: %w", err)
	}

	enc := json.NewEncoder(w)
	count := 0
	for _, rec := range records {
		if rec.Failed() || rec.Satisfaction == nil || *rec.Satisfaction < TrainingMinSatisfaction {
			continue
		}
		example := TrainingExample{
			Instruction:   rec.Query,
			Response:      rec.ResponseSummary,
			Context:       rec.Kind,
			QualityScores: rec.QualityScores,
			Timestamp:     rec.Timestamp,
		}
		if err := enc.Encode(example); err != nil {
			return count, fmt.Errorf("writing training example: %w", err)
		}
		count++
	}

	span.SetAttributes(attribute.Int("export.examples", count))
	s.logger.Info("training data exported", zap.Int("examples", count))
	return count, nil
}
