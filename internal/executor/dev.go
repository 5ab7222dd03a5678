package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
)

// DevModeler is the stand-in wired when no serving platform is
// configured. It logs each request and reports success without touching
// a model, which keeps the action lifecycle exercisable end to end.
type DevModeler struct {
	logger *zap.Logger
}

// NewDevModeler creates a DevModeler.
func NewDevModeler(logger *zap.Logger) *DevModeler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DevModeler{logger: logger}
}

func (m *DevModeler) Retrain(_ context.Context, act *action.Action) (string, error) {
	m.logger.Info("dev modeler: retrain requested",
		zap.String("action_id", act.ID),
		zap.String("trigger", string(act.Trigger)))
	return "retraining round scheduled", nil
}

func (m *DevModeler) UpdateKnowledge(_ context.Context, act *action.Action) (string, error) {
	m.logger.Info("dev modeler: knowledge update requested",
		zap.String("action_id", act.ID))
	return "knowledge sources refreshed", nil
}

func (m *DevModeler) OptimizePrompts(_ context.Context, act *action.Action) (string, error) {
	issue, _ := act.Params["issue"].(string)
	m.logger.Info("dev modeler: prompt optimization requested",
		zap.String("action_id", act.ID),
		zap.String("issue", issue))
	return "prompt templates optimized", nil
}

func (m *DevModeler) AdjustThresholds(_ context.Context, act *action.Action) (string, error) {
	m.logger.Info("dev modeler: threshold adjustment requested",
		zap.String("action_id", act.ID))
	return "serving thresholds adjusted", nil
}
