// Package executor drains the action queue and carries improvement
// actions through their lifecycle, dispatching each one to a Modeler by
// action kind and recording the outcome.
package executor

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
)

// Modeler performs the model-side work behind improvement actions.
// Implementations talk to whatever serving or training platform hosts
// the model; the executor only sequences them.
type Modeler interface {
	// Retrain schedules or performs a retraining round.
	Retrain(ctx context.Context, act *action.Action) (string, error)

	// UpdateKnowledge refreshes the knowledge sources backing the model.
	UpdateKnowledge(ctx context.Context, act *action.Action) (string, error)

	// OptimizePrompts reworks prompt templates for the issue named in
	// the action parameters.
	OptimizePrompts(ctx context.Context, act *action.Action) (string, error)

	// AdjustThresholds tunes serving-side thresholds.
	AdjustThresholds(ctx context.Context, act *action.Action) (string, error)
}

// Result records how one action execution went.
type Result struct {
	ActionID   string        `json:"action_id"`
	Success    bool          `json:"success"`
	Detail     string        `json:"detail,omitempty"`
	Duration   time.Duration `json:"duration"`
	RecordedAt time.Time     `json:"recorded_at"`
}
