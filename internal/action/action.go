// Package action defines improvement actions, their status state machine,
// and the priority-ordered pending queue the execution engine drains.
package action

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Trigger names the condition that generated an action.
type Trigger string

const (
	TriggerQualityThreshold       Trigger = "quality_threshold"
	TriggerUserSatisfaction       Trigger = "user_satisfaction"
	TriggerErrorRate              Trigger = "error_rate"
	TriggerPerformanceDegradation Trigger = "performance_degradation"
	TriggerScheduled              Trigger = "scheduled"
)

// Priority is one of four fixed urgency bands governing execution order.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank maps a priority onto its numeric order: critical(0) < high(1) <
// medium(2) < low(3). Unknown priorities sort after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Kind selects which execution handler an action dispatches to.
type Kind string

const (
	KindRetrain          Kind = "retrain"
	KindUpdateKnowledge  Kind = "update_knowledge"
	KindOptimizePrompts  Kind = "optimize_prompts"
	KindAdjustThresholds Kind = "adjust_thresholds"
)

// Status is an action's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Action is one scheduled corrective operation. The id is immutable after
// creation; only Status and CompletedAt mutate afterward.
type Action struct {
	ID          string         `json:"id"`
	Trigger     Trigger        `json:"trigger"`
	Priority    Priority       `json:"priority"`
	Kind        Kind           `json:"kind"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`

	// EstimatedImpact is a [0,1] guess at how much the action will move
	// the degraded signal, stored as given.
	EstimatedImpact float64 `json:"estimated_impact"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending action with a content-derived id.
func New(trigger Trigger, priority Priority, kind Kind, description string, params map[string]any, impact float64) *Action {
	now := time.Now().UTC()
	return &Action{
		ID:              DeriveID(string(kind)+"_"+description, now),
		Trigger:         trigger,
		Priority:        priority,
		Kind:            kind,
		Description:     description,
		Params:          params,
		EstimatedImpact: impact,
		Status:          StatusPending,
		CreatedAt:       now,
	}
}

// DeriveID produces the content-derived action id: a 16-byte hex prefix of
// the SHA-256 over a seed and the creation time.
func DeriveID(seed string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s", seed, at.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:16])
}

// Begin transitions pending to in_progress.
func (a *Action) Begin() error {
	if a.Status != StatusPending {
		return fmt.Errorf("action %s: cannot begin from status %q", a.ID, a.Status)
	}
	a.Status = StatusInProgress
	return nil
}

// Complete transitions in_progress to the terminal completed status.
func (a *Action) Complete(at time.Time) error {
	if a.Status != StatusInProgress {
		return fmt.Errorf("action %s: cannot complete from status %q", a.ID, a.Status)
	}
	a.Status = StatusCompleted
	t := at.UTC()
	a.CompletedAt = &t
	return nil
}

// Fail transitions in_progress to the terminal failed status. Failed
// actions are never retried; re-submission is a new action with a new id.
func (a *Action) Fail(at time.Time) error {
	if a.Status != StatusInProgress {
		return fmt.Errorf("action %s: cannot fail from status %q", a.ID, a.Status)
	}
	a.Status = StatusFailed
	t := at.UTC()
	a.CompletedAt = &t
	return nil
}

// Terminal reports whether the action has reached a final status.
func (a *Action) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed
}
