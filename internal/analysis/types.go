// Package analysis mines batches of recent feedback for satisfaction
// trends and recurring issues, and turns what it finds into queued
// improvement actions.
package analysis

import (
	"time"

	"github.com/fyrsmithlabs/flywheeld/internal/feedback"
)

// Trend describes how satisfaction moved across a feedback batch.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"

	// TrendInsufficient is reported when the batch is too small to
	// split into meaningful halves.
	TrendInsufficient Trend = "insufficient_data"
)

// BatchStats is everything one analysis pass computes from a drained
// feedback batch before any actions are generated.
type BatchStats struct {
	Total            int                  `json:"total"`
	AvgSatisfaction  float64              `json:"average_satisfaction"`
	KindCounts       map[feedback.Kind]int `json:"kind_counts,omitempty"`
	IssueCounts      map[string]int       `json:"issue_counts,omitempty"`
	SuggestionCounts map[string]int       `json:"suggestion_counts,omitempty"`
	Trend            Trend                `json:"trend"`
	QualityFlag      bool                 `json:"quality_flag"`
}

// RunSummary is the persisted record of one analysis cycle.
type RunSummary struct {
	BatchSize        int                  `json:"batch_size"`
	AvgSatisfaction  float64              `json:"average_satisfaction"`
	Trend            Trend                `json:"trend"`
	QualityFlag      bool                 `json:"quality_flag"`
	ActionsGenerated int                  `json:"actions_generated"`
	KindCounts       map[feedback.Kind]int `json:"kind_counts,omitempty"`
	IssueCounts      map[string]int       `json:"issue_counts,omitempty"`
	RanAt            time.Time            `json:"ran_at"`
}
