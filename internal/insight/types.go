// Package insight records individual model interactions and derives
// operational intelligence from them: performance reports, anomaly
// detection, improvement recommendations, and training-data export.
package insight

import (
	"time"

	"github.com/google/uuid"
)

// InteractionRecord is one logged model interaction. Unlike feedback,
// which users submit, interactions are reported by the serving platform
// itself.
type InteractionRecord struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	SessionID        string             `json:"session_id"`
	Kind             string             `json:"kind"`
	Query            string             `json:"query"`
	ResponseSummary  string             `json:"response_summary"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	TokensUsed       int                `json:"tokens_used"`
	ModelVersion     string             `json:"model_version"`
	QualityScores    map[string]float64 `json:"quality_scores,omitempty"`
	ErrorDetail      string             `json:"error_detail,omitempty"`

	// FeedbackID links the feedback entry a user later filed about this
	// interaction, when one exists.
	FeedbackID string `json:"feedback_id,omitempty"`

	// Satisfaction is joined in from the linked feedback entry at query
	// time; nil when no feedback is linked.
	Satisfaction *float64 `json:"satisfaction,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewID returns a fresh interaction record id.
func NewID() string {
	return uuid.NewString()
}

// Failed reports whether the interaction ended in an error.
func (r *InteractionRecord) Failed() bool {
	return r.ErrorDetail != ""
}

// PerformanceReport summarizes interactions over a trailing window.
type PerformanceReport struct {
	PeriodDays        int                `json:"period_days"`
	TotalInteractions int                `json:"total_interactions"`
	ErrorRatePercent  float64            `json:"error_rate_percent"`
	AvgResponseTimeMs float64            `json:"average_response_time_ms"`
	AvgTokens         float64            `json:"average_tokens_per_interaction"`
	AvgQualityScores  map[string]float64 `json:"average_quality_scores,omitempty"`
	AvgSatisfaction   float64            `json:"user_satisfaction_score"`
	Daily             map[string]DayStat `json:"daily_trends,omitempty"`
}

// DayStat is one day's slice of a performance report; keys in
// PerformanceReport.Daily are ISO dates.
type DayStat struct {
	Interactions    int     `json:"interaction_count"`
	AvgResponseTime float64 `json:"avg_response_time"`
	Errors          int     `json:"error_count"`
}

// Anomaly flags one suspicious pattern in recent interactions.
type Anomaly struct {
	Type          string  `json:"type"`
	InteractionID string  `json:"interaction_id,omitempty"`
	Value         float64 `json:"value"`
	Threshold     float64 `json:"threshold"`
	Severity      string  `json:"severity"`
}

// Recommendation is one suggested operational improvement derived from a
// performance report.
type Recommendation struct {
	Area        string  `json:"area"`
	Priority    string  `json:"priority"`
	Suggestion  string  `json:"suggestion"`
	Current     float64 `json:"current_value"`
	TargetValue float64 `json:"target_value"`
}

// TrainingExample is one JSONL line of exported fine-tuning data.
type TrainingExample struct {
	Instruction   string             `json:"instruction"`
	Response      string             `json:"response"`
	Context       string             `json:"context,omitempty"`
	QualityScores map[string]float64 `json:"quality_scores,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}
