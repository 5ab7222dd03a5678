// Package baseline tracks quality metrics against their first observed
// values and generates corrective actions when performance degrades or
// queued feedback volume warrants a scheduled retrain.
package baseline

import "time"

// Trend describes how a metric's current value sits relative to its
// baseline.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// initialConfidence is recorded when a baseline is first established.
const initialConfidence = 0.8

// Baseline anchors one metric to its first observed value. BaselineValue
// never changes after creation; deleting the entry and letting the next
// cycle re-create it is the only way to re-anchor.
type Baseline struct {
	MetricName        string    `json:"metric_name"`
	BaselineValue     float64   `json:"baseline_value"`
	CurrentValue      float64   `json:"current_value"`
	Trend             Trend     `json:"trend"`
	LastUpdated       time.Time `json:"last_updated"`
	ConfidenceLevel   float64   `json:"confidence_level"`
	MeasurementPeriod string    `json:"measurement_period"`
}

// classify places current relative to the band around base. Movement
// must exceed the band strictly; the edges read as stable.
func classify(current, base, band float64) Trend {
	switch {
	case current > base*(1+band):
		return TrendImproving
	case current < base*(1-band):
		return TrendDeclining
	default:
		return TrendStable
	}
}
