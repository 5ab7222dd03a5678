package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StatusPayload mirrors the daemon's /api/v1/status response body. The
// dashboard decodes only the fields it displays.
type StatusPayload struct {
	Running            bool                    `json:"running"`
	UptimeSeconds      int64                   `json:"uptime_seconds"`
	FeedbackQueued     int                     `json:"feedback_queued"`
	ActionsPending     int                     `json:"actions_pending"`
	FeedbackStored     int                     `json:"feedback_stored"`
	ActionsCompleted7d int                     `json:"actions_completed_7d"`
	RetrainingVolume   int                     `json:"retraining_volume"`
	LastAnalysis       *AnalysisView           `json:"last_analysis,omitempty"`
	Baselines          map[string]BaselineView `json:"baselines,omitempty"`
	Loops              []LoopView              `json:"loops,omitempty"`
}

// AnalysisView is the most recent analysis run as reported by the daemon.
type AnalysisView struct {
	BatchSize        int       `json:"batch_size"`
	AvgSatisfaction  float64   `json:"average_satisfaction"`
	Trend            string    `json:"trend"`
	QualityFlag      bool      `json:"quality_flag"`
	ActionsGenerated int       `json:"actions_generated"`
	RanAt            time.Time `json:"ran_at"`
}

// BaselineView is one tracked metric's baseline state.
type BaselineView struct {
	MetricName    string  `json:"metric_name"`
	BaselineValue float64 `json:"baseline_value"`
	CurrentValue  float64 `json:"current_value"`
	Trend         string  `json:"trend"`
}

// LoopView is one background loop's liveness counters.
type LoopView struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Cycles    uint64 `json:"cycles"`
	Failures  uint64 `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// StatusClient reads the daemon's status endpoint.
type StatusClient struct {
	baseURL string
	client  *http.Client
}

// NewStatusClient creates a client for the daemon API at baseURL.
func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Status fetches the current engine status.
func (c *StatusClient) Status(ctx context.Context) (StatusPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return StatusPayload{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return StatusPayload{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatusPayload{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var payload StatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return StatusPayload{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return payload, nil
}
