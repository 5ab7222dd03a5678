// Package monitor provides the read side of flywheel observability: a
// client for the Prometheus-compatible query API the serving platform
// exports metrics to, a client for the daemon's own status endpoint, and
// the terminal dashboard built on both.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// MetricsClient queries a Prometheus-compatible instant-query API.
// VictoriaMetrics is the default deployment.
type MetricsClient struct {
	baseURL string
	client  *http.Client
}

// QueryResult is the instant-query response envelope.
type QueryResult struct {
	Status string    `json:"status"`
	Data   QueryData `json:"data"`
}

// QueryData holds the query result data.
type QueryData struct {
	ResultType string         `json:"resultType"`
	Result     []MetricResult `json:"result"`
}

// MetricResult is a single series in a query response.
type MetricResult struct {
	Metric map[string]string `json:"metric"`
	Value  [2]interface{}    `json:"value"`
}

// metricQueries maps tracked serving metric names to the PromQL that
// produces one current value for each. Names without an entry are
// queried as bare series names.
var metricQueries = map[string]string{
	"response_quality":  "avg_over_time(serving_response_quality_score[15m])",
	"user_satisfaction": "avg_over_time(serving_user_satisfaction_score[1h])",
	"response_time":     "histogram_quantile(0.95, rate(serving_response_time_seconds_bucket[15m]))",
	"error_rate":        "rate(serving_requests_failed_total[15m]) / rate(serving_requests_total[15m])",
}

// NewMetricsClient creates a client for the query API at baseURL.
func NewMetricsClient(baseURL string) *MetricsClient {
	return &MetricsClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Query executes a PromQL instant query.
func (c *MetricsClient) Query(ctx context.Context, query string) (QueryResult, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/query")
	if err != nil {
		return QueryResult{}, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return QueryResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return QueryResult{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var result QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return QueryResult{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return result, nil
}

// Read returns the current value of one tracked serving metric. A
// missing series is an error, not a zero: the baseline monitor must
// skip an absent metric rather than anchor a baseline at 0.
func (c *MetricsClient) Read(ctx context.Context, name string) (float64, error) {
	query, ok := metricQueries[name]
	if !ok {
		query = name
	}

	result, err := c.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(result.Data.Result) == 0 {
		return 0, fmt.Errorf("no samples for metric %q", name)
	}

	return extractFloatValue(result)
}

// QueryFeedbackRate queries the feedback ingest rate per minute.
func (c *MetricsClient) QueryFeedbackRate(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "rate(flywheeld_feedback_collected_total[5m]) * 60")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QueryActionRate queries the improvement-action execution rate per hour.
func (c *MetricsClient) QueryActionRate(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "rate(flywheeld_executor_actions_executed_total[1h]) * 3600")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QueryHTTPRate queries the daemon's HTTP request rate per minute.
func (c *MetricsClient) QueryHTTPRate(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "rate(flywheeld_http_request_duration_seconds_count[1m]) * 60")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// QueryHTTPLatencyP95 queries the daemon's HTTP P95 latency in seconds.
func (c *MetricsClient) QueryHTTPLatencyP95(ctx context.Context) (float64, error) {
	result, err := c.Query(ctx, "histogram_quantile(0.95, rate(flywheeld_http_request_duration_seconds_bucket[1m]))")
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// extractFloatValue extracts the first sample value from a query result.
// An empty result set yields zero.
func extractFloatValue(result QueryResult) (float64, error) {
	if len(result.Data.Result) == 0 {
		return 0, nil
	}

	valueStr, ok := result.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, fmt.Errorf("value is not a string")
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse value: %w", err)
	}

	return value, nil
}
