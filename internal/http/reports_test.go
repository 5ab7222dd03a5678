package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/flywheeld/internal/insight"
)

func TestHandlePerformanceReport(t *testing.T) {
	t.Run("returns report for requested window", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.reporter.report = &insight.PerformanceReport{
			PeriodDays:        30,
			TotalInteractions: 240,
			ErrorRatePercent:  2.5,
			AvgSatisfaction:   4.1,
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?days=30", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp insight.PerformanceReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 30, resp.PeriodDays)
		assert.Equal(t, 240, resp.TotalInteractions)
		assert.InDelta(t, 4.1, resp.AvgSatisfaction, 0.001)
	})

	t.Run("passes days through to the reporter", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?days=14", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp insight.PerformanceReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 14, resp.PeriodDays)
	})

	t.Run("rejects non-integer days", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?days=fortnight", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns 500 when reporter fails", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.reporter.err = errors.New("store offline")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleAnomalies(t *testing.T) {
	t.Run("returns detected anomalies", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.reporter.anoms = []insight.Anomaly{
			{Type: "high_error_rate", Value: 0.12, Threshold: 0.05, Severity: "high"},
			{Type: "slow_response", InteractionID: "int-9", Value: 30000, Threshold: 10000, Severity: "medium"},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/anomalies", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp AnomaliesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "high_error_rate", resp.Anomalies[0].Type)
	})

	t.Run("returns empty list when clean", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/anomalies", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp AnomaliesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
		assert.NotNil(t, resp.Anomalies)
	})
}

func TestHandleRecommendations(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.reporter.recs = []insight.Recommendation{
		{Area: "reliability", Priority: "high", Suggestion: "Investigate and fix error sources", Current: 7.2, TargetValue: 5.0},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/recommendations", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp RecommendationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "reliability", resp.Recommendations[0].Area)
}

func TestHandleExportTraining(t *testing.T) {
	t.Run("streams examples as jsonl", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.reporter.examples = []insight.TrainingExample{
			{Instruction: "summarize the incident", Response: "two nodes lost quorum", Timestamp: time.Now().UTC()},
			{Instruction: "draft a fix", Response: "raise the election timeout", Timestamp: time.Now().UTC()},
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/export/training", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 2)
		for _, line := range lines {
			var ex insight.TrainingExample
			require.NoError(t, json.Unmarshal([]byte(line), &ex))
			assert.NotEmpty(t, ex.Instruction)
		}
	})

	t.Run("empty export still succeeds", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/export/training", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, strings.TrimSpace(rec.Body.String()))
	})

	t.Run("mid-stream failure keeps committed status", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.reporter.err = errors.New("store offline")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/export/training", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
