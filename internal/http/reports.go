package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/insight"
)

// AnomaliesResponse is the response body for GET /api/v1/reports/anomalies.
type AnomaliesResponse struct {
	Anomalies []insight.Anomaly `json:"anomalies"`
	Count     int               `json:"count"`
}

// RecommendationsResponse is the response body for
// GET /api/v1/reports/recommendations.
type RecommendationsResponse struct {
	Recommendations []insight.Recommendation `json:"recommendations"`
	Count           int                      `json:"count"`
}

// handlePerformanceReport aggregates interactions over the trailing
// window given by the days query parameter.
func (s *Server) handlePerformanceReport(c echo.Context) error {
	days := 0
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be an integer")
		}
		days = parsed
	}

	report, err := s.reporter.Report(c.Request().Context(), days)
	if err != nil {
		s.logger.Error("performance report failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build report")
	}
	return c.JSON(http.StatusOK, report)
}

// handleAnomalies lists suspicious patterns in recent interactions.
func (s *Server) handleAnomalies(c echo.Context) error {
	anomalies, err := s.reporter.Anomalies(c.Request().Context())
	if err != nil {
		s.logger.Error("anomaly scan failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to scan for anomalies")
	}
	if anomalies == nil {
		anomalies = []insight.Anomaly{}
	}
	return c.JSON(http.StatusOK, AnomaliesResponse{Anomalies: anomalies, Count: len(anomalies)})
}

// handleRecommendations lists suggested operational improvements.
func (s *Server) handleRecommendations(c echo.Context) error {
	recs, err := s.reporter.Recommendations(c.Request().Context())
	if err != nil {
		s.logger.Error("recommendation build failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build recommendations")
	}
	if recs == nil {
		recs = []insight.Recommendation{}
	}
	return c.JSON(http.StatusOK, RecommendationsResponse{Recommendations: recs, Count: len(recs)})
}

// handleExportTraining streams qualifying interactions as JSONL
// fine-tuning examples. The status is committed before the first line,
// so a mid-stream failure truncates the output and is only logged.
func (s *Server) handleExportTraining(c echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)

	count, err := s.reporter.ExportTraining(c.Request().Context(), resp)
	if err != nil {
		s.logger.Error("training export failed", zap.Int("exported", count), zap.Error(err))
		return nil
	}
	s.logger.Info("training export complete", zap.Int("exported", count))
	return nil
}
