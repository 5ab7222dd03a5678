// Package http provides the HTTP API for flywheeld: feedback and
// interaction ingest, status, action listings, reports, and the
// training-data export.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
	"github.com/fyrsmithlabs/flywheeld/internal/feedback"
	"github.com/fyrsmithlabs/flywheeld/internal/flywheel"
	"github.com/fyrsmithlabs/flywheeld/internal/insight"
)

// Collector ingests one feedback submission.
type Collector interface {
	Collect(ctx context.Context, interactionRef, userRef string, sub feedback.Submission) (*feedback.Entry, error)
}

// InteractionLog records platform interactions and joins feedback onto
// them.
type InteractionLog interface {
	Log(ctx context.Context, rec *insight.InteractionRecord) error
	AttachFeedback(ctx context.Context, interactionID, feedbackID string) error
}

// Reporter serves aggregated insight over logged interactions.
type Reporter interface {
	Report(ctx context.Context, days int) (*insight.PerformanceReport, error)
	Anomalies(ctx context.Context) ([]insight.Anomaly, error)
	Recommendations(ctx context.Context) ([]insight.Recommendation, error)
	ExportTraining(ctx context.Context, w io.Writer) (int, error)
}

// Pipeline is the engine surface the API exposes.
type Pipeline interface {
	Status(ctx context.Context) (*flywheel.Status, error)
	Actions(ctx context.Context, status action.Status, since time.Time) ([]*action.Action, error)
}

// Server provides HTTP endpoints for flywheeld.
type Server struct {
	echo         *echo.Echo
	collector    Collector
	interactions InteractionLog
	reporter     Reporter
	pipeline     Pipeline
	limiter      *rate.Limiter
	logger       *zap.Logger
	config       *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// IngestRate caps feedback and interaction submissions per second
	// across all clients; zero disables the limit. IngestBurst is the
	// token bucket depth.
	IngestRate  float64
	IngestBurst int
}

// NewServer creates a new HTTP server over the given pipeline surfaces.
func NewServer(collector Collector, interactions InteractionLog, reporter Reporter, pipeline Pipeline, logger *zap.Logger, cfg *Config) (*Server, error) {
	if collector == nil {
		return nil, fmt.Errorf("collector cannot be nil")
	}
	if interactions == nil {
		return nil, fmt.Errorf("interaction log cannot be nil")
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8093,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:         e,
		collector:    collector,
		interactions: interactions,
		reporter:     reporter,
		pipeline:     pipeline,
		logger:       logger,
		config:       cfg,
	}
	if cfg.IngestRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.IngestRate), cfg.IngestBurst)
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and Prometheus scrape target
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/feedback", s.handleCollectFeedback, s.ingestLimit)
	v1.POST("/interactions", s.handleLogInteraction, s.ingestLimit)
	v1.GET("/status", s.handleStatus)
	v1.GET("/actions", s.handleListActions)
	v1.GET("/reports/performance", s.handlePerformanceReport)
	v1.GET("/reports/anomalies", s.handleAnomalies)
	v1.GET("/reports/recommendations", s.handleRecommendations)
	v1.POST("/export/training", s.handleExportTraining)
}

// ingestLimit guards the write path with the shared token bucket.
func (s *Server) ingestLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return echo.NewHTTPError(http.StatusTooManyRequests, "ingest rate limit exceeded")
		}
		return next(c)
	}
}

// FeedbackRequest is the request body for POST /api/v1/feedback.
type FeedbackRequest struct {
	InteractionID string         `json:"interaction_id"`
	UserID        string         `json:"user_id"`
	Kind          string         `json:"kind"`
	Satisfaction  float64        `json:"satisfaction"`
	Note          string         `json:"note,omitempty"`
	Suggestions   []string       `json:"suggestions,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// FeedbackResponse is the response body for POST /api/v1/feedback.
type FeedbackResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// InteractionRequest is the request body for POST /api/v1/interactions.
type InteractionRequest struct {
	ID               string             `json:"id,omitempty"`
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
	Timestamp        time.Time          `json:"timestamp,omitzero"`
}

// InteractionResponse is the response body for POST /api/v1/interactions.
type InteractionResponse struct {
	ID string `json:"id"`
}

// ActionsResponse is the response body for GET /api/v1/actions.
type ActionsResponse struct {
	Actions []*action.Action `json:"actions"`
	Count   int              `json:"count"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleCollectFeedback stores one feedback submission and links it to
// its interaction.
func (s *Server) handleCollectFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.InteractionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "interaction_id field is required")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}

	ctx := c.Request().Context()
	entry, err := s.collector.Collect(ctx, req.InteractionID, req.UserID, feedback.Submission{
		Kind:         req.Kind,
		Satisfaction: req.Satisfaction,
		Note:         req.Note,
		Suggestions:  req.Suggestions,
		Context:      req.Context,
	})
	if err != nil {
		s.logger.Error("feedback collection failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store feedback")
	}

	if err := s.interactions.AttachFeedback(ctx, entry.InteractionID, entry.ID); err != nil {
		s.logger.Warn("feedback link failed",
			zap.String("interaction_id", entry.InteractionID),
			zap.String("feedback_id", entry.ID),
			zap.Error(err))
	}

	return c.JSON(http.StatusAccepted, FeedbackResponse{
		ID:   entry.ID,
		Kind: string(entry.Kind),
	})
}

// handleLogInteraction records one platform interaction.
func (s *Server) handleLogInteraction(c echo.Context) error {
	var req InteractionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid interaction request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}

	rec := &insight.InteractionRecord{
		ID:               req.ID,
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		Kind:             req.Kind,
		Query:            req.Query,
		ResponseSummary:  req.ResponseSummary,
		ProcessingTimeMs: req.ProcessingTimeMs,
		TokensUsed:       req.TokensUsed,
		ModelVersion:     req.ModelVersion,
		QualityScores:    req.QualityScores,
		ErrorDetail:      req.ErrorDetail,
		Timestamp:        req.Timestamp,
	}
	if err := s.interactions.Log(c.Request().Context(), rec); err != nil {
		s.logger.Error("interaction log failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store interaction")
	}

	return c.JSON(http.StatusOK, InteractionResponse{ID: rec.ID})
}

// handleStatus returns the engine's current state.
func (s *Server) handleStatus(c echo.Context) error {
	st, err := s.pipeline.Status(c.Request().Context())
	if err != nil {
		s.logger.Error("status query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "status unavailable")
	}
	return c.JSON(http.StatusOK, st)
}

// handleListActions lists persisted actions, filtered by the optional
// status and since query parameters.
func (s *Server) handleListActions(c echo.Context) error {
	status := action.Status(c.QueryParam("status"))
	switch status {
	case "", action.StatusPending, action.StatusInProgress, action.StatusCompleted, action.StatusFailed:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
	}

	var since time.Time
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC 3339 timestamp")
		}
		since = parsed
	}

	acts, err := s.pipeline.Actions(c.Request().Context(), status, since)
	if err != nil {
		s.logger.Error("action listing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list actions")
	}
	if acts == nil {
		acts = []*action.Action{}
	}
	return c.JSON(http.StatusOK, ActionsResponse{Actions: acts, Count: len(acts)})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
