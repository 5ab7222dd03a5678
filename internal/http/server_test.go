package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/action"
	"github.com/fyrsmithlabs/flywheeld/internal/feedback"
	"github.com/fyrsmithlabs/flywheeld/internal/flywheel"
	"github.com/fyrsmithlabs/flywheeld/internal/insight"
)

type fakeCollector struct {
	mu      sync.Mutex
	entries []*feedback.Entry
	err     error
}

func (f *fakeCollector) Collect(_ context.Context, interactionRef, userRef string, sub feedback.Submission) (*feedback.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	entry := &feedback.Entry{
		ID:            feedback.DeriveID(interactionRef, userRef, time.Now().UTC()),
		InteractionID: interactionRef,
		UserID:        userRef,
		Kind:          feedback.NormalizeKind(sub.Kind),
		Satisfaction:  sub.Satisfaction,
		Note:          sub.Note,
	}
	f.mu.Lock()
	f.entries = append(f.entries, entry)
	f.mu.Unlock()
	return entry, nil
}

type fakeInteractions struct {
	mu        sync.Mutex
	logged    []*insight.InteractionRecord
	attached  map[string]string
	logErr    error
	attachErr error
}

func (f *fakeInteractions) Log(_ context.Context, rec *insight.InteractionRecord) error {
	if f.logErr != nil {
		return f.logErr
	}
	if rec.ID == "" {
		rec.ID = insight.NewID()
	}
	f.mu.Lock()
	f.logged = append(f.logged, rec)
	f.mu.Unlock()
	return nil
}

func (f *fakeInteractions) AttachFeedback(_ context.Context, interactionID, feedbackID string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.mu.Lock()
	if f.attached == nil {
		f.attached = make(map[string]string)
	}
	f.attached[interactionID] = feedbackID
	f.mu.Unlock()
	return nil
}

type fakeReporter struct {
	report   *insight.PerformanceReport
	anoms    []insight.Anomaly
	recs     []insight.Recommendation
	examples []insight.TrainingExample
	err      error
}

func (f *fakeReporter) Report(_ context.Context, days int) (*insight.PerformanceReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &insight.PerformanceReport{PeriodDays: days}, nil
}

func (f *fakeReporter) Anomalies(_ context.Context) ([]insight.Anomaly, error) {
	return f.anoms, f.err
}

func (f *fakeReporter) Recommendations(_ context.Context) ([]insight.Recommendation, error) {
	return f.recs, f.err
}

func (f *fakeReporter) ExportTraining(_ context.Context, w io.Writer) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	for i, ex := range f.examples {
		line, err := json.Marshal(ex)
		if err != nil {
			return i, err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return i, err
		}
	}
	return len(f.examples), nil
}

type fakePipeline struct {
	status     *flywheel.Status
	actions    []*action.Action
	err        error
	lastStatus action.Status
	lastSince  time.Time
}

func (f *fakePipeline) Status(_ context.Context) (*flywheel.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.status != nil {
		return f.status, nil
	}
	return &flywheel.Status{Running: true}, nil
}

func (f *fakePipeline) Actions(_ context.Context, status action.Status, since time.Time) ([]*action.Action, error) {
	f.lastStatus = status
	f.lastSince = since
	return f.actions, f.err
}

type testBackend struct {
	collector    *fakeCollector
	interactions *fakeInteractions
	reporter     *fakeReporter
	pipeline     *fakePipeline
}

func newTestBackend() *testBackend {
	return &testBackend{
		collector:    &fakeCollector{},
		interactions: &fakeInteractions{},
		reporter:     &fakeReporter{},
		pipeline:     &fakePipeline{},
	}
}

func (b *testBackend) server(t *testing.T, cfg *Config) *Server {
	t.Helper()
	server, err := NewServer(b.collector, b.interactions, b.reporter, b.pipeline, zap.NewNop(), cfg)
	require.NoError(t, err)
	return server
}

// setupTestServer creates a test server with default configuration.
func setupTestServer(t *testing.T) (*Server, *testBackend) {
	t.Helper()
	backend := newTestBackend()
	return backend.server(t, &Config{Host: "localhost", Port: 8093}), backend
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		backend := newTestBackend()
		cfg := &Config{Host: "localhost", Port: 8093}

		server, err := NewServer(backend.collector, backend.interactions, backend.reporter, backend.pipeline, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
		assert.Nil(t, server.limiter)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		backend := newTestBackend()

		server, err := NewServer(backend.collector, backend.interactions, backend.reporter, backend.pipeline, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8093, server.config.Port)
	})

	t.Run("builds limiter when ingest rate set", func(t *testing.T) {
		backend := newTestBackend()

		server, err := NewServer(backend.collector, backend.interactions, backend.reporter, backend.pipeline, zap.NewNop(), &Config{
			Host:        "localhost",
			Port:        8093,
			IngestRate:  10,
			IngestBurst: 20,
		})
		require.NoError(t, err)
		assert.NotNil(t, server.limiter)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		backend := newTestBackend()

		_, err := NewServer(backend.collector, backend.interactions, backend.reporter, backend.pipeline, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when collector is nil", func(t *testing.T) {
		backend := newTestBackend()

		_, err := NewServer(nil, backend.interactions, backend.reporter, backend.pipeline, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "collector cannot be nil")
	})

	t.Run("returns error when pipeline is nil", func(t *testing.T) {
		backend := newTestBackend()

		_, err := NewServer(backend.collector, backend.interactions, backend.reporter, nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleCollectFeedback(t *testing.T) {
	t.Run("accepts submission and links interaction", func(t *testing.T) {
		server, backend := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/feedback", FeedbackRequest{
			InteractionID: "int-1",
			UserID:        "user-1",
			Kind:          "positive",
			Satisfaction:  5,
			Note:          "nailed it",
		})

		assert.Equal(t, http.StatusAccepted, rec.Code)

		var resp FeedbackResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "positive", resp.Kind)

		require.Len(t, backend.collector.entries, 1)
		assert.Equal(t, resp.ID, backend.interactions.attached["int-1"])
	})

	t.Run("rejects missing interaction_id", func(t *testing.T) {
		server, backend := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/feedback", FeedbackRequest{UserID: "user-1"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, backend.collector.entries)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp["message"], "interaction_id field is required")
	})

	t.Run("rejects missing user_id", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/feedback", FeedbackRequest{InteractionID: "int-1"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", bytes.NewReader([]byte("invalid json")))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("still accepts when interaction link fails", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.interactions.attachErr = errors.New("no such interaction")

		rec := postJSON(t, server, "/api/v1/feedback", FeedbackRequest{
			InteractionID: "int-unknown",
			UserID:        "user-1",
			Satisfaction:  2,
		})

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, backend.collector.entries, 1)
	})

	t.Run("returns 500 when storage fails", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.collector.err = errors.New("disk full")

		rec := postJSON(t, server, "/api/v1/feedback", FeedbackRequest{
			InteractionID: "int-1",
			UserID:        "user-1",
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleLogInteraction(t *testing.T) {
	t.Run("logs interaction and returns id", func(t *testing.T) {
		server, backend := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/interactions", InteractionRequest{
			UserID:           "user-1",
			SessionID:        "sess-1",
			Kind:             "query",
			Query:            "how do I rotate credentials",
			ProcessingTimeMs: 420,
			TokensUsed:       96,
		})

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp InteractionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)

		require.Len(t, backend.interactions.logged, 1)
		assert.Equal(t, resp.ID, backend.interactions.logged[0].ID)
		assert.Equal(t, "user-1", backend.interactions.logged[0].UserID)
	})

	t.Run("keeps caller-provided id", func(t *testing.T) {
		server, backend := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/interactions", InteractionRequest{
			ID:     "int-77",
			UserID: "user-1",
		})

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp InteractionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "int-77", resp.ID)
		require.Len(t, backend.interactions.logged, 1)
	})

	t.Run("rejects missing user_id", func(t *testing.T) {
		server, backend := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/interactions", InteractionRequest{SessionID: "sess-1"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, backend.interactions.logged)
	})

	t.Run("returns 500 when storage fails", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.interactions.logErr = errors.New("disk full")

		rec := postJSON(t, server, "/api/v1/interactions", InteractionRequest{UserID: "user-1"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleStatus(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.pipeline.status = &flywheel.Status{
		Running:        true,
		FeedbackStored: 12,
		ActionsPending: 3,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp flywheel.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Running)
	assert.Equal(t, 12, resp.FeedbackStored)
	assert.Equal(t, 3, resp.ActionsPending)
}

func TestHandleListActions(t *testing.T) {
	t.Run("lists actions", func(t *testing.T) {
		server, backend := setupTestServer(t)
		backend.pipeline.actions = []*action.Action{
			action.New(action.TriggerUserSatisfaction, action.PriorityHigh, action.KindRetrain, "retrain on corrections", nil, 0.3),
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/actions", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ActionsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Actions, 1)
		assert.Equal(t, action.KindRetrain, resp.Actions[0].Kind)
	})

	t.Run("passes filters through", func(t *testing.T) {
		server, backend := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/actions?status=completed&since=2025-08-01T00:00:00Z", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, action.StatusCompleted, backend.pipeline.lastStatus)
		assert.Equal(t, 2025, backend.pipeline.lastSince.Year())
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/actions?status=bogus", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed since", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/actions?since=yesterday", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns empty list when nothing matches", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/actions", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ActionsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
		assert.NotNil(t, resp.Actions)
	})
}

func TestIngestRateLimit(t *testing.T) {
	backend := newTestBackend()
	server := backend.server(t, &Config{
		Host:        "localhost",
		Port:        8093,
		IngestRate:  1,
		IngestBurst: 1,
	})

	first := postJSON(t, server, "/api/v1/interactions", InteractionRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, server, "/api/v1/feedback", FeedbackRequest{InteractionID: "int-1", UserID: "user-1"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Read endpoints are never limited.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	t.Run("starts and shuts down gracefully", func(t *testing.T) {
		backend := newTestBackend()
		server := backend.server(t, &Config{
			Host: "localhost",
			Port: 0, // Use random available port
		})

		// Start server in background
		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Start()
		}()

		// Give server time to start
		time.Sleep(100 * time.Millisecond)

		// Shutdown server
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := server.Shutdown(ctx)
		assert.NoError(t, err)

		// Wait for server to finish
		select {
		case err := <-errChan:
			// Server should shut down cleanly (http.ErrServerClosed is expected)
			assert.True(t, err == nil || err == http.ErrServerClosed)
		case <-time.After(6 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server, _ := setupTestServer(t)

		// Add a route that panics
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		rec := httptest.NewRecorder()

		// Should not panic, middleware should recover
		assert.NotPanics(t, func() {
			server.echo.ServeHTTP(rec, req)
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
