// Package main provides a GitHub webhook connector that forwards repository
// feedback to flywheeld.
//
// The server receives GitHub webhook events, classifies issue comments and
// pull request reviews as user feedback, and posts the result to the
// flywheeld daemon's ingest API.
//
// Usage:
//
//	FLYWHEELD_URL=http://localhost:8093 \
//	GITHUB_WEBHOOK_SECRET=your_secret \
//	PORT=3000 \
//	./github-webhook
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/flywheeld/internal/config"
	"github.com/fyrsmithlabs/flywheeld/internal/logging"
)

// Validation regexes compiled once at package initialization
var (
	validNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	validSHARegex  = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

// maxNoteLength caps forwarded comment bodies; GitHub allows huge comments
// and the daemon only needs enough text for analysis.
const maxNoteLength = 2000

// Config holds webhook server configuration.
type Config struct {
	DaemonURL     string
	WebhookSecret config.Secret
	Port          string
}

type WebhookServer struct {
	daemonURL     string
	httpClient    *http.Client
	webhookSecret config.Secret
	logger        *logging.Logger
	rateLimiters  map[string]*rate.Limiter
	mu            sync.RWMutex
	lastCleanup   time.Time
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Create root context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize logging
	logCfg := logging.NewDefaultConfig()
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Load configuration from environment
	cfg := loadConfig()

	logger.Info(ctx, "github webhook connector starting",
		zap.String("port", cfg.Port),
		zap.String("daemon_url", cfg.DaemonURL),
	)

	// Validate configuration
	if !cfg.WebhookSecret.IsSet() {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET not set")
	}

	// Create webhook server
	server := &WebhookServer{
		daemonURL: cfg.DaemonURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", server.handleWebhook)
	mux.HandleFunc("/health", handleHealth)

	// Create HTTP server with timeouts to prevent slowloris attacks
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", zap.String("addr", httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown error", zap.Error(err))
		return err
	}

	logger.Info(ctx, "server stopped gracefully")
	return nil
}

func loadConfig() *Config {
	daemonURL := os.Getenv("FLYWHEELD_URL")
	if daemonURL == "" {
		daemonURL = "http://localhost:8093"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	return &Config{
		DaemonURL:     daemonURL,
		WebhookSecret: config.Secret(os.Getenv("GITHUB_WEBHOOK_SECRET")),
		Port:          port,
	}
}

// getRateLimiter returns a rate limiter for the given IP address.
// Rate limit: 60 requests per minute per IP address.
func (s *WebhookServer) getRateLimiter(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Initialize map if needed
	if s.rateLimiters == nil {
		s.rateLimiters = make(map[string]*rate.Limiter)
		s.lastCleanup = time.Now()
	}

	// Clean up old limiters every hour to prevent memory leaks
	if time.Since(s.lastCleanup) > time.Hour {
		s.rateLimiters = make(map[string]*rate.Limiter)
		s.lastCleanup = time.Now()
	}

	// Get or create limiter for this IP
	limiter, exists := s.rateLimiters[ip]
	if !exists {
		// 60 requests per minute = 1 per second with burst of 10
		limiter = rate.NewLimiter(rate.Limit(1), 10)
		s.rateLimiters[ip] = limiter
	}

	return limiter
}

// getClientIP extracts the client IP address from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (proxy/load balancer)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take first IP in the comma-separated list
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func (s *WebhookServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Rate limiting: Check if this IP has exceeded the rate limit
	clientIP := getClientIP(r)
	limiter := s.getRateLimiter(clientIP)
	if !limiter.Allow() {
		s.logger.Warn(ctx, "rate limit exceeded", zap.String("ip", clientIP))
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	// Limit request body size to prevent DoS attacks (1MB max)
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	// Validate webhook signature
	payload, err := github.ValidatePayload(r, []byte(s.webhookSecret.Value()))
	if err != nil {
		s.logger.Warn(ctx, "invalid webhook signature", zap.Error(err))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	// Parse webhook event
	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		s.logger.Warn(ctx, "failed to parse webhook", zap.Error(err))
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// Handle different event types
	switch e := event.(type) {
	case *github.IssueCommentEvent:
		if err := s.handleIssueCommentEvent(ctx, e); err != nil {
			s.logger.Error(ctx, "error handling comment event", zap.Error(err))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

	case *github.PullRequestReviewEvent:
		if err := s.handlePullRequestReviewEvent(ctx, e); err != nil {
			s.logger.Error(ctx, "error handling review event", zap.Error(err))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

	default:
		s.logger.Debug(ctx, "ignoring event type", zap.String("type", fmt.Sprintf("%T", event)))
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// FeedbackRequest matches internal/http/server.go FeedbackRequest
type FeedbackRequest struct {
	InteractionID string         `json:"interaction_id"`
	UserID        string         `json:"user_id"`
	Kind          string         `json:"kind"`
	Satisfaction  float64        `json:"satisfaction"`
	Note          string         `json:"note,omitempty"`
	Suggestions   []string       `json:"suggestions,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// FeedbackResponse matches internal/http/server.go FeedbackResponse
type FeedbackResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Comment classification markers, checked against the lowercased body.
// Correction markers win over negative ones: a comment supplying the right
// answer usually also calls the old one wrong.
var (
	correctionMarkers = []string{
		"correction:", "should be", "instead of", "the right answer",
		"actually it", "fix:", "the correct",
	}
	negativeMarkers = []string{
		"wrong", "incorrect", "broken", "doesn't work", "does not work",
		"not working", "useless", "bad answer", ":-1:", "\U0001f44e",
	}
	positiveMarkers = []string{
		"thanks", "thank you", "great", "perfect", "works now", "fixed it",
		"lgtm", "well done", ":+1:", "\U0001f44d",
	}
)

// classifyComment maps a comment body to a feedback kind and a 1-5
// satisfaction score.
func classifyComment(body string) (string, float64) {
	lower := strings.ToLower(body)

	for _, marker := range correctionMarkers {
		if strings.Contains(lower, marker) {
			return "correction", 2
		}
	}
	for _, marker := range negativeMarkers {
		if strings.Contains(lower, marker) {
			return "negative", 1
		}
	}
	for _, marker := range positiveMarkers {
		if strings.Contains(lower, marker) {
			return "positive", 5
		}
	}
	return "neutral", 3
}

// clipNote truncates a comment body to maxNoteLength.
func clipNote(body string) string {
	if len(body) <= maxNoteLength {
		return body
	}
	return body[:maxNoteLength]
}

// validateCommentEvent validates comment event data to prevent injection attacks
func validateCommentEvent(e *github.IssueCommentEvent) error {
	if e.Issue == nil || e.Issue.Number == nil || *e.Issue.Number <= 0 {
		return fmt.Errorf("invalid issue number")
	}

	// Validate owner and repo names (alphanumeric, hyphens, underscores, dots)

	if e.Repo == nil || e.Repo.Owner == nil || e.Repo.Owner.Login == nil {
		return fmt.Errorf("invalid repository owner")
	}
	if !validNameRegex.MatchString(*e.Repo.Owner.Login) {
		return fmt.Errorf("invalid repository owner format")
	}

	if e.Repo.Name == nil {
		return fmt.Errorf("invalid repository name")
	}
	if !validNameRegex.MatchString(*e.Repo.Name) {
		return fmt.Errorf("invalid repository name format")
	}

	if e.Comment == nil || e.Comment.User == nil || e.Comment.User.Login == nil {
		return fmt.Errorf("invalid comment author")
	}
	if !validNameRegex.MatchString(*e.Comment.User.Login) {
		return fmt.Errorf("invalid comment author format")
	}

	return nil
}

// validateReviewEvent validates review event data to prevent injection attacks
func validateReviewEvent(e *github.PullRequestReviewEvent) error {
	if e.PullRequest == nil || e.PullRequest.Number == nil || *e.PullRequest.Number <= 0 {
		return fmt.Errorf("invalid PR number")
	}

	if e.Repo == nil || e.Repo.Owner == nil || e.Repo.Owner.Login == nil {
		return fmt.Errorf("invalid repository owner")
	}
	if !validNameRegex.MatchString(*e.Repo.Owner.Login) {
		return fmt.Errorf("invalid repository owner format")
	}

	if e.Repo.Name == nil {
		return fmt.Errorf("invalid repository name")
	}
	if !validNameRegex.MatchString(*e.Repo.Name) {
		return fmt.Errorf("invalid repository name format")
	}

	if e.Review == nil || e.Review.User == nil || e.Review.User.Login == nil {
		return fmt.Errorf("invalid review author")
	}
	if !validNameRegex.MatchString(*e.Review.User.Login) {
		return fmt.Errorf("invalid review author format")
	}

	// Validate SHA format (40-character hex string)
	if e.Review.CommitID == nil || !validSHARegex.MatchString(*e.Review.CommitID) {
		return fmt.Errorf("invalid review commit SHA")
	}

	return nil
}

func (s *WebhookServer) handleIssueCommentEvent(ctx context.Context, event *github.IssueCommentEvent) error {
	// Validate comment event data to prevent injection attacks
	if err := validateCommentEvent(event); err != nil {
		s.logger.Warn(ctx, "invalid comment event data", zap.Error(err))
		return fmt.Errorf("invalid comment event: %w", err)
	}

	// Only new comments carry feedback; edits and deletes are ignored
	action := event.GetAction()
	if action != "created" {
		s.logger.Debug(ctx, "ignoring comment action", zap.String("action", action))
		return nil
	}

	repo := event.GetRepo()
	comment := event.GetComment()
	kind, satisfaction := classifyComment(comment.GetBody())

	s.logger.Info(ctx, "processing comment event",
		zap.Int("issue_number", event.GetIssue().GetNumber()),
		zap.String("owner", repo.GetOwner().GetLogin()),
		zap.String("repo", repo.GetName()),
		zap.String("kind", kind),
	)

	sub := FeedbackRequest{
		InteractionID: fmt.Sprintf("gh:%s/%s#%d", repo.GetOwner().GetLogin(), repo.GetName(), event.GetIssue().GetNumber()),
		UserID:        "gh:" + comment.GetUser().GetLogin(),
		Kind:          kind,
		Satisfaction:  satisfaction,
		Note:          clipNote(comment.GetBody()),
		Context: map[string]any{
			"source": "github",
			"event":  "issue_comment",
			"url":    comment.GetHTMLURL(),
		},
	}

	return s.postFeedback(ctx, sub)
}

func (s *WebhookServer) handlePullRequestReviewEvent(ctx context.Context, event *github.PullRequestReviewEvent) error {
	// Validate review event data to prevent injection attacks
	if err := validateReviewEvent(event); err != nil {
		s.logger.Warn(ctx, "invalid review event data", zap.Error(err))
		return fmt.Errorf("invalid review event: %w", err)
	}

	action := event.GetAction()
	if action != "submitted" {
		s.logger.Debug(ctx, "ignoring review action", zap.String("action", action))
		return nil
	}

	repo := event.GetRepo()
	review := event.GetReview()

	var kind string
	var satisfaction float64
	switch strings.ToLower(review.GetState()) {
	case "approved":
		kind, satisfaction = "positive", 5
	case "changes_requested":
		kind, satisfaction = "correction", 2
	default:
		kind, satisfaction = "neutral", 3
	}

	s.logger.Info(ctx, "processing review event",
		zap.Int("pr_number", event.GetPullRequest().GetNumber()),
		zap.String("owner", repo.GetOwner().GetLogin()),
		zap.String("repo", repo.GetName()),
		zap.String("state", review.GetState()),
	)

	sub := FeedbackRequest{
		InteractionID: fmt.Sprintf("gh:%s/%s#pr-%d", repo.GetOwner().GetLogin(), repo.GetName(), event.GetPullRequest().GetNumber()),
		UserID:        "gh:" + review.GetUser().GetLogin(),
		Kind:          kind,
		Satisfaction:  satisfaction,
		Note:          clipNote(review.GetBody()),
		Context: map[string]any{
			"source": "github",
			"event":  "pull_request_review",
			"url":    review.GetHTMLURL(),
			"commit": review.GetCommitID(),
		},
	}

	return s.postFeedback(ctx, sub)
}

// postFeedback forwards one feedback submission to the daemon's ingest API.
func (s *WebhookServer) postFeedback(ctx context.Context, sub FeedbackRequest) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshaling feedback: %w", err)
	}

	url := s.daemonURL + "/api/v1/feedback"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting feedback to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var fbResp FeedbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&fbResp); err != nil {
		return fmt.Errorf("decoding feedback response: %w", err)
	}

	s.logger.Info(ctx, "feedback forwarded",
		zap.String("feedback_id", fbResp.ID),
		zap.String("kind", fbResp.Kind),
	)
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
