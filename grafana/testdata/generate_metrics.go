// Package testdata provides utilities for generating sample metrics data
// to test Grafana dashboards without scraping a real flywheeld daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards. Names and labels mirror the series the
// daemon exports through the OTel Prometheus bridge, so panels built
// against this generator work unchanged against a live flywheeld.
var (
	// Ingest metrics
	feedbackCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheeld_feedback_collected_total",
			Help: "Total number of feedback entries collected",
		},
		[]string{"kind"},
	)
	interactionsLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheeld_insight_interactions_logged_total",
			Help: "Total number of interactions logged",
		},
		[]string{"failed"},
	)

	// Analysis metrics
	analysisRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flywheeld_analysis_runs_total",
			Help: "Total number of analysis runs",
		},
	)
	analysisActions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flywheeld_analysis_actions_generated_total",
			Help: "Total number of actions generated by analysis",
		},
	)

	// Action pipeline metrics
	actionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheeld_flywheel_actions_dispatched_total",
			Help: "Total number of actions accepted for scheduling",
		},
		[]string{"kind", "trigger"},
	)
	actionsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheeld_executor_actions_executed_total",
			Help: "Total number of actions executed",
		},
		[]string{"kind", "status"},
	)

	// Baseline monitor metrics
	baselineObservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheeld_baseline_observations_total",
			Help: "Total number of baseline metric observations",
		},
		[]string{"metric"},
	)
	baselineDegradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheeld_baseline_degradations_total",
			Help: "Total number of detected metric degradations",
		},
		[]string{"metric"},
	)

	// HTTP server metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheeld_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flywheeld_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flywheeld_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(128, 2, 10), // 128B to 64KB
		},
		[]string{"method", "endpoint"},
	)
	httpActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flywheeld_http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// Serving-quality gauges. These are the series the baseline monitor
	// polls by name, so a Prometheus scraping this generator doubles as a
	// working METRICS_ENDPOINT for a local daemon or fwctl top.
	responseQuality = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "response_quality",
			Help: "Mean response quality score (0-1)",
		},
	)
	userSatisfaction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "user_satisfaction",
			Help: "Mean user satisfaction score (1-5)",
		},
	)
	responseTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "response_time",
			Help: "Mean response time in seconds",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		// Ingest
		feedbackCollected,
		interactionsLogged,
		// Analysis
		analysisRuns,
		analysisActions,
		// Actions
		actionsDispatched,
		actionsExecuted,
		// Baselines
		baselineObservations,
		baselineDegradations,
		// HTTP
		httpRequestsTotal,
		httpRequestDuration,
		httpResponseSize,
		httpActiveRequests,
		// Quality gauges
		responseQuality,
		userSatisfaction,
		responseTime,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	// Generate initial sample data
	generateSampleData()

	// Start background goroutine to continuously generate data
	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	// Serve metrics
	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus or VictoriaMetrics, add this scrape config:")
	fmt.Printf("  - job_name: 'flywheeld-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

var (
	actionKinds  = []string{"retrain", "update_knowledge", "optimize_prompts", "adjust_thresholds"}
	triggers     = []string{"quality_threshold", "user_satisfaction", "error_rate", "performance_degradation", "scheduled"}
	trackedNames = []string{"response_quality", "user_satisfaction", "response_time"}
	endpoints    = []string{"/api/v1/feedback", "/api/v1/interactions", "/api/v1/status", "/api/v1/actions", "/api/v1/reports/performance"}
)

func generateSampleData() {
	methods := []string{"GET", "POST"}
	statuses := []string{"200", "202", "400", "429", "500"}

	// Ingest: mostly neutral and positive, a tail of corrections
	for i := 0; i < 150; i++ {
		feedbackCollected.WithLabelValues(weightedKind()).Inc()
	}
	for i := 0; i < 400; i++ {
		interactionsLogged.WithLabelValues(randomChoice([]string{"false", "false", "false", "true"})).Inc()
	}

	// Analysis: hourly cadence, a handful of actions per run
	for i := 0; i < 24; i++ {
		analysisRuns.Inc()
		if rand.Float64() > 0.6 {
			n := rand.Intn(3) + 1
			analysisActions.Add(float64(n))
			for j := 0; j < n; j++ {
				kind := randomChoice(actionKinds)
				trigger := randomChoice(triggers)
				actionsDispatched.WithLabelValues(kind, trigger).Inc()
				actionsExecuted.WithLabelValues(kind, randomChoice([]string{"completed", "completed", "completed", "failed"})).Inc()
			}
		}
	}

	// Baselines: every tracked metric observed each cycle, rare degradations
	for i := 0; i < 48; i++ {
		for _, name := range trackedNames {
			baselineObservations.WithLabelValues(name).Inc()
		}
	}
	for i := 0; i < 3; i++ {
		baselineDegradations.WithLabelValues(randomChoice(trackedNames)).Inc()
	}

	// HTTP traffic
	for i := 0; i < 500; i++ {
		endpoint := randomChoice(endpoints)
		method := randomChoice(methods)
		httpRequestsTotal.WithLabelValues(method, endpoint, randomChoice(statuses)).Inc()
		httpRequestDuration.WithLabelValues(method, endpoint).Observe(rand.Float64() * 0.2)
		httpResponseSize.WithLabelValues(method, endpoint).Observe(float64(rand.Intn(8192) + 256))
	}
	httpActiveRequests.Set(float64(rand.Intn(5)))

	// Quality gauges start near healthy baselines
	responseQuality.Set(0.82 + rand.Float64()*0.1)
	userSatisfaction.Set(4.0 + rand.Float64()*0.6)
	responseTime.Set(0.6 + rand.Float64()*0.4)
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Steady trickle of ingest traffic
			if rand.Float64() > 0.3 {
				feedbackCollected.WithLabelValues(weightedKind()).Inc()
			}
			for i := 0; i < rand.Intn(4); i++ {
				interactionsLogged.WithLabelValues(randomChoice([]string{"false", "false", "false", "true"})).Inc()
			}

			// Occasional analysis run with dispatched actions
			if rand.Float64() > 0.8 {
				analysisRuns.Inc()
				if rand.Float64() > 0.5 {
					kind := randomChoice(actionKinds)
					analysisActions.Inc()
					actionsDispatched.WithLabelValues(kind, randomChoice(triggers)).Inc()
					actionsExecuted.WithLabelValues(kind, randomChoice([]string{"completed", "completed", "failed"})).Inc()
				}
			}

			// Baseline poll cycle
			if rand.Float64() > 0.5 {
				for _, name := range trackedNames {
					baselineObservations.WithLabelValues(name).Inc()
				}
				if rand.Float64() > 0.95 {
					baselineDegradations.WithLabelValues(randomChoice(trackedNames)).Inc()
				}
			}

			// HTTP traffic
			for i := 0; i < rand.Intn(10); i++ {
				endpoint := randomChoice(endpoints)
				method := randomChoice([]string{"GET", "POST"})
				httpRequestsTotal.WithLabelValues(method, endpoint, randomChoice([]string{"200", "200", "200", "202", "400"})).Inc()
				httpRequestDuration.WithLabelValues(method, endpoint).Observe(rand.Float64() * 0.2)
				httpResponseSize.WithLabelValues(method, endpoint).Observe(float64(rand.Intn(8192) + 256))
			}
			httpActiveRequests.Set(float64(rand.Intn(5)))

			// Drift the quality gauges inside a plausible band
			responseQuality.Set(clamp(0.82+rand.NormFloat64()*0.05, 0.5, 1.0))
			userSatisfaction.Set(clamp(4.2+rand.NormFloat64()*0.3, 1.0, 5.0))
			responseTime.Set(clamp(0.8+rand.NormFloat64()*0.2, 0.1, 3.0))
		}
	}
}

// weightedKind skews toward the kind mix a healthy deployment sees.
func weightedKind() string {
	r := rand.Float64()
	switch {
	case r < 0.45:
		return "positive"
	case r < 0.70:
		return "neutral"
	case r < 0.90:
		return "negative"
	default:
		return "correction"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
