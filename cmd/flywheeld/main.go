// Flywheeld is the continuous model-improvement daemon.
//
// This binary runs the full improvement pipeline: HTTP ingest for feedback
// and interactions, the four background loops (analysis, baseline
// monitoring, action execution, validation), the SQLite record store, and
// optional NATS lifecycle events.
//
// Configuration is loaded from ~/.config/flywheeld/config.yaml layered
// under environment variables. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults
//	flywheeld
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 METRICS_ENDPOINT=http://localhost:8428 flywheeld
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/flywheeld/internal/config"
	"github.com/fyrsmithlabs/flywheeld/internal/events"
	"github.com/fyrsmithlabs/flywheeld/internal/flywheel"
	"github.com/fyrsmithlabs/flywheeld/internal/http"
	"github.com/fyrsmithlabs/flywheeld/internal/logging"
	"github.com/fyrsmithlabs/flywheeld/internal/monitor"
	"github.com/fyrsmithlabs/flywheeld/internal/store"
	"github.com/fyrsmithlabs/flywheeld/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  flywheeld           Start the flywheeld daemon\n")
			fmt.Fprintf(os.Stderr, "  flywheeld version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Daemon shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("flywheeld by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the flywheeld daemon and blocks until context is cancelled.
//
// This function initializes all dependencies and the pipeline:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the structured logger
//  3. Opens the record store and connects optional infrastructure (NATS)
//  4. Builds the flywheel engine over the metrics source
//  5. Starts the background loops and the HTTP API
//  6. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	// Load configuration
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Initialize telemetry. The Prometheus bridge inside the meter provider
	// feeds /metrics even when OTLP push export stays disabled.
	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	// Initialize logger
	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	zlog := logger.Underlying()

	logger.Info(ctx, "starting flywheeld",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	// Initialize infrastructure dependencies
	deps, err := initDependencies(cfg, zlog)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "dependencies initialized",
		zap.String("store", cfg.Store.Path),
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.String("metrics_endpoint", cfg.Metrics.Endpoint))

	// Build the engine
	var opts []flywheel.Option
	if deps.publisher != nil {
		opts = append(opts, flywheel.WithPublisher(deps.publisher))
	}
	engine, err := flywheel.New(*cfg, deps.store, deps.metrics, zlog, opts...)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	// Create HTTP server over the engine surfaces
	srv, err := http.NewServer(engine.Ingestor(), engine.Insights(), engine.Insights(), engine, zlog, &http.Config{
		Host:        "0.0.0.0",
		Port:        cfg.Server.Port,
		IngestRate:  cfg.Ingest.RatePerSecond,
		IngestBurst: cfg.Ingest.Burst,
	})
	if err != nil {
		engine.Stop()
		return fmt.Errorf("building http server: %w", err)
	}

	logger.Info(ctx, "daemon configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		engine.Stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	// Graceful shutdown: stop accepting requests, then stop the loops.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown error", zap.Error(err))
	}
	engine.Stop()

	logger.Info(ctx, "daemon stopped gracefully")
	return nil
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	store     *store.Store
	natsConn  *nats.Conn
	publisher *events.Publisher
	metrics   *monitor.MetricsClient
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// initDependencies opens the record store, connects to NATS when an event
// URL is configured, and builds the metrics query client the baseline
// monitor polls.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.Store.Path, err)
	}

	deps := &dependencies{
		store:   st,
		metrics: monitor.NewMetricsClient(cfg.Metrics.Endpoint),
	}

	// NATS is optional; without it action events are simply not published.
	if cfg.Events.URL != "" {
		nc, err := nats.Connect(cfg.Events.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.Events.URL, err)
		}
		pub, err := events.NewPublisher(nc, logger)
		if err != nil {
			nc.Close()
			_ = st.Close()
			return nil, fmt.Errorf("creating event publisher: %w", err)
		}
		deps.natsConn = nc
		deps.publisher = pub
		logger.Info("connected to NATS", zap.String("url", cfg.Events.URL))
	}

	return deps, nil
}

// telemetryConfig maps daemon configuration onto the telemetry package.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Observability.EnableTelemetry
	tc.ServiceName = cfg.Observability.ServiceName
	tc.ServiceVersion = version
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		tc.Endpoint = ep
	}
	return tc
}

// initLogger initializes the structured logger.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if !cfg.Observability.EnableTelemetry {
		// Local development: readable output, no volume sampling.
		logCfg.Format = "console"
		logCfg.Sampling.Enabled = false
	}
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}
