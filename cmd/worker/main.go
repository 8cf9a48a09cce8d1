package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lotpool/lotpool/service/config"
	"github.com/lotpool/lotpool/service/db"
	"github.com/lotpool/lotpool/service/metrics"
	"github.com/lotpool/lotpool/service/reconciler"
	sol "github.com/lotpool/lotpool/service/solana"
	"github.com/lotpool/lotpool/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	programID, err := solanago.PublicKeyFromBase58(cfg.PoolProgramID)
	if err != nil {
		logger.Error("invalid pool program id", "program_id", cfg.PoolProgramID, "error", err)
		os.Exit(1)
	}

	// Initialize the pool-program chain client
	rpcClient := sol.NewRPCClient(cfg.SolanaRPCURL)
	layout := sol.ParticipantsLayoutConfig{VecListMinSchema: cfg.ParticipantsVecMinSchema}
	chainClient := sol.NewClient(rpcClient, programID, cfg.SolanaNetwork, layout, cfg.SolanaRPCURL, metricsCollector, logger)

	// Refuse to start against the wrong cluster
	verifyCtx, verifyCancel := context.WithTimeout(ctx, 10*time.Second)
	err = chainClient.VerifyNetwork(verifyCtx)
	verifyCancel()
	if err != nil {
		logger.Error("rpc endpoint network check failed", "network", cfg.SolanaNetwork, "error", err)
		os.Exit(1)
	}

	// The reconciler signs lifecycle transitions with the admin keypair
	if cfg.AdminKeypairPath == "" {
		logger.Error("ADMIN_KEYPAIR_PATH is required for the worker")
		os.Exit(1)
	}
	wallet, err := sol.LoadKeypairWallet(cfg.AdminKeypairPath)
	if err != nil {
		logger.Error("failed to load admin keypair", "path", cfg.AdminKeypairPath, "error", err)
		os.Exit(1)
	}
	logger.Info("loaded admin keypair", "pubkey", wallet.PublicKey().String())

	submitter := sol.NewSubmitter(chainClient, sol.DefaultRetryPolicy, cfg.PriorityFeeMicroLamports, metricsCollector, logger)
	builder := sol.NewInstructionBuilder(programID)
	rec := reconciler.New(store, chainClient, submitter, builder, wallet, metricsCollector, logger)

	// Initialize Temporal client for schedule management
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	if err := temporalClient.EnsureReconcileSchedule(ctx, cfg.ReconcileInterval); err != nil {
		logger.Error("failed to ensure reconcile schedule", "error", err)
		os.Exit(1)
	}
	logger.Info("reconcile schedule ensured", "interval", cfg.ReconcileInterval)

	// Initialize Temporal worker
	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Reconciler:        rec,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"network", cfg.SolanaNetwork,
		"program_id", cfg.PoolProgramID,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
