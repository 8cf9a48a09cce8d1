package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotpool/lotpool/service/config"
	"github.com/lotpool/lotpool/service/db"
	"github.com/lotpool/lotpool/service/metrics"
	natspkg "github.com/lotpool/lotpool/service/nats"
	"github.com/lotpool/lotpool/service/server"
	sol "github.com/lotpool/lotpool/service/solana"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"network", cfg.SolanaNetwork,
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
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to apply database schema", "error", err)
		os.Exit(1)
	}

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

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
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL, "network", cfg.SolanaNetwork)

	verifier := sol.NewVerifier(chainClient, metricsCollector, logger)
	gate := sol.NewReadinessGate(chainClient)
	chain := server.NewChainClient(chainClient, verifier, gate)

	// Initialize NATS publisher (optional; claims still work without events)
	var publisher natspkg.Publisher
	if cfg.NATSURL != "" {
		jsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer jsPublisher.Close()
		publisher = jsPublisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, pool events disabled")
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, chain, publisher, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"program_id", cfg.PoolProgramID,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
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
