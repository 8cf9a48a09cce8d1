package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL  string
	SolanaNetwork string // "mainnet" or "devnet"
	PoolProgramID string

	// Transaction submission
	PriorityFeeMicroLamports uint64
	AdminKeypairPath         string

	// Account decoding
	ParticipantsVecMinSchema uint8

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Reconciler configuration
	ReconcileInterval time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "devnet")
	if cfg.SolanaNetwork != "mainnet" && cfg.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK must be \"mainnet\" or \"devnet\", got %q", cfg.SolanaNetwork))
	}

	cfg.PoolProgramID = os.Getenv("POOL_PROGRAM_ID")
	if cfg.PoolProgramID == "" {
		errs = append(errs, fmt.Errorf("POOL_PROGRAM_ID is required"))
	}

	// Transaction submission
	priorityFee, err := parseUint64("PRIORITY_FEE_MICROLAMPORTS", 0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriorityFeeMicroLamports = priorityFee
	}

	cfg.AdminKeypairPath = os.Getenv("ADMIN_KEYPAIR_PATH")

	// Account decoding
	vecMinSchema, err := parseInt("PARTICIPANTS_VEC_MIN_SCHEMA", 2)
	if err != nil {
		errs = append(errs, err)
	} else if vecMinSchema < 0 || vecMinSchema > 255 {
		errs = append(errs, fmt.Errorf("PARTICIPANTS_VEC_MIN_SCHEMA must fit in a byte, got %d", vecMinSchema))
	} else {
		cfg.ParticipantsVecMinSchema = uint8(vecMinSchema)
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "lotpool-reconcile")

	// Reconciler configuration
	reconcileInterval, err := parseDuration("RECONCILE_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReconcileInterval = reconcileInterval
	}

	if cfg.ReconcileInterval < time.Second {
		errs = append(errs, fmt.Errorf("RECONCILE_INTERVAL must be at least 1 second, got %v", cfg.ReconcileInterval))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.SolanaNetwork != "mainnet" && c.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SolanaNetwork must be \"mainnet\" or \"devnet\""))
	}

	if c.PoolProgramID == "" {
		errs = append(errs, fmt.Errorf("PoolProgramID is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.ReconcileInterval < time.Second {
		errs = append(errs, fmt.Errorf("ReconcileInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseUint64 parses an unsigned integer from an environment variable or uses a default.
func parseUint64(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}
