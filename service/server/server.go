package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lotpool/lotpool/service/config"
	"github.com/lotpool/lotpool/service/db"
	"github.com/lotpool/lotpool/service/metrics"
	"github.com/lotpool/lotpool/service/nats"
)

// Server represents the HTTP server for the pool service.
type Server struct {
	addr      string
	cfg       *config.Config
	store     *db.Store
	chain     Chain
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, pool events are not published.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store *db.Store, chain Chain, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		chain:     chain,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Pool routes
	mux.Handle("POST /api/v1/pools", handleRegisterPool(s.store, s.chain, s.publisher, s.metrics, s.logger))
	mux.Handle("GET /api/v1/pools", handleListPools(s.store, s.logger))
	mux.Handle("GET /api/v1/pools/{address}", handleGetPool(s.store, s.logger))
	mux.Handle("GET /api/v1/pools/{address}/participants", handleListParticipants(s.store, s.logger))

	// Claim routes: a client reports a finalized signature, the server
	// verifies it against the chain before projecting anything.
	mux.Handle("POST /api/v1/pools/{address}/join", handleClaim(claimJoin, s.store, s.chain, s.publisher, s.metrics, s.logger))
	mux.Handle("POST /api/v1/pools/{address}/donate", handleClaim(claimDonate, s.store, s.chain, s.publisher, s.metrics, s.logger))
	mux.Handle("POST /api/v1/pools/{address}/cancel", handleClaim(claimCancel, s.store, s.chain, s.publisher, s.metrics, s.logger))
	mux.Handle("POST /api/v1/pools/{address}/claim-refund", handleClaim(claimRefund, s.store, s.chain, s.publisher, s.metrics, s.logger))
	mux.Handle("POST /api/v1/pools/{address}/claim-rent", handleClaim(claimRent, s.store, s.chain, s.publisher, s.metrics, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
