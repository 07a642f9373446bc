// Package server hosts the HTTP API for the trading venue.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictfi/venue/internal/domain"
	"github.com/predictfi/venue/internal/server/handler"
	"github.com/predictfi/venue/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Optional per-IP request throttle. Disabled when RateLimiter is nil
	// or RequestsPerMinute <= 0.
	RateLimiter       domain.RateLimiter
	RequestsPerMinute int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Trades  *handler.TradeHandler
}

// Server is the HTTP API server for the venue.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (auth, logging, CORS, rate limit) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness check (no auth required; registered outside /api).
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	// Trading.
	mux.HandleFunc("POST /api/v1/trades", handlers.Trades.PlaceTrade)

	// Market lifecycle and reads.
	mux.HandleFunc("POST /api/v1/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/v1/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/v1/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/v1/markets/{id}/prices", handlers.Markets.Prices)
	mux.HandleFunc("GET /api/v1/markets/{id}/activity", handlers.Markets.Activity)
	mux.HandleFunc("POST /api/v1/markets/{id}/close", handlers.Markets.CloseMarket)
	mux.HandleFunc("POST /api/v1/markets/{id}/resolve", handlers.Markets.ResolveMarket)

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	if cfg.RateLimiter != nil && cfg.RequestsPerMinute > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RequestsPerMinute, time.Minute)(h)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
