// Package server exposes the settlement engine over HTTP and relays market
// events over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/server/handler"
	"github.com/alanyoungcy/peerstake/internal/server/middleware"
	"github.com/alanyoungcy/peerstake/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// MaxClockSkew bounds how far a signed request's timestamp may drift.
	MaxClockSkew time.Duration
	// RateLimit is the per-caller request budget per RateWindow on mutating
	// routes. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	// DevFaucet routes POST /api/dev/deposit.
	DevFaucet bool
	// Replay records accepted signed requests. Nil keeps them in process.
	Replay domain.ReplayGuard
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Audit is nil without a Postgres audit log.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	FeeSchedule *handler.FeeScheduleHandler
	Balances    *handler.BalanceHandler
	Audit       *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter and wsHub
// may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, limiter, wsHub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	mux := http.NewServeMux()

	sign := middleware.Signature(cfg.MaxClockSkew, nil, cfg.Replay)
	limit := middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)
	signed := func(h http.HandlerFunc) http.Handler {
		return sign(limit(h))
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/fee-schedule", handlers.FeeSchedule.Get)
	mux.Handle("POST /api/fee-schedule", signed(handlers.FeeSchedule.Initialize))
	mux.Handle("PUT /api/fee-schedule", signed(handlers.FeeSchedule.Update))
	mux.Handle("PUT /api/fee-schedule/admin", signed(handlers.FeeSchedule.SetAdmin))

	m := handlers.Markets
	mux.HandleFunc("GET /api/markets", m.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", m.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/positions", m.ListPositions)
	mux.HandleFunc("GET /api/markets/{id}/positions/{user}", m.GetPosition)
	mux.Handle("POST /api/markets", signed(m.CreateMarket))
	mux.Handle("POST /api/markets/{id}/bets", signed(m.PlaceBet))
	mux.Handle("POST /api/markets/{id}/propose", signed(m.ProposeOutcome))
	mux.Handle("POST /api/markets/{id}/challenge", signed(m.ChallengeOutcome))
	mux.Handle("POST /api/markets/{id}/finalize", signed(m.FinalizeSettlement))
	mux.Handle("POST /api/markets/{id}/resolve", signed(m.ResolveDispute))
	mux.Handle("POST /api/markets/{id}/oracle", signed(m.SubmitPrice))
	mux.Handle("POST /api/markets/{id}/claim", signed(m.ClaimPrize))
	mux.Handle("POST /api/markets/{id}/refund", signed(m.RefundExpired))
	mux.Handle("POST /api/markets/{id}/cancel", signed(m.CancelMarket))
	mux.Handle("POST /api/markets/{id}/cancelled-refund", signed(m.ClaimCancelledRefund))
	mux.Handle("POST /api/markets/{id}/force-close", signed(m.ForceClose))

	mux.HandleFunc("GET /api/balances/{account}", handlers.Balances.GetBalance)
	if handlers.Audit != nil {
		mux.Handle("GET /api/audit", signed(handlers.Audit.List))
	}
	if cfg.DevFaucet {
		mux.Handle("POST /api/dev/deposit", limit(http.HandlerFunc(handlers.Balances.Deposit)))
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
