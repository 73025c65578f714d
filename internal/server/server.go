// Package server exposes the node over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prophetlabs/prophetd/internal/crypto"
	"github.com/prophetlabs/prophetd/internal/server/handler"
	"github.com/prophetlabs/prophetd/internal/server/middleware"
	"github.com/prophetlabs/prophetd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// Auth verifies HMAC signatures on mutating requests. nil disables
	// authentication.
	Auth *crypto.RequestAuth

	// RateLimiter applies per-client limits when set.
	RateLimiter middleware.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers. Mutating
// handlers (Admin, Execute) may be nil in read-only mode; Events may be nil
// when the archive is disabled.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Markets  *handler.MarketHandler
	Accounts *handler.AccountHandler
	Admin    *handler.AdminHandler
	Execute  *handler.ExecuteHandler
	Events   *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server for the market node.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limit, auth) wired around it.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	// Market and pool reads.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListUnjudged)
	mux.HandleFunc("GET /api/markets/winning", handlers.Markets.ListWinning)
	mux.HandleFunc("GET /api/tokens/{id}", handlers.Markets.GetToken)
	mux.HandleFunc("GET /api/tokens/{id}/reserve", handlers.Markets.GetReserve)
	mux.HandleFunc("GET /api/quote/out", handlers.Markets.QuoteOut)
	mux.HandleFunc("GET /api/quote/in", handlers.Markets.QuoteIn)
	mux.HandleFunc("GET /api/fees", handlers.Markets.GetFees)

	// Account and holder reads.
	mux.HandleFunc("GET /api/accounts/{address}/balances", handlers.Accounts.ListBalances)
	mux.HandleFunc("GET /api/accounts/{address}/tokens/{id}", handlers.Accounts.GetBalance)
	mux.HandleFunc("GET /api/accounts/{address}/collateral", handlers.Accounts.GetCollateral)
	mux.HandleFunc("GET /api/tokens/{id}/holders", handlers.Accounts.ListHolders)
	mux.HandleFunc("GET /api/whitelist", handlers.Accounts.ListWhitelist)

	// Archived events.
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}

	// Mutations.
	if handlers.Execute != nil {
		mux.HandleFunc("POST /api/execute", handlers.Execute.Execute)
	}
	if handlers.Admin != nil {
		mux.HandleFunc("POST /api/admin/propositions", handlers.Admin.CreateProposition)
		mux.HandleFunc("POST /api/admin/judge", handlers.Admin.Judge)
		mux.HandleFunc("POST /api/admin/roles", handlers.Admin.ChangeRole)
		mux.HandleFunc("GET /api/admin/roles/{role}", handlers.Admin.GetRoleHolder)
		mux.HandleFunc("POST /api/admin/whitelist", handlers.Admin.AddWhitelist)
		mux.HandleFunc("DELETE /api/admin/whitelist", handlers.Admin.RemoveWhitelist)
		mux.HandleFunc("POST /api/admin/recover", handlers.Admin.Recover)
		mux.HandleFunc("POST /api/admin/recover/token", handlers.Admin.RecoverToken)
		mux.HandleFunc("POST /api/admin/collateral/mint", handlers.Admin.MintCollateral)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.Auth)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

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

// Handler exposes the routed handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
