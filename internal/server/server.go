// Package server is the local HTTP + WebSocket view over the synchronized
// market state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/server/handler"
	"github.com/alanyoungcy/quadscalp/internal/server/middleware"
	"github.com/alanyoungcy/quadscalp/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// Limiter, when set, caps each client IP at RateLimit requests per RateWindow.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the handlers the server routes to. Journal may be nil.
type Handlers struct {
	Health  *handler.HealthHandler
	State   *handler.StateHandler
	Orders  *handler.OrderHandler
	Journal *handler.JournalHandler
}

// Server serves the view API and the event WebSocket.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain
// auth, logging, rate limit, CORS (outermost last).
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, hub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler without binding
// a listener.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Store projections.
	mux.HandleFunc("GET /api/state", handlers.State.GetState)
	mux.HandleFunc("GET /api/ticks", handlers.State.ListTicks)
	mux.HandleFunc("GET /api/bars/{symbol}", handlers.State.ListBars)
	mux.HandleFunc("GET /api/depth/{symbol}", handlers.State.GetDepth)
	mux.HandleFunc("GET /api/positions", handlers.State.ListPositions)
	mux.HandleFunc("GET /api/trades", handlers.State.ListTrades)
	mux.HandleFunc("GET /api/orders", handlers.State.ListOrders)
	mux.HandleFunc("GET /api/stats", handlers.State.GetStats)
	mux.HandleFunc("GET /api/chart/{symbol}", handlers.State.GetChart)
	mux.HandleFunc("POST /api/active-symbol", handlers.State.SetActiveSymbol)

	// Outbound actions.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("POST /api/orders/flatten", handlers.Orders.FlattenAll)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	if j := handlers.Journal; j != nil {
		if j.HasStore() {
			mux.HandleFunc("GET /api/journal/trades", j.ListTrades)
			mux.HandleFunc("GET /api/journal/bars/{symbol}", j.ListBars)
			mux.HandleFunc("GET /api/orders/audit", j.ListAudit)
		}
		if j.HasFills() {
			mux.HandleFunc("GET /api/fills", j.ListFills)
		}
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
