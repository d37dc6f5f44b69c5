// Package server is the router's read-only HTTP + WebSocket ops API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/orderrouter/internal/server/handler"
	"github.com/alanyoungcy/orderrouter/internal/server/middleware"
	"github.com/alanyoungcy/orderrouter/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates the handlers the server registers. Hub may be nil.
type Handlers struct {
	Health    *handler.HealthHandler
	Book      *handler.BookHandler
	Decisions *handler.DecisionHandler
	Hub       *ws.Hub
}

// Server wraps http.Server with the router's routes and middleware.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers every route and builds the middleware chain.
func New(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, h, logger),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler returns the routed handler without a listener.
func NewHandler(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/book", h.Book.GetBook)
	mux.HandleFunc("GET /api/decisions/latest", h.Decisions.Latest)
	mux.HandleFunc("GET /api/decisions/recent", h.Decisions.Recent)
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var handler http.Handler = mux
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	return middleware.Logging(logger)(handler)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}
