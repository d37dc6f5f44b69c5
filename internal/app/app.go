// Package app provides the lifecycle of the order router. It wires the
// configured dependencies (stores, caches, blob storage, venue adapters and
// decision sinks) and runs the goroutines of the selected mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/orderrouter/internal/config"
)

// App is the root application object. It owns the configuration, the
// logger and cleanup functions that run in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	base      *slog.Logger
	logger    *slog.Logger
	startedAt time.Time
	closers   []func()
}

// New creates an App from cfg.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		base:      logger,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

// Run wires the dependencies, starts the configured mode and blocks until
// ctx is cancelled or the mode fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("symbol", a.cfg.Router.Symbol),
		slog.String("store", a.cfg.Store.Driver),
		slog.Int("venues", len(a.cfg.Venues)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.base)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "route":
		return a.RouteMode(ctx, deps)
	case "replay":
		return a.ReplayMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down every resource in reverse registration order. It is
// safe to call more than once.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
