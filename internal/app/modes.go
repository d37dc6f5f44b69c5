package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/orderrouter/internal/blob/s3"
	"github.com/alanyoungcy/orderrouter/internal/config"
	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/execution"
	"github.com/alanyoungcy/orderrouter/internal/feed"
	"github.com/alanyoungcy/orderrouter/internal/notify"
	"github.com/alanyoungcy/orderrouter/internal/pipeline"
	"github.com/alanyoungcy/orderrouter/internal/platform"
	"github.com/alanyoungcy/orderrouter/internal/router"
	"github.com/alanyoungcy/orderrouter/internal/server"
	"github.com/alanyoungcy/orderrouter/internal/server/handler"
	"github.com/alanyoungcy/orderrouter/internal/server/ws"
)

const latestDecisions = 200

// RouteMode runs the routing loop with every background job the config
// enables: streaming venue connections, the archiver and the HTTP server.
func (a *App) RouteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting route mode")

	g, ctx := errgroup.WithContext(ctx)

	publisher, latest := a.buildFeed(deps)
	coord, err := a.newCoordinator(deps, publisher)
	if err != nil {
		return err
	}

	// sinks must all be registered before the coordinator starts
	if a.cfg.Server.Enabled {
		hub := ws.NewHub(ws.Config{Symbol: deps.Book.Symbol(), StartedAt: a.startedAt, Cycle: coord.Cycle}, a.base)
		publisher.Add(feed.NewHubSink(hub))

		decisions := handler.NewDecisionHandler(latest, a.base)
		if deps.SignalBus != nil {
			decisions = decisions.WithStream(deps.SignalBus, feed.StreamName(deps.Book.Symbol()))
		}
		health := handler.NewHealthHandler(deps.Book.Symbol(), coord, a.startedAt)
		for _, name := range slices.Sorted(maps.Keys(deps.HealthChecks)) {
			health.WithCheck(name, deps.HealthChecks[name])
		}
		srv := server.New(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, server.Handlers{
			Health:    health,
			Book:      handler.NewBookHandler(deps.Book, a.cfg.Router.PriceScale),
			Decisions: decisions,
			Hub:       hub,
		}, a.base)

		g.Go(func() error { return hub.Run(ctx) })
		g.Go(func() error { return srv.Run(ctx) })
	}

	for _, r := range platform.Runners(deps.Adapters) {
		g.Go(func() error { return r.Run(ctx) })
	}

	if a.cfg.Router.Retention == router.RetentionArchive && deps.Archiver != nil {
		archiver := pipeline.NewArchiver(deps.Archiver, deps.Store, deps.LockManager,
			deps.Book.Symbol(), a.cfg.Router.ArchiveKeepCycles, a.base)
		g.Go(func() error { return archiver.RunLoop(ctx, a.cfg.Router.ArchiveInterval.Duration) })
	}

	g.Go(func() error {
		if err := coord.Run(ctx); err != nil {
			a.alertError(ctx, deps.Notifier, "router stopped", err)
			return fmt.Errorf("route mode: %w", err)
		}
		return nil
	})

	a.logger.InfoContext(ctx, "decision sinks", slog.Any("sinks", publisher.Sinks()))
	return g.Wait()
}

// ReplayMode rebuilds the book from archived and stored rows, re-evaluates
// every stored cycle and publishes the replayed decisions.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")
	if deps.Store == nil {
		return fmt.Errorf("replay mode: no level store configured")
	}
	symbol := deps.Book.Symbol()

	var levels []domain.PriceLevel
	if deps.BlobReader != nil {
		archived, err := s3blob.LoadArchived(ctx, deps.BlobReader, symbol)
		if err != nil {
			return fmt.Errorf("replay mode: %w", err)
		}
		levels = append(levels, archived...)
	}
	stored, err := deps.Store.ReadAll(ctx, symbol)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	levels = append(levels, stored...)

	publisher, _ := a.buildFeed(deps)
	replayDeps := *deps
	replayDeps.Store = nil
	replayDeps.Mirror = nil
	coord, err := a.newCoordinator(&replayDeps, publisher)
	if err != nil {
		return err
	}

	decisions, err := coord.Replay(ctx, levels)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	eligible := 0
	for _, d := range decisions {
		if d.Plan.Eligible {
			eligible++
		}
	}
	a.logger.InfoContext(ctx, "replay complete",
		slog.Int("rows", len(levels)),
		slog.Int("decisions", len(decisions)),
		slog.Int("eligible", eligible),
	)
	return nil
}

// buildFeed assembles the decision sinks the config enables. The hub sink
// is added by RouteMode once the hub exists.
func (a *App) buildFeed(deps *Dependencies) (*feed.Publisher, *feed.Latest) {
	latest := feed.NewLatest(latestDecisions)
	p := feed.NewPublisher(a.base,
		feed.NewLogSink(a.base, a.cfg.Router.PriceScale),
		latest,
	)
	if deps.SignalBus != nil {
		p.Add(feed.NewBusSink(deps.SignalBus))
	}
	if deps.Kafka != nil {
		p.Add(deps.Kafka)
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		p.Add(feed.NewAlertSink(deps.Notifier, a.cfg.Router.PriceScale))
	}
	return p, latest
}

func (a *App) newCoordinator(deps *Dependencies, sink router.DecisionSink) (*router.Coordinator, error) {
	sides, err := sideLimits(a.cfg.Router)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	r := a.cfg.Router
	rdeps := router.Deps{
		Adapters:   deps.Adapters,
		Normalizer: deps.Normalizer,
		Book:       deps.Book,
		Mirror:     deps.Mirror,
		Sink:       sink,
	}
	if deps.Store != nil {
		rdeps.Store = deps.Store
	}
	return router.New(router.Config{
		Symbol:          r.Symbol,
		Interval:        r.CycleInterval.Duration,
		PerVenueTimeout: r.PerVenueTimeout.Duration,
		CycleDeadline:   r.CycleDeadline.Duration,
		Retention:       r.Retention,
		Sides:           sides,
	}, rdeps, a.base), nil
}

// sideLimits converts the enabled sides to fixed-point limits.
func sideLimits(r config.RouterConfig) ([]router.SideLimits, error) {
	var out []router.SideLimits
	for _, s := range []struct {
		side domain.TradeSide
		cfg  config.SideConfig
	}{{domain.TradeBuy, r.Buy}, {domain.TradeSell, r.Sell}} {
		if !s.cfg.Enabled {
			continue
		}
		avg, vol, minVol, err := s.cfg.Parse()
		if err != nil {
			return nil, fmt.Errorf("%s limits: %w", s.side, err)
		}
		out = append(out, router.SideLimits{
			Side:   s.side,
			Limits: execution.LimitsFromDecimal(avg, vol, minVol, r.PriceScale),
		})
	}
	return out, nil
}

func (a *App) alertError(ctx context.Context, n *notify.Notifier, title string, err error) {
	if n == nil || !n.Enabled() {
		return
	}
	if nerr := n.Notify(ctx, notify.Alert{
		Event:   notify.EventError,
		Key:     a.cfg.Router.Symbol,
		Title:   title,
		Message: err.Error(),
	}); nerr != nil {
		a.logger.WarnContext(ctx, "error alert failed", slog.String("error", nerr.Error()))
	}
}
