// Package router runs the coordinating loop: every cycle it fetches each
// venue, normalizes and applies the snapshots to the composite book,
// evaluates the configured sides, persists the levels and emits decisions.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/orderrouter/internal/book"
	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/execution"
	"github.com/alanyoungcy/orderrouter/internal/normalize"
)

// Retention policies for the level store.
const (
	RetentionHistory = "history"
	RetentionLatest  = "latest"
	RetentionArchive = "archive"
)

// DecisionSink receives every emitted decision.
type DecisionSink interface {
	Publish(ctx context.Context, d domain.Decision) error
}

// SideLimits enables evaluation of one trade direction.
type SideLimits struct {
	Side   domain.TradeSide
	Limits execution.Limits
}

// Config holds the loop parameters.
type Config struct {
	Symbol          string
	Interval        time.Duration
	PerVenueTimeout time.Duration
	CycleDeadline   time.Duration
	Retention       string
	Sides           []SideLimits
}

// Deps are the collaborators of a Coordinator. Store, Mirror and Sink may
// be nil.
type Deps struct {
	Adapters   []domain.VenueAdapter
	Normalizer *normalize.Normalizer
	Book       *book.Book
	Store      domain.LevelStore
	Mirror     domain.BookMirror
	Sink       DecisionSink
}

// Coordinator is the single routing loop for one symbol.
type Coordinator struct {
	cfg  Config
	deps Deps
	seq  atomic.Int64
	now  func() time.Time

	logger *slog.Logger
}

// New creates a Coordinator. Zero durations fall back to sensible values
// derived from Interval.
func New(cfg Config, deps Deps, logger *slog.Logger) *Coordinator {
	cfg.Symbol = domain.NormalizeSymbol(cfg.Symbol)
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.CycleDeadline <= 0 {
		cfg.CycleDeadline = cfg.Interval
	}
	if cfg.PerVenueTimeout <= 0 || cfg.PerVenueTimeout > cfg.CycleDeadline {
		cfg.PerVenueTimeout = cfg.CycleDeadline
	}
	if cfg.Retention == "" {
		cfg.Retention = RetentionHistory
	}
	return &Coordinator{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		logger: logger.With(slog.String("component", "router"), slog.String("symbol", cfg.Symbol)),
	}
}

// Cycle returns the sequence number of the last started cycle.
func (c *Coordinator) Cycle() int64 {
	return c.seq.Load()
}

// Resume continues cycle numbering after the newest cycle in the store so
// observed_at stays monotonic across restarts.
func (c *Coordinator) Resume(ctx context.Context) error {
	if c.deps.Store == nil {
		return nil
	}
	last, err := c.deps.Store.LastObservedAt(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("router: resume cycle: %w", err)
	}
	if last > c.seq.Load() {
		c.seq.Store(last)
	}
	c.logger.InfoContext(ctx, "cycle numbering resumed", slog.Int64("last_cycle", last))
	return nil
}

// Run executes one cycle immediately and then one per interval until ctx
// is cancelled. A cycle never overlaps the previous one.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Resume(ctx); err != nil {
		c.logger.WarnContext(ctx, "could not resume cycle numbering", slog.String("error", err.Error()))
	}
	c.logger.InfoContext(ctx, "router started",
		slog.Int("venues", len(c.deps.Adapters)),
		slog.Duration("interval", c.cfg.Interval),
		slog.String("retention", c.cfg.Retention),
	)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := c.RunCycle(ctx); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			c.logger.Info("router stopped", slog.Int64("last_cycle", c.seq.Load()))
			return nil
		case <-ticker.C:
		}
	}
}

// venueResult is what one venue's fetch contributed to a cycle.
type venueResult struct {
	venue     domain.Venue
	refreshed bool
	dropped   int
	err       error
}

// RunCycle performs one full cycle and returns the emitted decisions. When
// ctx is cancelled mid-cycle nothing is written after the cancellation and
// no decision is emitted.
func (c *Coordinator) RunCycle(ctx context.Context) ([]domain.Decision, error) {
	cycle := c.seq.Add(1)
	start := c.now()
	log := c.logger.With(slog.Int64("cycle", cycle))

	cycleCtx, cancel := context.WithTimeout(ctx, c.cfg.CycleDeadline)
	defer cancel()

	results := c.collect(ctx, cycleCtx, cycle)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("router: cycle %d cancelled: %w", cycle, err)
	}

	var warnings []string
	for _, r := range results {
		if r.err != nil {
			log.WarnContext(ctx, "venue refresh failed",
				slog.String("venue", string(r.venue)),
				slog.String("error", r.err.Error()),
			)
			warnings = append(warnings, fmt.Sprintf("venue %s: %v", r.venue, r.err))
		}
		if r.dropped > 0 {
			warnings = append(warnings, fmt.Sprintf("venue %s: dropped %d malformed entries", r.venue, r.dropped))
		}
	}

	snap := c.deps.Book.Snapshot()
	provenance := provenanceOf(snap, results)

	plans := make([]domain.ExecutionPlan, 0, len(c.cfg.Sides))
	for _, s := range c.cfg.Sides {
		plans = append(plans, execution.Evaluate(snap, s.Side, s.Limits))
	}

	warnings = append(warnings, c.persist(ctx, snap, results, cycle)...)
	warnings = append(warnings, c.mirror(ctx, snap)...)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("router: cycle %d cancelled: %w", cycle, ctx.Err())
	}

	decisions := make([]domain.Decision, 0, len(plans))
	for _, plan := range plans {
		d := domain.Decision{
			ID:          uuid.New(),
			Symbol:      c.cfg.Symbol,
			Cycle:       cycle,
			BookVersion: snap.Version,
			Plan:        plan,
			Provenance:  provenance,
			Warnings:    warnings,
			CreatedAt:   c.now().UTC(),
		}
		c.emit(ctx, d)
		decisions = append(decisions, d)
	}

	log.DebugContext(ctx, "cycle complete",
		slog.Uint64("book_version", snap.Version),
		slog.Int("levels", len(snap.Levels)),
		slog.Int("decisions", len(decisions)),
		slog.Duration("elapsed", c.now().Sub(start)),
	)
	return decisions, nil
}

// fetched is one venue's normalized snapshot, or why there is none.
type fetched struct {
	idx  int
	norm normalize.Result
	err  error
}

// collect fetches every venue concurrently and applies the results to the
// book until all venues reported or cycleCtx is done. Venues that did not
// report by then are marked stale; their late results are discarded since
// only collect writes to the book.
func (c *Coordinator) collect(ctx, cycleCtx context.Context, cycle int64) []venueResult {
	adapters := c.deps.Adapters
	results := make([]venueResult, len(adapters))
	reported := make([]bool, len(adapters))
	// buffered so a late fetch never blocks its goroutine
	ch := make(chan fetched, len(adapters))
	for i, adapter := range adapters {
		results[i].venue = adapter.Name()
		go func() {
			ch <- c.fetchVenue(cycleCtx, i, adapter, cycle)
		}()
	}

	pending := len(adapters)
	for pending > 0 {
		select {
		case f := <-ch:
			pending--
			reported[f.idx] = true
			if ctx.Err() != nil {
				return results
			}
			results[f.idx] = c.apply(results[f.idx].venue, f, cycle)
		case <-cycleCtx.Done():
			if ctx.Err() != nil {
				return results
			}
			for i, ok := range reported {
				if ok {
					continue
				}
				err := fmt.Errorf("%w: %s: no response within cycle deadline: %w",
					domain.ErrVenue, results[i].venue, cycleCtx.Err())
				results[i].err = err
				c.deps.Book.MarkStale(results[i].venue, err)
			}
			return results
		}
	}
	return results
}

// fetchVenue fetches and normalizes one venue. It never touches the book.
func (c *Coordinator) fetchVenue(cycleCtx context.Context, idx int, adapter domain.VenueAdapter, cycle int64) fetched {
	venue := adapter.Name()
	fetchCtx, cancel := context.WithTimeout(cycleCtx, c.cfg.PerVenueTimeout)
	defer cancel()

	raw, err := adapter.FetchOrderBook(fetchCtx, c.cfg.Symbol)
	if err == nil && fetchCtx.Err() != nil {
		// the adapter ignored its deadline
		err = fetchCtx.Err()
	}
	if err != nil {
		if !errors.Is(err, domain.ErrVenue) {
			err = fmt.Errorf("%w: %s: %w", domain.ErrVenue, venue, err)
		}
		return fetched{idx: idx, err: err}
	}
	norm, err := c.deps.Normalizer.Normalize(raw, venue, c.cfg.Symbol, cycle)
	return fetched{idx: idx, norm: norm, err: err}
}

// apply records one venue's outcome in the book.
func (c *Coordinator) apply(venue domain.Venue, f fetched, cycle int64) venueResult {
	res := venueResult{venue: venue, dropped: f.norm.Dropped, err: f.err}
	if f.err != nil {
		c.deps.Book.MarkStale(venue, f.err)
		return res
	}
	if err := c.deps.Book.ReplaceVenue(venue, cycle, f.norm.Levels); err != nil {
		res.err = err
		return res
	}
	res.refreshed = true
	return res
}

// persist writes levels according to the retention policy and returns
// warnings for store failures.
func (c *Coordinator) persist(ctx context.Context, snap book.Snapshot, results []venueResult, cycle int64) []string {
	if c.deps.Store == nil {
		return nil
	}
	var err error
	switch c.cfg.Retention {
	case RetentionLatest:
		err = c.deps.Store.ReplaceLevels(ctx, c.cfg.Symbol, snap.Levels)
	default:
		var fresh []domain.PriceLevel
		for _, r := range results {
			if !r.refreshed {
				continue
			}
			if vs, ok := snap.Venue(r.venue); ok && vs.ObservedAt == cycle {
				fresh = append(fresh, snap.VenueLevels(r.venue)...)
			}
		}
		err = c.deps.Store.AppendLevels(ctx, fresh)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "persisting levels failed",
			slog.Int64("cycle", cycle),
			slog.String("error", err.Error()),
		)
		return []string{"store: " + err.Error()}
	}
	return nil
}

func (c *Coordinator) mirror(ctx context.Context, snap book.Snapshot) []string {
	if c.deps.Mirror == nil {
		return nil
	}
	var warnings []string
	for _, vs := range snap.Venues {
		if err := c.deps.Mirror.SetVenueLevels(ctx, c.cfg.Symbol, vs.Venue, snap.VenueLevels(vs.Venue), vs.Stale); err != nil {
			c.logger.WarnContext(ctx, "mirroring venue book failed",
				slog.String("venue", string(vs.Venue)),
				slog.String("error", err.Error()),
			)
			warnings = append(warnings, "mirror: "+err.Error())
		}
	}
	return warnings
}

func (c *Coordinator) emit(ctx context.Context, d domain.Decision) {
	if c.deps.Sink == nil {
		return
	}
	if err := c.deps.Sink.Publish(ctx, d); err != nil {
		c.logger.WarnContext(ctx, "publishing decision failed",
			slog.String("decision_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// provenanceOf reports each venue of snap as fresh, stale or empty, with the
// number of entries dropped this cycle.
func provenanceOf(snap book.Snapshot, results []venueResult) []domain.VenueStatus {
	dropped := make(map[domain.Venue]int, len(results))
	for _, r := range results {
		dropped[r.venue] = r.dropped
	}
	out := make([]domain.VenueStatus, 0, len(snap.Venues))
	for _, vs := range snap.Venues {
		st := domain.VenueStatus{
			Venue:      vs.Venue,
			Status:     domain.VenueFresh,
			ObservedAt: vs.ObservedAt,
			Levels:     vs.Levels,
			Dropped:    dropped[vs.Venue],
		}
		switch {
		case vs.Stale:
			st.Status = domain.VenueStale
			st.Error = vs.StaleCause
		case vs.Levels == 0:
			st.Status = domain.VenueEmpty
		}
		out = append(out, st)
	}
	return out
}
