package router

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/execution"
)

// Replay rebuilds the book from stored rows and re-evaluates every cycle
// found in them. Rows are grouped by ObservedAt; within a cycle each venue's
// rows replace that venue, as the live loop did when it wrote them. The
// Coordinator's book should be empty when Replay starts.
//
// A row that appears more than once (the same venue, side and price in the
// same cycle, e.g. both in an archive object and still in the store) is
// applied once.
func (c *Coordinator) Replay(ctx context.Context, levels []domain.PriceLevel) ([]domain.Decision, error) {
	rows := dedupeRows(levels)
	slices.SortStableFunc(rows, func(a, b domain.PriceLevel) int {
		return cmp.Compare(a.ObservedAt, b.ObservedAt)
	})

	var decisions []domain.Decision
	for start := 0; start < len(rows); {
		if err := ctx.Err(); err != nil {
			return decisions, fmt.Errorf("router: replay cancelled: %w", err)
		}
		cycle := rows[start].ObservedAt
		end := start
		for end < len(rows) && rows[end].ObservedAt == cycle {
			end++
		}

		if err := c.applyCycle(rows[start:end], cycle); err != nil {
			return decisions, err
		}
		decisions = append(decisions, c.replayDecisions(ctx, cycle)...)
		start = end
	}

	c.logger.InfoContext(ctx, "replay complete",
		slog.Int("rows", len(rows)),
		slog.Int("decisions", len(decisions)),
	)
	return decisions, nil
}

type rowKey struct {
	symbol     string
	venue      domain.Venue
	side       domain.Side
	price      int64
	observedAt int64
}

// dedupeRows keeps the first occurrence of each row key. The live loop
// stores at most one row per key, so any repeat is a copy.
func dedupeRows(levels []domain.PriceLevel) []domain.PriceLevel {
	seen := make(map[rowKey]struct{}, len(levels))
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		k := rowKey{domain.NormalizeSymbol(l.Symbol), l.Venue, l.Side, l.Price, l.ObservedAt}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}

func (c *Coordinator) applyCycle(rows []domain.PriceLevel, cycle int64) error {
	byVenue := map[domain.Venue][]domain.PriceLevel{}
	var order []domain.Venue
	for _, l := range rows {
		if domain.NormalizeSymbol(l.Symbol) != c.cfg.Symbol {
			continue
		}
		if _, ok := byVenue[l.Venue]; !ok {
			order = append(order, l.Venue)
		}
		byVenue[l.Venue] = append(byVenue[l.Venue], l)
	}
	for _, v := range order {
		if err := c.deps.Book.ReplaceVenue(v, cycle, byVenue[v]); err != nil {
			return fmt.Errorf("router: replay cycle %d venue %s: %w", cycle, v, err)
		}
	}
	if cycle > c.seq.Load() {
		c.seq.Store(cycle)
	}
	return nil
}

func (c *Coordinator) replayDecisions(ctx context.Context, cycle int64) []domain.Decision {
	snap := c.deps.Book.Snapshot()
	provenance := provenanceOf(snap, nil)

	out := make([]domain.Decision, 0, len(c.cfg.Sides))
	for _, s := range c.cfg.Sides {
		d := domain.Decision{
			ID:          uuid.New(),
			Symbol:      c.cfg.Symbol,
			Cycle:       cycle,
			BookVersion: snap.Version,
			Plan:        execution.Evaluate(snap, s.Side, s.Limits),
			Provenance:  provenance,
			Replayed:    true,
			CreatedAt:   c.now().UTC(),
		}
		c.emit(ctx, d)
		out = append(out, d)
	}
	return out
}
