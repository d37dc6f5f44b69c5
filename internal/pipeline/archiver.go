// Package pipeline holds background jobs that run beside the routing loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// LevelArchiver uploads rows older than a cycle to cold storage and removes
// them from the store.
type LevelArchiver interface {
	ArchiveBefore(ctx context.Context, symbol string, before int64) (int64, string, error)
}

// CycleSource reports the newest stored cycle for a symbol.
type CycleSource interface {
	LastObservedAt(ctx context.Context, symbol string) (int64, error)
}

const archiveLockTTL = 5 * time.Minute

// Archiver moves price-level rows older than the newest keepCycles cycles to
// object storage. When a LockManager is set only one process archives a
// symbol at a time.
type Archiver struct {
	archiver   LevelArchiver
	cycles     CycleSource
	locks      domain.LockManager
	symbol     string
	keepCycles int64
	logger     *slog.Logger
}

// NewArchiver creates a new Archiver. locks may be nil.
func NewArchiver(archiver LevelArchiver, cycles CycleSource, locks domain.LockManager, symbol string, keepCycles int64, logger *slog.Logger) *Archiver {
	return &Archiver{
		archiver:   archiver,
		cycles:     cycles,
		locks:      locks,
		symbol:     symbol,
		keepCycles: keepCycles,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff returns the first cycle that stays in the store given the newest
// stored cycle. Zero means nothing is old enough.
func (a *Archiver) Cutoff(last int64) int64 {
	cutoff := last - a.keepCycles + 1
	if cutoff <= 1 {
		return 0
	}
	return cutoff
}

// Run executes a single archive run.
func (a *Archiver) Run(ctx context.Context) error {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, "archive:"+a.symbol, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, lock held elsewhere")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: archive lock: %w", err)
		}
		defer unlock()
	}

	last, err := a.cycles.LastObservedAt(ctx, a.symbol)
	if err != nil {
		return fmt.Errorf("pipeline: archive last cycle: %w", err)
	}
	cutoff := a.Cutoff(last)
	if cutoff == 0 {
		return nil
	}

	a.logger.InfoContext(ctx, "starting archive run",
		slog.Int64("cutoff_cycle", cutoff),
		slog.Int64("keep_cycles", a.keepCycles),
	)
	n, path, err := a.archiver.ArchiveBefore(ctx, a.symbol, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archiving levels before cycle %d: %w", cutoff, err)
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "archive run complete",
			slog.Int64("levels_archived", n),
			slog.String("path", path),
		)
	}
	return nil
}

// RunLoop runs the archiver every interval until the context is cancelled.
// Failed runs are logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.InfoContext(ctx, "archiver started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return nil
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
