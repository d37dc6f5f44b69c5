package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// LevelStore implements domain.LevelStore on the price_levels table.
type LevelStore struct {
	pool *pgxpool.Pool
}

// NewLevelStore creates a LevelStore backed by the given connection pool.
func NewLevelStore(pool *pgxpool.Pool) *LevelStore {
	return &LevelStore{pool: pool}
}

var levelColumns = []string{"symbol", "venue", "side", "price", "volume", "observed_at"}

const levelSelect = `SELECT symbol, venue, side, price, volume, observed_at FROM price_levels`

func scanLevelRows(rows pgx.Rows) ([]domain.PriceLevel, error) {
	var levels []domain.PriceLevel
	for rows.Next() {
		var (
			l     domain.PriceLevel
			venue string
			side  string
		)
		if err := rows.Scan(&l.Symbol, &venue, &side, &l.Price, &l.Volume, &l.ObservedAt); err != nil {
			return nil, err
		}
		l.Venue = domain.Venue(venue)
		l.Side = domain.Side(side)
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// AppendLevels inserts levels in one pgx batch.
func (s *LevelStore) AppendLevels(ctx context.Context, levels []domain.PriceLevel) error {
	if len(levels) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO price_levels (symbol, venue, side, price, volume, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, l := range levels {
		batch.Queue(query, l.Symbol, string(l.Venue), string(l.Side), l.Price, l.Volume, l.ObservedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range levels {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append level %d: %w: %w", i, domain.ErrStore, err)
		}
	}
	return nil
}

// ReplaceLevels deletes every row of symbol and copies levels in, inside one
// transaction.
func (s *LevelStore) ReplaceLevels(ctx context.Context, symbol string, levels []domain.PriceLevel) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM price_levels WHERE symbol = $1`, symbol); err != nil {
			return err
		}
		if len(levels) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"price_levels"}, levelColumns,
			pgx.CopyFromSlice(len(levels), func(i int) ([]any, error) {
				l := levels[i]
				return []any{l.Symbol, string(l.Venue), string(l.Side), l.Price, l.Volume, l.ObservedAt}, nil
			}))
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: replace levels %s: %w: %w", symbol, domain.ErrStore, err)
	}
	return nil
}

// ReadAll returns every row for symbol in cycle order.
func (s *LevelStore) ReadAll(ctx context.Context, symbol string) ([]domain.PriceLevel, error) {
	rows, err := s.pool.Query(ctx, levelSelect+` WHERE symbol = $1 ORDER BY observed_at, id`, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: read levels: %w: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	levels, err := scanLevelRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan levels: %w: %w", domain.ErrStore, err)
	}
	return levels, nil
}

// LastObservedAt returns the highest stored cycle for symbol, or 0.
func (s *LevelStore) LastObservedAt(ctx context.Context, symbol string) (int64, error) {
	var last *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(observed_at) FROM price_levels WHERE symbol = $1`, symbol).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("postgres: last observed_at: %w: %w", domain.ErrStore, err)
	}
	if last == nil {
		return 0, nil
	}
	return *last, nil
}

// ListBefore returns rows of symbol with observed_at strictly before the
// given cycle (for archiving).
func (s *LevelStore) ListBefore(ctx context.Context, symbol string, before int64) ([]domain.PriceLevel, error) {
	rows, err := s.pool.Query(ctx,
		levelSelect+` WHERE symbol = $1 AND observed_at < $2 ORDER BY observed_at, id`, symbol, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list levels before: %w: %w", domain.ErrStore, err)
	}
	defer rows.Close()
	return scanLevelRows(rows)
}

// DeleteBefore deletes rows of symbol with observed_at before the given
// cycle. Returns the number deleted.
func (s *LevelStore) DeleteBefore(ctx context.Context, symbol string, before int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM price_levels WHERE symbol = $1 AND observed_at < $2`, symbol, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete levels before: %w: %w", domain.ErrStore, err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ domain.LevelStore         = (*LevelStore)(nil)
	_ domain.LevelArchiveSource = (*LevelStore)(nil)
)
