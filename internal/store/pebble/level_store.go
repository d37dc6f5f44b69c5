// Package pebble implements the level store on an embedded Pebble database
// for single-node deployments that do not run PostgreSQL.
package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// Keys are lvl/<escaped symbol>/<observed_at %020d>/<seq %020d>, so a
// lexical scan of one symbol returns rows in cycle then insertion order.
// seqKey holds the last sequence number handed out.
var seqKey = []byte("meta/seq")

// LevelStore implements domain.LevelStore on Pebble.
type LevelStore struct {
	db *pebble.DB

	mu  sync.Mutex // serializes writers so seq stays monotonic
	seq uint64
}

// Open opens (or creates) the database in dir.
func Open(dir string) (*LevelStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}
	s := &LevelStore{db: db}

	val, closer, err := db.Get(seqKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("pebble: read seq: %w", err)
	default:
		if len(val) == 8 {
			s.seq = binary.BigEndian.Uint64(val)
		}
		_ = closer.Close()
	}
	return s, nil
}

// Close flushes and closes the database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

func symbolPrefix(symbol string) []byte {
	return []byte("lvl/" + url.PathEscape(symbol) + "/")
}

func cycleKey(symbol string, observedAt int64) []byte {
	return fmt.Appendf(symbolPrefix(symbol), "%020d/", observedAt)
}

func levelKey(symbol string, observedAt int64, seq uint64) []byte {
	return fmt.Appendf(cycleKey(symbol, observedAt), "%020d", seq)
}

// upper returns the smallest key greater than every key starting with p.
func upper(p []byte) []byte {
	out := bytes.Clone(p)
	out[len(out)-1]++
	return out
}

// writeLevels queues levels into b, advancing the sequence. Caller holds mu.
func (s *LevelStore) writeLevels(b *pebble.Batch, levels []domain.PriceLevel) error {
	for _, l := range levels {
		val, err := json.Marshal(l)
		if err != nil {
			return err
		}
		s.seq++
		if err := b.Set(levelKey(l.Symbol, l.ObservedAt, s.seq), val, nil); err != nil {
			return err
		}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.seq)
	return b.Set(seqKey, buf[:], nil)
}

// AppendLevels writes levels in one synced batch.
func (s *LevelStore) AppendLevels(_ context.Context, levels []domain.PriceLevel) error {
	if len(levels) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.seq
	b := s.db.NewBatch()
	defer b.Close()
	if err := s.writeLevels(b, levels); err != nil {
		s.seq = prev
		return fmt.Errorf("pebble: append levels: %w: %w", domain.ErrStore, err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		s.seq = prev
		return fmt.Errorf("pebble: append levels: %w: %w", domain.ErrStore, err)
	}
	return nil
}

// ReplaceLevels deletes every row of symbol and writes levels in the same
// batch, so readers see either the old or the new set.
func (s *LevelStore) ReplaceLevels(_ context.Context, symbol string, levels []domain.PriceLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.seq
	b := s.db.NewBatch()
	defer b.Close()
	p := symbolPrefix(symbol)
	if err := b.DeleteRange(p, upper(p), nil); err != nil {
		return fmt.Errorf("pebble: replace levels: %w: %w", domain.ErrStore, err)
	}
	if err := s.writeLevels(b, levels); err != nil {
		s.seq = prev
		return fmt.Errorf("pebble: replace levels: %w: %w", domain.ErrStore, err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		s.seq = prev
		return fmt.Errorf("pebble: replace levels: %w: %w", domain.ErrStore, err)
	}
	return nil
}

func (s *LevelStore) scan(lower, upperKey []byte) ([]domain.PriceLevel, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upperKey})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var levels []domain.PriceLevel
	for iter.First(); iter.Valid(); iter.Next() {
		var l domain.PriceLevel
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		levels = append(levels, l)
	}
	return levels, iter.Error()
}

// ReadAll returns every row for symbol in cycle order.
func (s *LevelStore) ReadAll(_ context.Context, symbol string) ([]domain.PriceLevel, error) {
	p := symbolPrefix(symbol)
	levels, err := s.scan(p, upper(p))
	if err != nil {
		return nil, fmt.Errorf("pebble: read levels: %w: %w", domain.ErrStore, err)
	}
	return levels, nil
}

// LastObservedAt returns the highest stored cycle for symbol, or 0.
func (s *LevelStore) LastObservedAt(_ context.Context, symbol string) (int64, error) {
	p := symbolPrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: upper(p)})
	if err != nil {
		return 0, fmt.Errorf("pebble: last observed_at: %w: %w", domain.ErrStore, err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	var l domain.PriceLevel
	if err := json.Unmarshal(iter.Value(), &l); err != nil {
		return 0, fmt.Errorf("pebble: last observed_at: %w: %w", domain.ErrStore, err)
	}
	return l.ObservedAt, nil
}

// ListBefore returns rows of symbol with ObservedAt strictly before the
// given cycle.
func (s *LevelStore) ListBefore(_ context.Context, symbol string, before int64) ([]domain.PriceLevel, error) {
	levels, err := s.scan(symbolPrefix(symbol), cycleKey(symbol, before))
	if err != nil {
		return nil, fmt.Errorf("pebble: list levels before: %w: %w", domain.ErrStore, err)
	}
	return levels, nil
}

// DeleteBefore removes rows of symbol with ObservedAt before the given cycle
// and returns how many were removed.
func (s *LevelStore) DeleteBefore(_ context.Context, symbol string, before int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower, upperKey := symbolPrefix(symbol), cycleKey(symbol, before)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upperKey})
	if err != nil {
		return 0, fmt.Errorf("pebble: delete levels before: %w: %w", domain.ErrStore, err)
	}
	var n int64
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("pebble: delete levels before: %w: %w", domain.ErrStore, err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.db.DeleteRange(lower, upperKey, pebble.Sync); err != nil {
		return 0, fmt.Errorf("pebble: delete levels before: %w: %w", domain.ErrStore, err)
	}
	return n, nil
}

var (
	_ domain.LevelStore         = (*LevelStore)(nil)
	_ domain.LevelArchiveSource = (*LevelStore)(nil)
)
