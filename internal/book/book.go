// Package book maintains the composite multi-venue order book.
//
// The book is a single immutable state value published through an atomic
// pointer. Writers copy the venue map, swap in one venue's new contribution
// and publish with compare-and-swap; readers load the pointer and never
// block.
package book

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// ErrStaleBatch is returned by ReplaceVenue when the batch is older than the
// venue's current contribution.
var ErrStaleBatch = errors.New("book: batch older than current venue state")

type venueBook struct {
	levels     []domain.PriceLevel
	observedAt int64
	stale      bool
	staleCause string
}

type state struct {
	version uint64
	venues  map[domain.Venue]*venueBook
}

// Book is the composite order book for one symbol. The zero value is not
// usable; create it with New.
type Book struct {
	symbol string
	cur    atomic.Pointer[state]
}

// New creates an empty book for symbol.
func New(symbol string) *Book {
	b := &Book{symbol: domain.NormalizeSymbol(symbol)}
	b.cur.Store(&state{venues: map[domain.Venue]*venueBook{}})
	return b
}

// Symbol returns the instrument this book tracks.
func (b *Book) Symbol() string {
	return b.symbol
}

// Version returns the number of state changes applied so far.
func (b *Book) Version() uint64 {
	return b.cur.Load().version
}

// ReplaceVenue atomically swaps every level of venue for levels. Zero-volume
// levels are dropped and duplicate (side, price) entries are summed into the
// first occurrence. Replacing a venue clears its stale flag.
//
// The call fails without touching the book when a level belongs to another
// venue or symbol, has an invalid side or price, or when observedAt is
// older than the venue's current batch.
func (b *Book) ReplaceVenue(venue domain.Venue, observedAt int64, levels []domain.PriceLevel) error {
	merged, err := b.prepare(venue, levels)
	if err != nil {
		return err
	}

	for {
		old := b.cur.Load()
		prev, ok := old.venues[venue]
		if ok && observedAt < prev.observedAt {
			return fmt.Errorf("%w: venue %s at %d, batch at %d", ErrStaleBatch, venue, prev.observedAt, observedAt)
		}
		if ok && !prev.stale && observedAt == prev.observedAt && slices.Equal(prev.levels, merged) {
			return nil
		}
		next := old.with(venue, &venueBook{levels: merged, observedAt: observedAt})
		if b.cur.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// MarkStale flags venue's retained levels as stale. Levels are kept as they
// are. Unknown venues get an empty stale entry so provenance still reports
// them.
func (b *Book) MarkStale(venue domain.Venue, cause error) {
	reason := "refresh failed"
	if cause != nil {
		reason = cause.Error()
	}
	for {
		old := b.cur.Load()
		vb := &venueBook{stale: true, staleCause: reason}
		if prev, ok := old.venues[venue]; ok {
			vb.levels = prev.levels
			vb.observedAt = prev.observedAt
		}
		if b.cur.CompareAndSwap(old, old.with(venue, vb)) {
			return
		}
	}
}

// Snapshot returns a consistent point-in-time view of the book.
func (b *Book) Snapshot() Snapshot {
	s := b.cur.Load()
	names := make([]domain.Venue, 0, len(s.venues))
	for v := range s.venues {
		names = append(names, v)
	}
	slices.Sort(names)

	snap := Snapshot{Symbol: b.symbol, Version: s.version, Venues: make([]VenueState, 0, len(names))}
	for _, v := range names {
		vb := s.venues[v]
		snap.Venues = append(snap.Venues, VenueState{
			Venue:      v,
			ObservedAt: vb.observedAt,
			Stale:      vb.stale,
			StaleCause: vb.staleCause,
			Levels:     len(vb.levels),
		})
		snap.Levels = append(snap.Levels, vb.levels...)
	}
	return snap
}

// Venues returns the per-venue metadata of the current state.
func (b *Book) Venues() []VenueState {
	return b.Snapshot().Venues
}

// BestPrice returns the lowest ask or the highest bid across all venues.
func (b *Book) BestPrice(side domain.Side) (int64, bool) {
	s := b.cur.Load()
	var best int64
	found := false
	for _, vb := range s.venues {
		for _, l := range vb.levels {
			if l.Side != side {
				continue
			}
			if !found || (side == domain.SideAsk && l.Price < best) || (side == domain.SideBid && l.Price > best) {
				best = l.Price
				found = true
			}
		}
	}
	return best, found
}

// prepare validates levels and returns a fresh slice with zero volumes
// removed and duplicates summed. Asks come before bids; each side keeps the
// order of first appearance.
func (b *Book) prepare(venue domain.Venue, levels []domain.PriceLevel) ([]domain.PriceLevel, error) {
	type key struct {
		side  domain.Side
		price int64
	}
	idx := make(map[key]int, len(levels))
	var asks, bids []domain.PriceLevel

	for i, l := range levels {
		switch {
		case l.Venue != venue:
			return nil, fmt.Errorf("book: level %d venue %q does not match %q", i, l.Venue, venue)
		case l.Symbol != b.symbol:
			return nil, fmt.Errorf("book: level %d symbol %q does not match %q", i, l.Symbol, b.symbol)
		case !l.Side.Valid():
			return nil, fmt.Errorf("book: level %d has invalid side %q", i, l.Side)
		case l.Price <= 0:
			return nil, fmt.Errorf("book: level %d has non-positive price %d", i, l.Price)
		case l.Volume < 0:
			return nil, fmt.Errorf("book: level %d has negative volume %d", i, l.Volume)
		case l.Volume == 0:
			continue
		}

		k := key{l.Side, l.Price}
		dst := &asks
		if l.Side == domain.SideBid {
			dst = &bids
		}
		if j, ok := idx[k]; ok {
			(*dst)[j].Volume += l.Volume
			continue
		}
		idx[k] = len(*dst)
		*dst = append(*dst, l)
	}
	return append(asks, bids...), nil
}

// with returns a copy of s where venue maps to vb.
func (s *state) with(venue domain.Venue, vb *venueBook) *state {
	venues := make(map[domain.Venue]*venueBook, len(s.venues)+1)
	for k, v := range s.venues {
		venues[k] = v
	}
	venues[venue] = vb
	return &state{version: s.version + 1, venues: venues}
}
