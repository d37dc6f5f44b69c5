// Package dydx keeps a local copy of a dYdX v4 order book from the indexer
// websocket (v4_orderbook channel) and serves it as a venue snapshot.
package dydx

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/normalize"
)

// message is the indexer websocket envelope.
type message struct {
	Type      string          `json:"type"`
	MessageID int64           `json:"message_id"`
	Channel   string          `json:"channel"`
	ID        string          `json:"id"`
	Message   string          `json:"message"`
	Contents  json.RawMessage `json:"contents"`
}

// subscribedContents is the initial snapshot sent on subscribe.
type subscribedContents struct {
	Bids []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// updateContents is one delta; a size of "0" removes the price.
type updateContents struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

type level struct {
	price decimal.Decimal
	size  string
}

// Book is the local order book of one market.
type Book struct {
	mu     sync.RWMutex
	asks   map[string]level
	bids   map[string]level
	synced bool
}

// NewBook returns an empty, unsynced book.
func NewBook() *Book {
	return &Book{asks: map[string]level{}, bids: map[string]level{}}
}

// Reset drops every level and marks the book unsynced.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.asks)
	clear(b.bids)
	b.synced = false
}

// Synced reports whether a full snapshot has been applied since the last
// reset.
func (b *Book) Synced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}

// ApplySnapshot replaces the book with the subscribe snapshot.
func (b *Book) ApplySnapshot(raw json.RawMessage) error {
	var c subscribedContents
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("dydx: decode snapshot: %w: %w", domain.ErrMalformedSnapshot, err)
	}
	asks := make(map[string]level, len(c.Asks))
	bids := make(map[string]level, len(c.Bids))
	for _, l := range c.Asks {
		if err := set(asks, l.Price, l.Size); err != nil {
			return err
		}
	}
	for _, l := range c.Bids {
		if err := set(bids, l.Price, l.Size); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.asks, b.bids, b.synced = asks, bids, true
	return nil
}

// ApplyUpdate applies one delta. Deltas before the first snapshot are an
// error.
func (b *Book) ApplyUpdate(raw json.RawMessage) error {
	var c updateContents
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("dydx: decode update: %w: %w", domain.ErrMalformedSnapshot, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.synced {
		return fmt.Errorf("dydx: update before snapshot: %w", domain.ErrNotSynced)
	}
	for _, l := range c.Asks {
		if err := set(b.asks, l[0], l[1]); err != nil {
			return err
		}
	}
	for _, l := range c.Bids {
		if err := set(b.bids, l[0], l[1]); err != nil {
			return err
		}
	}
	return nil
}

// set stores size at price, keyed by the canonical price so "65000" and
// "65000.0" are the same level. A zero size deletes.
func set(side map[string]level, price, size string) error {
	p, err := normalize.ParseDecimal(price)
	if err != nil {
		return fmt.Errorf("dydx: price: %w", err)
	}
	s, err := normalize.ParseDecimal(size)
	if err != nil {
		return fmt.Errorf("dydx: size: %w", err)
	}
	key := p.String()
	if s.IsZero() {
		delete(side, key)
		return nil
	}
	side[key] = level{price: p, size: size}
	return nil
}

// Snapshot copies the book best first on each side, keeping at most depth
// levels per side when depth > 0.
func (b *Book) Snapshot(depth int) (*domain.RawSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.synced {
		return nil, domain.ErrNotSynced
	}
	return &domain.RawSnapshot{
		Asks: sorted(b.asks, depth, false),
		Bids: sorted(b.bids, depth, true),
	}, nil
}

func sorted(side map[string]level, depth int, desc bool) []domain.RawEntry {
	levels := make([]level, 0, len(side))
	for _, l := range side {
		levels = append(levels, l)
	}
	slices.SortFunc(levels, func(a, b level) int {
		if desc {
			return b.price.Cmp(a.price)
		}
		return a.price.Cmp(b.price)
	})
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	out := make([]domain.RawEntry, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.RawEntry{Price: l.price.String(), Volume: l.size})
	}
	return out
}
