package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// BookMirror implements domain.BookMirror. Each venue's contribution is
// replaced in one MULTI/EXEC so readers never see a half-written venue.
//
// Key schema:
//
//	book:{symbol}:{venue}:levels - list of JSON levels in book order
//	book:{symbol}:{venue}:asks   - sorted set of ask prices (score = price)
//	book:{symbol}:{venue}:bids   - sorted set of bid prices (score = price)
//	book:{symbol}:{venue}:meta   - hash with "observed_at" and "stale"
type BookMirror struct {
	rdb *redis.Client
}

// NewBookMirror creates a BookMirror backed by the given Client.
func NewBookMirror(c *Client) *BookMirror {
	return &BookMirror{rdb: c.Underlying()}
}

func mirrorKey(symbol string, venue domain.Venue, part string) string {
	return "book:" + symbol + ":" + string(venue) + ":" + part
}

// SetVenueLevels replaces the mirrored levels of venue.
func (m *BookMirror) SetVenueLevels(ctx context.Context, symbol string, venue domain.Venue, levels []domain.PriceLevel, stale bool) error {
	levelsKey := mirrorKey(symbol, venue, "levels")
	asksKey := mirrorKey(symbol, venue, "asks")
	bidsKey := mirrorKey(symbol, venue, "bids")
	metaKey := mirrorKey(symbol, venue, "meta")

	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, levelsKey, asksKey, bidsKey, metaKey)

	var observedAt int64
	for _, l := range levels {
		raw, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("redis: mirror %s/%s: %w", symbol, venue, err)
		}
		pipe.RPush(ctx, levelsKey, raw)
		member := strconv.FormatInt(l.Price, 10)
		if l.Side == domain.SideAsk {
			pipe.ZAdd(ctx, asksKey, redis.Z{Score: float64(l.Price), Member: member})
		} else {
			pipe.ZAdd(ctx, bidsKey, redis.Z{Score: float64(l.Price), Member: member})
		}
		observedAt = max(observedAt, l.ObservedAt)
	}
	pipe.HSet(ctx, metaKey, "observed_at", observedAt, "stale", stale)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: mirror %s/%s: %w", symbol, venue, err)
	}
	return nil
}

// GetVenueLevels reads the mirrored levels of venue. It returns
// domain.ErrNotFound when the venue was never mirrored.
func (m *BookMirror) GetVenueLevels(ctx context.Context, symbol string, venue domain.Venue) ([]domain.PriceLevel, error) {
	pipe := m.rdb.Pipeline()
	metaCmd := pipe.Exists(ctx, mirrorKey(symbol, venue, "meta"))
	levelsCmd := pipe.LRange(ctx, mirrorKey(symbol, venue, "levels"), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: read mirror %s/%s: %w", symbol, venue, err)
	}
	if metaCmd.Val() == 0 {
		return nil, domain.ErrNotFound
	}

	raw := levelsCmd.Val()
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, r := range raw {
		var l domain.PriceLevel
		if err := json.Unmarshal([]byte(r), &l); err != nil {
			return nil, fmt.Errorf("redis: decode mirror %s/%s: %w", symbol, venue, err)
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// Compile-time interface check.
var _ domain.BookMirror = (*BookMirror)(nil)
