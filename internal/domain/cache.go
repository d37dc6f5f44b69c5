package domain

import (
	"context"
	"time"
)

// BookMirror publishes each venue's current levels to a shared cache so
// other processes can read the composite book without talking to venues.
type BookMirror interface {
	SetVenueLevels(ctx context.Context, symbol string, venue Venue, levels []PriceLevel, stale bool) error
	GetVenueLevels(ctx context.Context, symbol string, venue Venue) ([]PriceLevel, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
