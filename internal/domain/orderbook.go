package domain

import (
	"context"
	"strings"
)

// Side is the book side a level rests on.
type Side string

const (
	SideAsk Side = "ASK"
	SideBid Side = "BID"
)

// Valid reports whether s is ASK or BID.
func (s Side) Valid() bool {
	return s == SideAsk || s == SideBid
}

// TradeSide is the direction of the order being evaluated.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// Liquidity returns the book side an order in this direction consumes:
// buys take asks, sells take bids.
func (t TradeSide) Liquidity() Side {
	if t == TradeSell {
		return SideBid
	}
	return SideAsk
}

// Venue identifies a configured liquidity source.
type Venue string

// NormalizeSymbol returns the venue-agnostic form of a symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// PriceLevel is one resting quantity at a price on one side of one venue's
// book. Price and Volume are fixed-point integers scaled by the configured
// price scale. ObservedAt is the cycle sequence number of the batch that
// produced the level.
type PriceLevel struct {
	Price      int64  `json:"price"`
	Volume     int64  `json:"volume"`
	Symbol     string `json:"symbol"`
	Venue      Venue  `json:"venue"`
	Side       Side   `json:"side"`
	ObservedAt int64  `json:"observed_at"`
}

// RawEntry is a venue-native price/volume pair. Values are decimal strings
// exactly as the venue reported them; Extra carries any venue-specific
// fields the adapter chose to keep.
type RawEntry struct {
	Price  string         `json:"price"`
	Volume string         `json:"volume"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// RawSnapshot is the unnormalized book a venue adapter returns.
type RawSnapshot struct {
	Asks []RawEntry `json:"asks"`
	Bids []RawEntry `json:"bids"`
}

// VenueAdapter fetches order-book snapshots from one venue.
type VenueAdapter interface {
	Name() Venue
	FetchOrderBook(ctx context.Context, symbol string) (*RawSnapshot, error)
}

// VenueRunner is implemented by adapters that keep a background connection
// (e.g. a streaming websocket book). Run blocks until ctx is done.
type VenueRunner interface {
	Run(ctx context.Context) error
}
