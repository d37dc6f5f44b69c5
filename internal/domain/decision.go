package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanReason explains why an ExecutionPlan is or is not eligible.
type PlanReason string

const (
	ReasonEligible      PlanReason = "eligible"
	ReasonNoLiquidity   PlanReason = "no_liquidity"
	ReasonPriceLimit    PlanReason = "price_limit"
	ReasonBelowMinimum  PlanReason = "below_minimum"
	ReasonInvalidLimits PlanReason = "invalid_limits"
)

// Fill is one slice of a plan taken from a single venue level.
type Fill struct {
	Venue  Venue `json:"venue"`
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
}

// ExecutionPlan is the result of evaluating one side against a book
// snapshot. FilledNotional is the exact sum of price*volume over the fills
// (fixed-point squared); AvgPrice is FilledNotional/FilledVolume expressed
// in fixed-point price units. A plan is never mutated after it is built.
type ExecutionPlan struct {
	Side           TradeSide       `json:"side"`
	Fills          []Fill          `json:"fills"`
	FilledVolume   int64           `json:"filled_volume"`
	FilledNotional decimal.Decimal `json:"filled_notional"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	Eligible       bool            `json:"eligible"`
	Reason         PlanReason      `json:"reason"`
}

// Err returns ErrNoLiquidity for plans that found no volume on the required
// side, nil otherwise.
func (p ExecutionPlan) Err() error {
	if p.Reason == ReasonNoLiquidity {
		return ErrNoLiquidity
	}
	return nil
}

// VenueFreshness is the state a venue's contribution had when a decision
// was taken.
type VenueFreshness string

const (
	VenueFresh VenueFreshness = "fresh"
	VenueStale VenueFreshness = "stale"
	VenueEmpty VenueFreshness = "empty"
)

// VenueStatus is the provenance of one venue's contribution to a decision.
type VenueStatus struct {
	Venue      Venue          `json:"venue"`
	Status     VenueFreshness `json:"status"`
	ObservedAt int64          `json:"observed_at"`
	Levels     int            `json:"levels"`
	Dropped    int            `json:"dropped,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Decision is one emitted routing decision: a plan tagged with the symbol,
// the cycle that produced it and the composite book version it was computed
// from.
type Decision struct {
	ID          uuid.UUID     `json:"id"`
	Symbol      string        `json:"symbol"`
	Cycle       int64         `json:"cycle"`
	BookVersion uint64        `json:"book_version"`
	Plan        ExecutionPlan `json:"plan"`
	Provenance  []VenueStatus `json:"provenance"`
	Warnings    []string      `json:"warnings,omitempty"`
	Replayed    bool          `json:"replayed,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// HasStaleVenue reports whether any venue in the provenance is stale.
func (d Decision) HasStaleVenue() bool {
	for _, p := range d.Provenance {
		if p.Status == VenueStale {
			return true
		}
	}
	return false
}
