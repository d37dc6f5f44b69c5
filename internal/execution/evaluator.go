// Package execution decides whether a marketable order can be filled from a
// composite book snapshot within a volume-weighted price limit.
package execution

import (
	"cmp"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/alanyoungcy/orderrouter/internal/book"
	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// Limits bounds one evaluation. AvgPrice is expressed in fixed-point price
// units and is kept as a decimal so that limits finer than the scale are
// compared exactly. Volume and MinVolume are fixed-point volumes.
type Limits struct {
	AvgPrice  decimal.Decimal
	Volume    int64
	MinVolume int64
}

// LimitsFromDecimal converts human-unit limits to fixed point at scale.
func LimitsFromDecimal(avgPrice, volume, minVolume decimal.Decimal, scale int64) Limits {
	s := decimal.NewFromInt(scale)
	return Limits{
		AvgPrice:  avgPrice.Mul(s),
		Volume:    volume.Mul(s).Round(0).IntPart(),
		MinVolume: minVolume.Mul(s).Round(0).IntPart(),
	}
}

type candidate struct {
	level domain.PriceLevel
	seq   int
}

// Evaluate walks the liquidity opposite to side in best-price order and
// returns the resulting plan. Ties on price are broken by venue name, then
// by position in the snapshot, so identical inputs always give identical
// plans. The walk stops once lim.Volume is reached, taking a partial
// quantity from the level that crosses the cap.
//
// Evaluate never fails: an empty side yields a plan with Reason
// ReasonNoLiquidity and out-of-range limits yield ReasonInvalidLimits. A buy
// needs a positive price limit; a sell floor of zero accepts any price.
func Evaluate(snap book.Snapshot, side domain.TradeSide, lim Limits) domain.ExecutionPlan {
	plan := domain.ExecutionPlan{Side: side, Fills: []domain.Fill{}}
	if lim.Volume <= 0 || lim.MinVolume < 0 || !validPriceLimit(side, lim.AvgPrice) {
		plan.Reason = domain.ReasonInvalidLimits
		return plan
	}

	want := side.Liquidity()
	candidates := btree.NewBTreeG(func(a, b candidate) bool {
		if a.level.Price != b.level.Price {
			if want == domain.SideAsk {
				return a.level.Price < b.level.Price
			}
			return a.level.Price > b.level.Price
		}
		if c := cmp.Compare(a.level.Venue, b.level.Venue); c != 0 {
			return c < 0
		}
		return a.seq < b.seq
	})
	for i, l := range snap.Levels {
		if l.Side == want && l.Volume > 0 {
			candidates.Set(candidate{level: l, seq: i})
		}
	}

	remaining := lim.Volume
	notional := decimal.Zero
	candidates.Scan(func(c candidate) bool {
		take := min(c.level.Volume, remaining)
		plan.Fills = append(plan.Fills, domain.Fill{Venue: c.level.Venue, Price: c.level.Price, Volume: take})
		plan.FilledVolume += take
		notional = notional.Add(decimal.NewFromInt(c.level.Price).Mul(decimal.NewFromInt(take)))
		remaining -= take
		return remaining > 0
	})
	plan.FilledNotional = notional

	if plan.FilledVolume == 0 {
		plan.Reason = domain.ReasonNoLiquidity
		return plan
	}

	filled := decimal.NewFromInt(plan.FilledVolume)
	plan.AvgPrice = notional.Div(filled)

	// avg <= limit is checked as notional <= limit*filled so no rounding
	// from the division can flip the outcome.
	bound := lim.AvgPrice.Mul(filled)
	priceOK := notional.LessThanOrEqual(bound)
	if side == domain.TradeSell {
		priceOK = notional.GreaterThanOrEqual(bound)
	}

	switch {
	case !priceOK:
		plan.Reason = domain.ReasonPriceLimit
	case plan.FilledVolume < lim.MinVolume:
		plan.Reason = domain.ReasonBelowMinimum
	default:
		plan.Eligible = true
		plan.Reason = domain.ReasonEligible
	}
	return plan
}

func validPriceLimit(side domain.TradeSide, limit decimal.Decimal) bool {
	if side == domain.TradeSell {
		return !limit.IsNegative()
	}
	return limit.IsPositive()
}
