package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/book"
	"github.com/alanyoungcy/orderrouter/internal/domain"
)

const (
	sym   = "BTC/USD"
	scale = int64(100_000)
)

func fx(v float64) int64 { return int64(v * float64(scale)) }

func level(venue domain.Venue, side domain.Side, price, volume float64) domain.PriceLevel {
	return domain.PriceLevel{Price: fx(price), Volume: fx(volume), Symbol: sym, Venue: venue, Side: side, ObservedAt: 1}
}

func limits(avg, volume, minVolume string) Limits {
	return LimitsFromDecimal(
		decimal.RequireFromString(avg),
		decimal.RequireFromString(volume),
		decimal.RequireFromString(minVolume),
		scale,
	)
}

func exampleBook(t *testing.T) book.Snapshot {
	t.Helper()
	b := book.New(sym)
	require.NoError(t, b.ReplaceVenue("venuex", 1, []domain.PriceLevel{level("venuex", domain.SideAsk, 100, 2)}))
	require.NoError(t, b.ReplaceVenue("venuey", 1, []domain.PriceLevel{level("venuey", domain.SideAsk, 101, 3)}))
	return b.Snapshot()
}

func TestEvaluateBuyWithinLimit(t *testing.T) {
	plan := Evaluate(exampleBook(t), domain.TradeBuy, limits("101", "4", "0"))

	assert.Equal(t, []domain.Fill{
		{Venue: "venuex", Price: fx(100), Volume: fx(2)},
		{Venue: "venuey", Price: fx(101), Volume: fx(2)},
	}, plan.Fills)
	assert.Equal(t, fx(4), plan.FilledVolume)
	assert.True(t, plan.AvgPrice.Equal(decimal.NewFromInt(fx(100.5))), plan.AvgPrice.String())
	assert.True(t, plan.Eligible)
	assert.Equal(t, domain.ReasonEligible, plan.Reason)
	assert.NoError(t, plan.Err())
}

func TestEvaluateBuyAboveLimit(t *testing.T) {
	plan := Evaluate(exampleBook(t), domain.TradeBuy, limits("100", "4", "0"))

	assert.Equal(t, fx(4), plan.FilledVolume)
	assert.True(t, plan.AvgPrice.Equal(decimal.NewFromInt(fx(100.5))))
	assert.False(t, plan.Eligible)
	assert.Equal(t, domain.ReasonPriceLimit, plan.Reason)
}

func TestEvaluateNoLiquidity(t *testing.T) {
	b := book.New(sym)
	require.NoError(t, b.ReplaceVenue("venuex", 1, []domain.PriceLevel{level("venuex", domain.SideBid, 99, 5)}))

	plan := Evaluate(b.Snapshot(), domain.TradeBuy, limits("101", "4", "0"))

	assert.False(t, plan.Eligible)
	assert.Equal(t, int64(0), plan.FilledVolume)
	assert.Empty(t, plan.Fills)
	assert.Equal(t, domain.ReasonNoLiquidity, plan.Reason)
	assert.ErrorIs(t, plan.Err(), domain.ErrNoLiquidity)
}

func TestEvaluateSellConsumesBidsDescending(t *testing.T) {
	b := book.New(sym)
	require.NoError(t, b.ReplaceVenue("a", 1, []domain.PriceLevel{
		level("a", domain.SideBid, 98, 1),
		level("a", domain.SideBid, 99, 1),
		level("a", domain.SideAsk, 150, 10),
	}))
	require.NoError(t, b.ReplaceVenue("b", 1, []domain.PriceLevel{level("b", domain.SideBid, 97, 5)}))

	plan := Evaluate(b.Snapshot(), domain.TradeSell, limits("98", "3", "0"))
	assert.Equal(t, []domain.Fill{
		{Venue: "a", Price: fx(99), Volume: fx(1)},
		{Venue: "a", Price: fx(98), Volume: fx(1)},
		{Venue: "b", Price: fx(97), Volume: fx(1)},
	}, plan.Fills)
	assert.True(t, plan.Eligible)

	plan = Evaluate(b.Snapshot(), domain.TradeSell, limits("98.5", "3", "0"))
	assert.False(t, plan.Eligible)
	assert.Equal(t, domain.ReasonPriceLimit, plan.Reason)
}

func TestEvaluateTieBreakByVenueThenPosition(t *testing.T) {
	snap := book.Snapshot{Symbol: sym, Levels: []domain.PriceLevel{
		level("b", domain.SideAsk, 100, 1),
		level("a", domain.SideAsk, 100, 1),
		{Price: fx(100), Volume: fx(2), Symbol: sym, Venue: "a", Side: domain.SideAsk},
	}}

	plan := Evaluate(snap, domain.TradeBuy, limits("100", "10", "0"))
	require.Len(t, plan.Fills, 3)
	assert.Equal(t, domain.Fill{Venue: "a", Price: fx(100), Volume: fx(1)}, plan.Fills[0])
	assert.Equal(t, domain.Fill{Venue: "a", Price: fx(100), Volume: fx(2)}, plan.Fills[1])
	assert.Equal(t, domain.Fill{Venue: "b", Price: fx(100), Volume: fx(1)}, plan.Fills[2])
	assert.True(t, plan.Eligible)
}

func TestEvaluateDeterministic(t *testing.T) {
	snap := exampleBook(t)
	lim := limits("100.7", "3.3", "0")
	assert.Equal(t, Evaluate(snap, domain.TradeBuy, lim), Evaluate(snap, domain.TradeBuy, lim))
}

func TestEvaluateMonotonicCap(t *testing.T) {
	snap := exampleBook(t)
	prev := int64(-1)
	for _, volumeCap := range []string{"0.5", "1", "2", "2.5", "4", "5", "6", "100"} {
		lim := limits("1000", volumeCap, "0")
		plan := Evaluate(snap, domain.TradeBuy, lim)
		assert.LessOrEqual(t, plan.FilledVolume, lim.Volume, "cap %s", volumeCap)
		assert.GreaterOrEqual(t, plan.FilledVolume, prev, "cap %s", volumeCap)
		prev = plan.FilledVolume
	}
	assert.Equal(t, fx(5), prev)
}

func TestEvaluateMinimumVolume(t *testing.T) {
	plan := Evaluate(exampleBook(t), domain.TradeBuy, limits("1000", "10", "6"))
	assert.Equal(t, fx(5), plan.FilledVolume)
	assert.False(t, plan.Eligible)
	assert.Equal(t, domain.ReasonBelowMinimum, plan.Reason)
}

func TestEvaluateInvalidLimits(t *testing.T) {
	snap := exampleBook(t)
	for name, lim := range map[string]Limits{
		"zero volume":   limits("101", "0", "0"),
		"zero price":    limits("0", "4", "0"),
		"negative min":  {AvgPrice: decimal.NewFromInt(1), Volume: 1, MinVolume: -1},
		"negative caps": {AvgPrice: decimal.NewFromInt(-1), Volume: -1},
	} {
		t.Run(name, func(t *testing.T) {
			plan := Evaluate(snap, domain.TradeBuy, lim)
			assert.False(t, plan.Eligible)
			assert.Equal(t, domain.ReasonInvalidLimits, plan.Reason)
			assert.Empty(t, plan.Fills)
		})
	}
}

func TestEvaluateSellFloorZeroAcceptsAnyPrice(t *testing.T) {
	b := book.New(sym)
	require.NoError(t, b.ReplaceVenue("a", 1, []domain.PriceLevel{level("a", domain.SideBid, 0.01, 2)}))

	plan := Evaluate(b.Snapshot(), domain.TradeSell, limits("0", "1", "0"))
	assert.True(t, plan.Eligible)
	assert.Equal(t, domain.ReasonEligible, plan.Reason)

	plan = Evaluate(b.Snapshot(), domain.TradeSell, limits("-1", "1", "0"))
	assert.Equal(t, domain.ReasonInvalidLimits, plan.Reason)
}

func TestEvaluateExactLimitIsEligible(t *testing.T) {
	plan := Evaluate(exampleBook(t), domain.TradeBuy, limits("100.5", "4", "0"))
	assert.True(t, plan.Eligible)
}
