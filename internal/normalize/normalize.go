// Package normalize converts venue-native order-book snapshots into
// fixed-point price levels.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// DefaultPriceScale is the fixed-point multiplier used when none is
// configured (five decimal places).
const DefaultPriceScale int64 = 100_000

// Exponent bounds for venue decimals. Anything outside cannot be a price
// or volume at any supported scale, and arithmetic on it is unbounded.
const (
	maxExponent = 18
	minExponent = -30
)

var maxFixed = decimal.NewFromInt(math.MaxInt64)

// ParseDecimal parses a venue decimal string. It rejects exponents outside
// [-30, 18] with domain.ErrMalformedSnapshot before any arithmetic is done.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, domain.ErrMalformedSnapshot)
	}
	if e := d.Exponent(); e > maxExponent || e < minExponent {
		return decimal.Zero, fmt.Errorf("decimal exponent %d out of range: %w", e, domain.ErrMalformedSnapshot)
	}
	return d, nil
}

// Issue describes one entry that was dropped during normalization.
type Issue struct {
	Side  domain.Side
	Index int
	Err   error
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s[%d]: %v", strings.ToLower(string(i.Side)), i.Index, i.Err)
}

func (i Issue) Unwrap() error { return i.Err }

// Result is the outcome of normalizing one snapshot. Dropped counts entries
// rejected as malformed; zero-volume entries are removals and are not
// counted.
type Result struct {
	Levels  []domain.PriceLevel
	Dropped int
	Issues  []Issue
}

// Normalizer holds the fixed-point scale. It has no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	scale decimal.Decimal
}

// New creates a Normalizer for the given price scale. A non-positive scale
// falls back to DefaultPriceScale.
func New(priceScale int64) *Normalizer {
	if priceScale <= 0 {
		priceScale = DefaultPriceScale
	}
	return &Normalizer{scale: decimal.NewFromInt(priceScale)}
}

// Scale returns the configured fixed-point multiplier.
func (n *Normalizer) Scale() int64 {
	return n.scale.IntPart()
}

// Normalize converts raw into price levels tagged with venue, symbol and
// observedAt. Entries with a missing, unparseable, negative or overflowing
// price or volume, or a price that rounds to zero, are dropped and reported
// in the result. The whole snapshot fails with domain.ErrMalformedSnapshot
// when raw is nil or when it had entries and none of them survived; the
// partial result is still returned so the caller can log the issues.
func (n *Normalizer) Normalize(raw *domain.RawSnapshot, venue domain.Venue, symbol string, observedAt int64) (Result, error) {
	if raw == nil {
		return Result{}, fmt.Errorf("normalize: %s: nil snapshot: %w", venue, domain.ErrMalformedSnapshot)
	}
	symbol = domain.NormalizeSymbol(symbol)

	res := Result{Levels: make([]domain.PriceLevel, 0, len(raw.Asks)+len(raw.Bids))}
	n.side(&res, raw.Asks, domain.SideAsk, venue, symbol, observedAt)
	n.side(&res, raw.Bids, domain.SideBid, venue, symbol, observedAt)

	if len(res.Levels) == 0 && res.Dropped > 0 {
		return res, fmt.Errorf("normalize: %s: all %d entries rejected, first: %w",
			venue, res.Dropped, res.Issues[0])
	}
	return res, nil
}

func (n *Normalizer) side(res *Result, entries []domain.RawEntry, side domain.Side, venue domain.Venue, symbol string, observedAt int64) {
	for i, e := range entries {
		price, err := n.fixed(e.Price, "price")
		if err == nil && price == 0 {
			err = fmt.Errorf("price rounds to zero: %w", domain.ErrMalformedSnapshot)
		}
		if err != nil {
			res.Dropped++
			res.Issues = append(res.Issues, Issue{Side: side, Index: i, Err: err})
			continue
		}
		volume, err := n.fixed(e.Volume, "volume")
		if err != nil {
			res.Dropped++
			res.Issues = append(res.Issues, Issue{Side: side, Index: i, Err: err})
			continue
		}
		if volume == 0 {
			continue
		}
		res.Levels = append(res.Levels, domain.PriceLevel{
			Price:      price,
			Volume:     volume,
			Symbol:     symbol,
			Venue:      venue,
			Side:       side,
			ObservedAt: observedAt,
		})
	}
}

// fixed parses a decimal string and returns round(value * scale).
func (n *Normalizer) fixed(s, field string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing %s: %w", field, domain.ErrMalformedSnapshot)
	}
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative %s %q: %w", field, s, domain.ErrMalformedSnapshot)
	}
	scaled := d.Mul(n.scale).Round(0)
	if scaled.GreaterThan(maxFixed) {
		return 0, fmt.Errorf("%s %q overflows fixed point: %w", field, s, domain.ErrMalformedSnapshot)
	}
	return scaled.IntPart(), nil
}

// Format renders a fixed-point value as a decimal string at the given scale.
func Format(v int64, scale int64) string {
	if scale <= 0 {
		scale = DefaultPriceScale
	}
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(scale)).String()
}

// ToFixed converts a decimal value to fixed point at the given scale,
// rounding half away from zero.
func ToFixed(d decimal.Decimal, scale int64) int64 {
	return d.Mul(decimal.NewFromInt(scale)).Round(0).IntPart()
}
