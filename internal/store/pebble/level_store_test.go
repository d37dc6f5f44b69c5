package pebble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

func lvl(symbol string, venue domain.Venue, price int64, observedAt int64) domain.PriceLevel {
	return domain.PriceLevel{Price: price, Volume: 1, Symbol: symbol, Venue: venue, Side: domain.SideAsk, ObservedAt: observedAt}
}

func openStore(t *testing.T, dir string) *LevelStore {
	t.Helper()
	s, err := Open(dir)
	require.NoError(t, err)
	return s
}

func TestAppendAndReadAllOrdered(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	defer s.Close()

	require.NoError(t, s.AppendLevels(ctx, []domain.PriceLevel{lvl("BTC/USD", "y", 3, 2), lvl("BTC/USD", "y", 1, 2)}))
	require.NoError(t, s.AppendLevels(ctx, []domain.PriceLevel{lvl("BTC/USD", "x", 9, 1)}))
	require.NoError(t, s.AppendLevels(ctx, []domain.PriceLevel{lvl("ETH/USD", "x", 5, 1)}))

	got, err := s.ReadAll(ctx, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{
		lvl("BTC/USD", "x", 9, 1),
		lvl("BTC/USD", "y", 3, 2),
		lvl("BTC/USD", "y", 1, 2),
	}, got)

	last, err := s.LastObservedAt(ctx, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	last, err = s.LastObservedAt(ctx, "SOL/USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestReplaceLevelsOnlyTouchesSymbol(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	defer s.Close()

	require.NoError(t, s.AppendLevels(ctx, []domain.PriceLevel{lvl("BTC/USD", "x", 1, 1), lvl("ETH/USD", "x", 2, 1)}))
	require.NoError(t, s.ReplaceLevels(ctx, "BTC/USD", []domain.PriceLevel{lvl("BTC/USD", "z", 7, 4)}))

	btc, err := s.ReadAll(ctx, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{lvl("BTC/USD", "z", 7, 4)}, btc)

	eth, err := s.ReadAll(ctx, "ETH/USD")
	require.NoError(t, err)
	assert.Len(t, eth, 1)

	require.NoError(t, s.ReplaceLevels(ctx, "BTC/USD", nil))
	btc, err = s.ReadAll(ctx, "BTC/USD")
	require.NoError(t, err)
	assert.Empty(t, btc)
}

func TestListAndDeleteBefore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	defer s.Close()

	for c := int64(1); c <= 5; c++ {
		require.NoError(t, s.AppendLevels(ctx, []domain.PriceLevel{lvl("BTC/USD", "x", c, c)}))
	}

	old, err := s.ListBefore(ctx, "BTC/USD", 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{lvl("BTC/USD", "x", 1, 1), lvl("BTC/USD", "x", 2, 2)}, old)

	n, err := s.DeleteBefore(ctx, "BTC/USD", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rest, err := s.ReadAll(ctx, "BTC/USD")
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, int64(3), rest[0].ObservedAt)

	n, err = s.DeleteBefore(ctx, "BTC/USD", 3)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	require.NoError(t, s.AppendLevels(ctx, []domain.PriceLevel{lvl("BTC/USD", "x", 1, 1), lvl("BTC/USD", "x", 2, 1)}))
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()
	require.NoError(t, s.AppendLevels(ctx, []domain.PriceLevel{lvl("BTC/USD", "x", 3, 1)}))

	got, err := s.ReadAll(ctx, "BTC/USD")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].Price, got[1].Price, got[2].Price})
}
