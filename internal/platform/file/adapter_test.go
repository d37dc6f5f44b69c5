package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFetchSingleSnapshot(t *testing.T) {
	path := writeFile(t, `{"asks":[{"price":"101.5","volume":"2"}],"bids":[]}`)
	a := NewAdapter("demo", path)
	assert.Equal(t, domain.Venue("demo"), a.Name())

	snap, err := a.FetchOrderBook(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, []domain.RawEntry{{Price: "101.5", Volume: "2"}}, snap.Asks)
	assert.Empty(t, snap.Bids)
}

func TestFetchKeyedBySymbol(t *testing.T) {
	path := writeFile(t, `{"BTC/USD":{"bids":[{"price":"99","volume":"1"}]},"ETH/USD":{"asks":[]}}`)
	a := NewAdapter("demo", path)

	snap, err := a.FetchOrderBook(context.Background(), "btc/usd")
	require.NoError(t, err)
	assert.Equal(t, "99", snap.Bids[0].Price)

	_, err = a.FetchOrderBook(context.Background(), "SOL/USD")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFetchPicksUpEdits(t *testing.T) {
	path := writeFile(t, `{"asks":[{"price":"1","volume":"1"}]}`)
	a := NewAdapter("demo", path)
	_, err := a.FetchOrderBook(context.Background(), "X")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"asks":[{"price":"2","volume":"3"}]}`), 0o600))
	snap, err := a.FetchOrderBook(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "2", snap.Asks[0].Price)
}

func TestFetchErrors(t *testing.T) {
	a := NewAdapter("demo", filepath.Join(t.TempDir(), "missing.json"))
	_, err := a.FetchOrderBook(context.Background(), "X")
	assert.True(t, errors.Is(err, domain.ErrVenue))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	a = NewAdapter("demo", writeFile(t, `not json`))
	_, err = a.FetchOrderBook(context.Background(), "X")
	assert.True(t, errors.Is(err, domain.ErrMalformedSnapshot))
}
