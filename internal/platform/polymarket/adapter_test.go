package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

const bookJSON = `{
  "market": "0xabc",
  "asset_id": "123",
  "bids": [{"price": "0.48", "size": "30"}, {"price": "0.49", "size": "10"}],
  "asks": [{"price": "0.53", "size": "5"}, {"price": "0.52", "size": "12.5"}]
}`

func TestFetchOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "123", r.URL.Query().Get("token_id"))
		_, _ = w.Write([]byte(bookJSON))
	}))
	defer srv.Close()

	a := NewAdapter("poly", "123", 0, NewClobClient(srv.URL))
	assert.Equal(t, domain.Venue("poly"), a.Name())

	snap, err := a.FetchOrderBook(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, []domain.RawEntry{{Price: "0.48", Volume: "30"}, {Price: "0.49", Volume: "10"}}, snap.Bids)
	assert.Equal(t, []domain.RawEntry{{Price: "0.53", Volume: "5"}, {Price: "0.52", Volume: "12.5"}}, snap.Asks)
}

func TestFetchOrderBookDepthKeepsBestLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(bookJSON))
	}))
	defer srv.Close()

	snap, err := NewAdapter("poly", "123", 1, NewClobClient(srv.URL)).FetchOrderBook(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []domain.RawEntry{{Price: "0.49", Volume: "10"}}, snap.Bids)
	assert.Equal(t, []domain.RawEntry{{Price: "0.52", Volume: "12.5"}}, snap.Asks)
}

func TestFetchOrderBookErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token_id") == "missing" {
			http.Error(w, `{"error":"No orderbook exists"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"bids": "nope"}`))
	}))
	defer srv.Close()

	c := NewClobClient(srv.URL)
	_, err := NewAdapter("poly", "missing", 0, c).FetchOrderBook(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrVenue))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = NewAdapter("poly", "broken", 0, c).FetchOrderBook(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrMalformedSnapshot))
}
