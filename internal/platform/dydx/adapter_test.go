package dydx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

const snapshotContents = `{
  "bids": [{"price": "64990", "size": "1.5"}, {"price": "65000", "size": "0.2"}],
  "asks": [{"price": "65020", "size": "3"}, {"price": "65010.0", "size": "1"}]
}`

func TestBookSnapshotAndDeltas(t *testing.T) {
	b := NewBook()
	_, err := b.Snapshot(0)
	require.ErrorIs(t, err, domain.ErrNotSynced)
	require.ErrorIs(t, b.ApplyUpdate([]byte(`{"bids":[["1","1"]]}`)), domain.ErrNotSynced)

	require.NoError(t, b.ApplySnapshot([]byte(snapshotContents)))
	require.NoError(t, b.ApplyUpdate([]byte(`{"asks":[["65010","0"],["65015","2"]],"bids":[["65000.00","0.7"]]}`)))

	snap, err := b.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, []domain.RawEntry{
		{Price: "65015", Volume: "2"},
		{Price: "65020", Volume: "3"},
	}, snap.Asks)
	assert.Equal(t, []domain.RawEntry{
		{Price: "65000", Volume: "0.7"},
		{Price: "64990", Volume: "1.5"},
	}, snap.Bids)

	top, err := b.Snapshot(1)
	require.NoError(t, err)
	assert.Len(t, top.Asks, 1)
	assert.Len(t, top.Bids, 1)

	b.Reset()
	assert.False(t, b.Synced())
}

func TestBookRejectsBadNumbers(t *testing.T) {
	b := NewBook()
	err := b.ApplySnapshot([]byte(`{"bids":[{"price":"abc","size":"1"}]}`))
	require.ErrorIs(t, err, domain.ErrMalformedSnapshot)
	assert.False(t, b.Synced())

	err = b.ApplySnapshot([]byte(`{"asks":[{"price":"1e300000000","size":"1"}]}`))
	require.ErrorIs(t, err, domain.ErrMalformedSnapshot)

	require.NoError(t, b.ApplySnapshot([]byte(snapshotContents)))
	require.ErrorIs(t, b.ApplyUpdate([]byte(`{"bids":[["65000","1e-300000000"]]}`)), domain.ErrMalformedSnapshot)
}

func TestRunStreamsBook(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connected","message_id":0}`))
		_, sub, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(sub), `"v4_orderbook"`)
		assert.Contains(t, string(sub), `"BTC-USD"`)

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"subscribed","message_id":1,"channel":"v4_orderbook","id":"BTC-USD","contents":`+snapshotContents+`}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"channel_data","message_id":2,"channel":"v4_orderbook","id":"BTC-USD","contents":{"asks":[["65010","0"]]}}`))

		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	a := NewAdapter("dydx", wsURL, "BTC-USD", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := a.FetchOrderBook(context.Background(), "BTC/USD")
	require.True(t, errors.Is(err, domain.ErrVenue))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, err := a.FetchOrderBook(context.Background(), "BTC/USD")
		return err == nil && len(snap.Asks) == 1
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := a.FetchOrderBook(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, []domain.RawEntry{{Price: "65020", Volume: "3"}}, snap.Asks)
	assert.Len(t, snap.Bids, 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
