package ws

import (
	"context"
	"encoding/json"
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
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(Config{Symbol: "BTC/USD", Cycle: func() int64 { return 12 }},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubSendsStatusAndBroadcasts(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	status := readJSON(t, conn)
	assert.Equal(t, "router_status", status["type"])
	payload := status["payload"].(map[string]any)
	assert.Equal(t, "BTC/USD", payload["symbol"])
	assert.EqualValues(t, 12, payload["cycle"])

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast("other", []byte(`{"type":"ignored"}`))
	hub.Broadcast("decisions", []byte(`{"type":"decision"}`))
	assert.Equal(t, "decision", readJSON(t, conn)["type"])
}

func TestHubSubscriptions(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	readJSON(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "subscribe", "channels": []string{"book:*"}}))
	require.NoError(t, conn.WriteJSON(map[string]any{"action": "unsubscribe", "channels": []string{"decisions"}}))
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	// the subscription messages are processed asynchronously
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return c.isSubscribed("book:kalshi") && !c.isSubscribed("decisions")
		}
		return false
	}, time.Second, 5*time.Millisecond)

	hub.Broadcast("decisions", []byte(`{"type":"decision"}`))
	hub.Broadcast("book:kalshi", []byte(`{"type":"book"}`))
	assert.Equal(t, "book", readJSON(t, conn)["type"])
}
