package dydx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

const (
	// DefaultWSURL is the public mainnet indexer websocket.
	DefaultWSURL = "wss://indexer.dydx.trade/v4/ws"

	handshakeTimeout = 15 * time.Second

	// readWait is how long the connection may stay silent (no data, no
	// ping) before it is considered dead.
	readWait = 60 * time.Second

	writeWait = 10 * time.Second

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Adapter streams one market's book and serves copies of it. It implements
// domain.VenueAdapter and domain.VenueRunner; FetchOrderBook fails with
// domain.ErrNotSynced until Run has received the first snapshot.
type Adapter struct {
	name   domain.Venue
	wsURL  string
	market string
	depth  int
	book   *Book
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewAdapter creates an Adapter for market (e.g. "BTC-USD"). An empty wsURL
// selects DefaultWSURL.
func NewAdapter(name, wsURL, market string, depth int, logger *slog.Logger) *Adapter {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Adapter{
		name:   domain.Venue(name),
		wsURL:  wsURL,
		market: market,
		depth:  depth,
		book:   NewBook(),
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger.With(slog.String("component", "dydx"), slog.String("venue", name)),
	}
}

// Name implements domain.VenueAdapter.
func (a *Adapter) Name() domain.Venue { return a.name }

// FetchOrderBook implements domain.VenueAdapter by copying the local book.
func (a *Adapter) FetchOrderBook(_ context.Context, _ string) (*domain.RawSnapshot, error) {
	snap, err := a.book.Snapshot(a.depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrVenue, a.name, err)
	}
	return snap, nil
}

// Run keeps the subscription alive until ctx is cancelled, reconnecting
// with exponential backoff. The local book is dropped on every disconnect
// and rebuilt from the next subscribe snapshot.
func (a *Adapter) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		synced, err := a.session(ctx)
		a.book.Reset()
		if ctx.Err() != nil {
			return nil
		}
		if synced {
			delay = reconnectDelay
		}
		a.logger.WarnContext(ctx, "websocket session ended, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session runs one connection. It reports whether the book got synced.
func (a *Adapter) session(ctx context.Context) (bool, error) {
	conn, _, err := a.dialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dydx: connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = conn.Close()
	})
	defer stop()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	sub, _ := json.Marshal(map[string]any{
		"type":    "subscribe",
		"channel": "v4_orderbook",
		"id":      a.market,
		"batched": false,
	})
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return false, fmt.Errorf("dydx: subscribe %s: %w", a.market, err)
	}
	a.logger.InfoContext(ctx, "subscribed", slog.String("market", a.market))

	var lastID int64
	synced := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return synced, fmt.Errorf("dydx: read: %w: %w", domain.ErrWSDisconnect, err)
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			return synced, fmt.Errorf("dydx: decode message: %w", err)
		}
		if lastID != 0 && msg.MessageID != lastID+1 {
			return synced, fmt.Errorf("dydx: message gap %d -> %d: %w", lastID, msg.MessageID, domain.ErrNotSynced)
		}
		lastID = msg.MessageID

		if err := a.handle(msg); err != nil {
			return synced, err
		}
		if !synced && a.book.Synced() {
			synced = true
			a.logger.InfoContext(ctx, "book synced")
		}
	}
}

func (a *Adapter) handle(msg message) error {
	switch msg.Type {
	case "connected", "unsubscribed":
		return nil
	case "subscribed":
		return a.book.ApplySnapshot(msg.Contents)
	case "channel_data":
		return a.book.ApplyUpdate(msg.Contents)
	case "channel_batch_data":
		var batch []json.RawMessage
		if err := json.Unmarshal(msg.Contents, &batch); err != nil {
			return fmt.Errorf("dydx: decode batch: %w", err)
		}
		for _, c := range batch {
			if err := a.book.ApplyUpdate(c); err != nil {
				return err
			}
		}
		return nil
	case "error":
		return fmt.Errorf("dydx: server error: %s", msg.Message)
	default:
		return fmt.Errorf("dydx: unexpected message type %q", msg.Type)
	}
}
