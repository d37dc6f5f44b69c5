package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/book"
	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/feed"
	"github.com/alanyoungcy/orderrouter/internal/server/handler"
)

type fixedCycle int64

func (c fixedCycle) Cycle() int64 { return int64(c) }

type fakeTail struct {
	msgs []domain.StreamMessage
	err  error
}

func (f *fakeTail) StreamTail(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs[max(len(f.msgs)-count, 0):], nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testBook(t *testing.T) *book.Book {
	t.Helper()
	b := book.New("BTC/USD")
	lvl := func(v domain.Venue, side domain.Side, price, vol int64) domain.PriceLevel {
		return domain.PriceLevel{Price: price, Volume: vol, Symbol: "BTC/USD", Venue: v, Side: side, ObservedAt: 3}
	}
	require.NoError(t, b.ReplaceVenue("x", 3, []domain.PriceLevel{
		lvl("x", domain.SideAsk, 10_050_000, 200_000),
		lvl("x", domain.SideBid, 9_990_000, 100_000),
	}))
	require.NoError(t, b.ReplaceVenue("y", 3, []domain.PriceLevel{
		lvl("y", domain.SideAsk, 10_010_000, 50_000),
	}))
	return b
}

func decision(side domain.TradeSide, cycle int64) domain.Decision {
	return domain.Decision{
		ID:     uuid.New(),
		Symbol: "BTC/USD",
		Cycle:  cycle,
		Plan:   domain.ExecutionPlan{Side: side, Reason: domain.ReasonNoLiquidity},
	}
}

func newTestHandler(t *testing.T, tail handler.StreamTailer) (http.Handler, *feed.Latest) {
	t.Helper()
	latest := feed.NewLatest(10)
	dh := handler.NewDecisionHandler(latest, discard())
	if tail != nil {
		dh = dh.WithStream(tail, feed.StreamName("BTC/USD"))
	}
	h := NewHandler(Config{CORSOrigins: []string{"http://localhost:3000"}}, Handlers{
		Health:    handler.NewHealthHandler("BTC/USD", fixedCycle(7), time.Now()),
		Book:      handler.NewBookHandler(testBook(t), 100_000),
		Decisions: dh,
	}, discard())
	return h, latest
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec, body := get(t, h, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "BTC/USD", body["symbol"])
	assert.EqualValues(t, 7, body["cycle"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthReportsDependencyChecks(t *testing.T) {
	hh := handler.NewHealthHandler("BTC/USD", nil, time.Now()).
		WithCheck("redis", func(context.Context) error { return nil }).
		WithCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	h := NewHandler(Config{}, Handlers{Health: hh}, discard())

	rec, body := get(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok", "postgres": "connection refused"}, body["checks"])
}

func TestBook(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec, body := get(t, h, "/api/book")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100.1", body["best_ask"])
	assert.Equal(t, "99.9", body["best_bid"])
	assert.Len(t, body["levels"], 3)
	assert.Len(t, body["venues"], 2)

	_, body = get(t, h, "/api/book?venue=X&side=ask")
	levels := body["levels"].([]any)
	require.Len(t, levels, 1)
	assert.Equal(t, "100.5", levels[0].(map[string]any)["price"])
	assert.Equal(t, "2", levels[0].(map[string]any)["volume"])

	rec, _ = get(t, h, "/api/book?side=up")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecisionsLatest(t *testing.T) {
	h, latest := newTestHandler(t, nil)
	rec, _ := get(t, h, "/api/decisions/latest?side=buy")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, latest.Publish(context.Background(), decision(domain.TradeBuy, 1)))
	require.NoError(t, latest.Publish(context.Background(), decision(domain.TradeBuy, 2)))

	rec, body := get(t, h, "/api/decisions/latest?side=buy")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["cycle"])

	_, body = get(t, h, "/api/decisions/latest")
	assert.Contains(t, body, "buy")
	assert.NotContains(t, body, "sell")

	rec, _ = get(t, h, "/api/decisions/latest?side=hold")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecisionsRecentFromMemory(t *testing.T) {
	h, latest := newTestHandler(t, nil)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, latest.Publish(context.Background(), decision(domain.TradeSell, i)))
	}
	_, body := get(t, h, "/api/decisions/recent?limit=2")
	assert.Equal(t, "memory", body["source"])
	ds := body["decisions"].([]any)
	require.Len(t, ds, 2)
	assert.EqualValues(t, 3, ds[0].(map[string]any)["cycle"])
}

func TestDecisionsRecentFromStream(t *testing.T) {
	var msgs []domain.StreamMessage
	for i := int64(1); i <= 3; i++ {
		payload, err := json.Marshal(decision(domain.TradeBuy, i))
		require.NoError(t, err)
		msgs = append(msgs, domain.StreamMessage{ID: "1-" + string(rune('0'+i)), Payload: payload})
	}
	msgs = append(msgs, domain.StreamMessage{ID: "1-9", Payload: []byte("junk")})

	h, _ := newTestHandler(t, &fakeTail{msgs: msgs})
	_, body := get(t, h, "/api/decisions/recent")
	assert.Equal(t, "stream", body["source"])
	ds := body["decisions"].([]any)
	require.Len(t, ds, 3)
	assert.EqualValues(t, 3, ds[0].(map[string]any)["cycle"])
	assert.EqualValues(t, 1, ds[2].(map[string]any)["cycle"])
}

func TestDecisionsRecentStreamFailureFallsBack(t *testing.T) {
	h, latest := newTestHandler(t, &fakeTail{err: errors.New("redis down")})
	require.NoError(t, latest.Publish(context.Background(), decision(domain.TradeBuy, 5)))
	_, body := get(t, h, "/api/decisions/recent")
	assert.Equal(t, "memory", body["source"])
	assert.Len(t, body["decisions"], 1)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/book", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}
