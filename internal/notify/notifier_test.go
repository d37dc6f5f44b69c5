package notify

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventVenueStale}, 0, discard())

	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventDecisionEligible, Title: "a"}))
	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventVenueStale, Title: "b"}))
	assert.Equal(t, []string{"b"}, s.titles)
}

func TestNotifyCooldownPerKey(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, time.Minute, discard())
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, Alert{Event: EventVenueStale, Key: "x", Title: "x1"}))
	require.NoError(t, n.Notify(ctx, Alert{Event: EventVenueStale, Key: "x", Title: "x2"}))
	require.NoError(t, n.Notify(ctx, Alert{Event: EventVenueStale, Key: "y", Title: "y1"}))

	now = now.Add(2 * time.Minute)
	require.NoError(t, n.Notify(ctx, Alert{Event: EventVenueStale, Key: "x", Title: "x3"}))

	n.Reset(EventVenueStale, "x")
	require.NoError(t, n.Notify(ctx, Alert{Event: EventVenueStale, Key: "x", Title: "x4"}))

	assert.Equal(t, []string{"x1", "y1", "x3", "x4"}, s.titles)
}

func TestNotifyCollectsSenderErrors(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("down")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, discard())

	err := n.Notify(context.Background(), Alert{Event: EventError, Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestTelegramSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "venue_stale", "kalshi_main timed out"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "venue_stale\nkalshi_main timed out", got["text"])
}

func TestDiscordSendReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Embeds []discordEmbed `json:"embeds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if len(payload.Embeds) == 1 && payload.Embeds[0].Title == "ok" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "bad embed", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "ok", "body"))
	err := s.Send(context.Background(), "nope", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
