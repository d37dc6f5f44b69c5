package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/normalize"
	"github.com/alanyoungcy/orderrouter/internal/notify"
)

// ChannelName is the Redis pub/sub channel decisions for symbol go to.
func ChannelName(symbol string) string {
	return "decisions:" + domain.NormalizeSymbol(symbol)
}

// StreamName is the Redis stream that keeps recent decisions for symbol.
func StreamName(symbol string) string {
	return "stream:decisions:" + domain.NormalizeSymbol(symbol)
}

// HubChannel is the WebSocket hub channel decisions are broadcast on.
const HubChannel = "decisions"

// LogSink writes one structured log line per decision.
type LogSink struct {
	logger *slog.Logger
	scale  int64
}

// NewLogSink creates a LogSink. scale is the fixed-point price scale used
// to print prices in instrument units.
func NewLogSink(logger *slog.Logger, scale int64) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "decisions")), scale: scale}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, d domain.Decision) error {
	s.logger.InfoContext(ctx, "decision",
		slog.String("id", d.ID.String()),
		slog.String("symbol", d.Symbol),
		slog.Int64("cycle", d.Cycle),
		slog.Uint64("book_version", d.BookVersion),
		slog.String("side", string(d.Plan.Side)),
		slog.Bool("eligible", d.Plan.Eligible),
		slog.String("reason", string(d.Plan.Reason)),
		slog.String("filled", normalize.Format(d.Plan.FilledVolume, s.scale)),
		slog.String("avg_price", humanPrice(d.Plan.AvgPrice, s.scale)),
		slog.Int("fills", len(d.Plan.Fills)),
		slog.Bool("stale_venue", d.HasStaleVenue()),
		slog.Bool("replayed", d.Replayed),
		slog.Any("warnings", d.Warnings),
	)
	return nil
}

// Latest keeps the newest decision per side and a bounded history in
// memory for the HTTP API.
type Latest struct {
	mu     sync.RWMutex
	bySide map[domain.TradeSide]domain.Decision
	recent []domain.Decision
	limit  int
}

// NewLatest creates a Latest holding at most limit recent decisions.
func NewLatest(limit int) *Latest {
	if limit <= 0 {
		limit = 100
	}
	return &Latest{bySide: make(map[domain.TradeSide]domain.Decision), limit: limit}
}

func (l *Latest) Name() string { return "latest" }

func (l *Latest) Publish(_ context.Context, d domain.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bySide[d.Plan.Side] = d
	l.recent = append(l.recent, d)
	if len(l.recent) > l.limit {
		l.recent = append(l.recent[:0:0], l.recent[len(l.recent)-l.limit:]...)
	}
	return nil
}

// Get returns the newest decision for side.
func (l *Latest) Get(side domain.TradeSide) (domain.Decision, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.bySide[side]
	return d, ok
}

// Recent returns up to n of the newest decisions, newest first.
func (l *Latest) Recent(n int) []domain.Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]domain.Decision, 0, n)
	for i := len(l.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.recent[i])
	}
	return out
}

// BusSink publishes decisions as JSON on the Redis channel and appends them
// to the capped Redis stream of their symbol.
type BusSink struct {
	bus domain.SignalBus
}

// NewBusSink creates a BusSink.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Name() string { return "redis" }

func (s *BusSink) Publish(ctx context.Context, d domain.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("feed: marshal decision: %w", err)
	}
	if err := s.bus.Publish(ctx, ChannelName(d.Symbol), payload); err != nil {
		return err
	}
	return s.bus.StreamAppend(ctx, StreamName(d.Symbol), payload)
}

// Broadcaster pushes a payload to WebSocket clients subscribed to channel.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// HubSink forwards decisions to the in-process WebSocket hub.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a HubSink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "ws" }

func (s *HubSink) Publish(_ context.Context, d domain.Decision) error {
	payload, err := json.Marshal(map[string]any{"type": "decision", "payload": d})
	if err != nil {
		return fmt.Errorf("feed: marshal decision: %w", err)
	}
	s.hub.Broadcast(HubChannel, payload)
	return nil
}

// Alerter is the part of notify.Notifier the alert sink uses.
type Alerter interface {
	Notify(ctx context.Context, a notify.Alert) error
	Reset(event, key string)
}

// AlertSink raises chat alerts for eligible decisions and stale venues.
// Replayed decisions never alert.
type AlertSink struct {
	alerter Alerter
	scale   int64
}

// NewAlertSink creates an AlertSink.
func NewAlertSink(alerter Alerter, scale int64) *AlertSink {
	return &AlertSink{alerter: alerter, scale: scale}
}

func (s *AlertSink) Name() string { return "alerts" }

func (s *AlertSink) Publish(ctx context.Context, d domain.Decision) error {
	if d.Replayed {
		return nil
	}
	var errs []string
	for _, p := range d.Provenance {
		if p.Status != domain.VenueStale {
			s.alerter.Reset(notify.EventVenueStale, string(p.Venue))
			continue
		}
		err := s.alerter.Notify(ctx, notify.Alert{
			Event:   notify.EventVenueStale,
			Key:     string(p.Venue),
			Title:   fmt.Sprintf("%s: venue %s stale", d.Symbol, p.Venue),
			Message: fmt.Sprintf("cycle %d, last good cycle %d: %s", d.Cycle, p.ObservedAt, p.Error),
		})
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	key := d.Symbol + ":" + string(d.Plan.Side)
	if !d.Plan.Eligible {
		s.alerter.Reset(notify.EventDecisionEligible, key)
	} else {
		err := s.alerter.Notify(ctx, notify.Alert{
			Event:   notify.EventDecisionEligible,
			Key:     key,
			Title:   fmt.Sprintf("%s: %s eligible", d.Symbol, d.Plan.Side),
			Message: s.describe(d),
		})
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("feed: alerts: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *AlertSink) describe(d domain.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "filled %s @ avg %s (cycle %d)\n",
		normalize.Format(d.Plan.FilledVolume, s.scale), humanPrice(d.Plan.AvgPrice, s.scale), d.Cycle)
	for _, f := range d.Plan.Fills {
		fmt.Fprintf(&b, "  %s %s @ %s\n", f.Venue,
			normalize.Format(f.Volume, s.scale), normalize.Format(f.Price, s.scale))
	}
	return strings.TrimRight(b.String(), "\n")
}

// humanPrice converts a fixed-point average price to instrument units.
func humanPrice(avg decimal.Decimal, scale int64) string {
	if scale <= 0 {
		return avg.String()
	}
	return avg.Div(decimal.NewFromInt(scale)).String()
}
