// Package notify delivers operator alerts to chat channels (Telegram,
// Discord). Alerts are filtered by event type and repeated alerts for the
// same subject are suppressed for a cooldown period.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event types understood by the router.
const (
	EventDecisionEligible = "decision_eligible"
	EventVenueStale       = "venue_stale"
	EventError            = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Alert is one notification. Key identifies its subject for cooldown
// purposes (e.g. the venue name); alerts with an empty key are never
// suppressed.
type Alert struct {
	Event   string
	Key     string
	Title   string
	Message string
}

// Notifier dispatches alerts to every Sender.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time

	logger *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are
// forwarded; an empty list allows all. A zero cooldown disables
// suppression.
func NewNotifier(senders []Sender, events []string, cooldown time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		cooldown: cooldown,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether there is at least one sender.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends a if its event is allowed and its subject is not cooling
// down. It returns an error combining every failed sender.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[a.Event] {
		return nil
	}
	if !n.admit(a) {
		n.logger.DebugContext(ctx, "alert suppressed",
			slog.String("event", a.Event),
			slog.String("key", a.Key),
		)
		return nil
	}
	return n.dispatch(ctx, a.Title, a.Message)
}

// Reset clears the cooldown of one subject, so the next alert about it is
// sent immediately (e.g. once a stale venue has recovered).
func (n *Notifier) Reset(event, key string) {
	n.mu.Lock()
	delete(n.lastSent, event+"\x00"+key)
	n.mu.Unlock()
}

func (n *Notifier) admit(a Alert) bool {
	if a.Key == "" || n.cooldown <= 0 {
		return true
	}
	k := a.Event + "\x00" + a.Key
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[k]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastSent[k] = now
	return true
}

// dispatch sends to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
