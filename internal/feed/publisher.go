// Package feed fans routing decisions out to the configured sinks: the log,
// Redis, Kafka, chat alerts, the WebSocket hub and the in-memory view
// served by the HTTP API.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// Sink receives decisions.
type Sink interface {
	Name() string
	Publish(ctx context.Context, d domain.Decision) error
}

// Publisher delivers each decision to every sink in registration order. A
// failing sink does not stop delivery to the others.
type Publisher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewPublisher creates a Publisher over sinks.
func NewPublisher(logger *slog.Logger, sinks ...Sink) *Publisher {
	return &Publisher{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Add registers another sink. It must not be called once publishing has
// started.
func (p *Publisher) Add(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Sinks returns the registered sink names.
func (p *Publisher) Sinks() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name()
	}
	return names
}

// Publish implements router.DecisionSink.
func (p *Publisher) Publish(ctx context.Context, d domain.Decision) error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Publish(ctx, d); err != nil {
			p.logger.WarnContext(ctx, "sink failed",
				slog.String("sink", s.Name()),
				slog.String("decision_id", d.ID.String()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
