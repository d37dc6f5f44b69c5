package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each decision as one JSON message keyed by symbol and
// side, so a partition sees one side's decisions in cycle order.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaSink creates a synchronous producer for topic that waits for all
// in-sync replicas.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// NewKafkaSinkWithWriter creates a KafkaSink over an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, d domain.Decision) error {
	value, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("feed: marshal decision: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(d.Symbol + ":" + string(d.Plan.Side)),
		Value: value,
		Time:  d.CreatedAt,
		Headers: []kafka.Header{
			{Key: "decision_id", Value: []byte(d.ID.String())},
			{Key: "eligible", Value: []byte(fmt.Sprint(d.Plan.Eligible))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("feed: kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
