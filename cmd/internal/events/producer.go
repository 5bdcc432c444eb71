package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes auth domain events.
type Producer interface {
	Publish(ctx context.Context, ev Envelope) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaProducer creates a producer writing to topic on the given brokers.
// Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string, log *zap.Logger) *KafkaProducer {
	if log == nil {
		log = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, log: log}
}

// Publish serializes the event as JSON and writes it keyed by user id.
// A short timeout keeps a slow broker from blocking auth flows.
func (p *KafkaProducer) Publish(ctx context.Context, ev Envelope) error {
	if p == nil || p.writer == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var key []byte
	if ev.UserID != "" {
		key = []byte(ev.UserID)
	}

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   key,
		Value: payload,
		Time:  ev.OccurredAt,
	})
	if err != nil {
		p.log.Warn("events.publish.fail",
			zap.String("event", ev.Name),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NoopProducer discards all events. Used when no brokers are configured.
type NoopProducer struct{}

func (NoopProducer) Publish(context.Context, Envelope) error { return nil }
func (NoopProducer) Close() error                            { return nil }
