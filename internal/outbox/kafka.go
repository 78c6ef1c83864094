package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/sage-warehouse/internal/domain/event"
)

// EventTypeHeader carries the event type on every published message.
const EventTypeHeader = "event_type"

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes events to a single topic. Messages are keyed by
// aggregate id, so the events of one order keep their relative order.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}}
}

// Publish writes events as one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.w.WriteMessages(ctx, Messages(events)...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Messages converts events to Kafka messages.
func Messages(events []event.Event) []kafka.Message {
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msgs[i] = kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Time:  e.CreatedAt,
			Headers: []kafka.Header{
				{Key: EventTypeHeader, Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID)},
			},
		}
	}
	return msgs
}
