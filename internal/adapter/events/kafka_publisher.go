package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/rl1809/market-core/internal/port"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type envelope struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// KafkaPublisher writes events to one topic, keyed so that events about the
// same aggregate land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...port.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		body, err := json.Marshal(envelope{
			Type:       e.Type,
			Key:        e.Key,
			OccurredAt: e.OccurredAt.UTC(),
			Payload:    e.Payload,
		})
		if err != nil {
			return errors.Wrapf(err, "encode %s event", e.Type)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.Key),
			Value:   body,
			Time:    e.OccurredAt,
			Headers: []kafka.Header{{Key: "event-type", Value: []byte(e.Type)}},
		})
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msgs...), "write kafka messages")
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
