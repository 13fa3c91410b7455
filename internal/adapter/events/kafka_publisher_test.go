package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/market-core/internal/port"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_EncodesEnvelope(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w)
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(),
		port.Event{Type: port.EventOrderPlaced, Key: "7", OccurredAt: at, Payload: map[string]int{"order_id": 7}},
		port.Event{Type: port.EventCouponIssued, Key: "3", OccurredAt: at, Payload: nil},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	assert.Equal(t, []byte("7"), msg.Key)
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, []byte(port.EventOrderPlaced), msg.Headers[0].Value)

	var got struct {
		Type       string         `json:"type"`
		OccurredAt time.Time      `json:"occurred_at"`
		Payload    map[string]int `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, port.EventOrderPlaced, got.Type)
	assert.True(t, at.Equal(got.OccurredAt))
	assert.Equal(t, 7, got.Payload["order_id"])
}

func TestKafkaPublisher_Errors(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w)

	assert.NoError(t, p.Publish(context.Background()))
	assert.Empty(t, w.msgs)

	err := p.Publish(context.Background(), port.Event{Type: port.EventOrderPlaced, Key: "1"})
	assert.ErrorContains(t, err, "broker down")

	err = p.Publish(context.Background(), port.Event{Type: "bad", Payload: make(chan int)})
	assert.ErrorContains(t, err, "encode bad event")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
