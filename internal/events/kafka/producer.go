// Package kafka publishes membership events to a Kafka topic using segmentio/kafka-go.
package kafka

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"

	"territory-service/internal/events"
)

// messageWriter is the part of *kafka.Writer the emitter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Emitter implements events.Emitter. Messages are keyed by congregation id so one
// congregation's events stay ordered within a partition.
type Emitter struct {
	writer messageWriter
	topic  string
}

// NewEmitter creates an Emitter writing to topic. It returns nil when brokers or topic is empty,
// which callers treat as publishing disabled. Call Close when shutting down.
func NewEmitter(brokers []string, topic string) *Emitter {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Emitter{writer: writer, topic: topic}
}

// Emit serializes ev as JSON and writes it to the topic.
func (e *Emitter) Emit(ctx context.Context, ev events.Event) error {
	if e == nil || e.writer == nil {
		return nil
	}
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.CongregationID),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	})
}

// Close closes the Kafka writer. Safe to call on a nil Emitter.
func (e *Emitter) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
