package kafka

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"territory-service/internal/events"
)

const (
	handleTimeout = 10 * time.Second
	retryBackoff  = time.Second
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded event. A returned error leaves the message uncommitted.
type Handler func(ctx context.Context, ev events.Event) error

// Consumer reads membership events from a topic within a consumer group.
type Consumer struct {
	reader  messageReader
	logger  *zap.Logger
	backoff time.Duration
}

// NewConsumer returns a Consumer for topic in groupID. Call Close when done.
func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		}),
		logger:  logger,
		backoff: retryBackoff,
	}
}

// Run fetches, decodes and handles messages until ctx is done. Undecodable messages are
// logged and committed. A message is committed only after handle succeeds.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka fetch failed", zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		var ev events.Event
		if err := sonic.Unmarshal(m.Value, &ev); err != nil {
			c.logger.Error("dropping undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		} else if !c.handleUntilDone(ctx, m, ev, handle) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handleUntilDone retries handle for one message, since the reader does not redeliver
// uncommitted offsets within a session. It returns false once ctx is done.
func (c *Consumer) handleUntilDone(ctx context.Context, m kafka.Message, ev events.Event, handle Handler) bool {
	for {
		hctx, cancel := context.WithTimeout(ctx, handleTimeout)
		err := handle(hctx, ev)
		cancel()
		if err == nil {
			return true
		}
		c.logger.Warn("event handler failed", zap.String("event_id", ev.ID), zap.Int64("offset", m.Offset), zap.Error(err))
		if !sleep(ctx, c.backoff) {
			return false
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
