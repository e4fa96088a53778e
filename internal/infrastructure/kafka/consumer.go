package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/segmentio/kafka-go"
)

const (
	handleAttempts = 3
	retryBackoff   = 200 * time.Millisecond
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads with explicit commits: an offset is committed only after
// the handler ran, so a crash redelivers. Handlers must be idempotent.
type Consumer struct {
	reader  messageReader
	log     *logger.Logger
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, log)
}

func newConsumer(reader messageReader, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{reader: reader, log: log.Component("kafka-consumer"), backoff: retryBackoff}
}

func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error(ctx, "fetch failed", err)
			continue
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return ctx.Err()
			}
			// Poison messages are skipped after the last attempt.
			c.log.Error(ctx, "message dropped", err, map[string]any{
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"key":       string(msg.Key),
			})
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error(ctx, "commit failed", err, map[string]any{"offset": msg.Offset})
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= handleAttempts; attempt++ {
		if err = handler(ctx, msg.Key, msg.Value); err == nil {
			return nil
		}
		if attempt == handleAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
