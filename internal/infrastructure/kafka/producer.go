package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes stored events keyed by aggregate id, so every event of
// one post lands on one partition in order.
type Producer struct {
	writer messageWriter
	log    *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(writer, log)
}

func newProducer(writer messageWriter, log *logger.Logger) *Producer {
	if log == nil {
		log = logger.Nop()
	}
	return &Producer{writer: writer, log: log.Component("kafka-producer")}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if e, ok := eventOf(event); ok {
		msg.Headers = []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "aggregate_type", Value: []byte(e.AggregateType)},
		}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error(ctx, "publish failed", err, map[string]any{"key": key})
		return err
	}
	return nil
}

func eventOf(v any) (store.Event, bool) {
	switch e := v.(type) {
	case store.Event:
		return e, true
	case *store.Event:
		if e != nil {
			return *e, true
		}
	}
	return store.Event{}, false
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
