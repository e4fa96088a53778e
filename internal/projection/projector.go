package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
)

// ErrVersionGap is returned when an event arrives ahead of its predecessor
// and no event source is attached to fill the gap. The consumer retries.
var ErrVersionGap = errors.New("event version gap")

// EventSource reads an aggregate's stream back from the event store.
type EventSource interface {
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error)
}

// Projector keeps the read store in step with the event stream.
type Projector struct {
	readStore store.ReadStoreInterface
	source    EventSource
	log       *logger.Logger

	// postMu serializes post projection; each event is a read-modify-write
	// of the stored post.
	postMu sync.Mutex
}

func NewProjector(readStore store.ReadStoreInterface, log *logger.Logger) *Projector {
	if log == nil {
		log = logger.Nop()
	}
	return &Projector{readStore: readStore, log: log.Component("projector")}
}

// UseEventSource lets the projector fill version gaps from the event store.
// Call it before events flow.
func (p *Projector) UseEventSource(src EventSource) {
	p.source = src
}

// HandleEvent decodes one bus message and projects it.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return p.Project(ctx, event)
}

// Publish projects synchronously, so the projector can stand in for the bus
// when the API runs without Kafka.
func (p *Projector) Publish(ctx context.Context, _ string, event any) error {
	switch e := event.(type) {
	case store.Event:
		return p.Project(ctx, e)
	case *store.Event:
		return p.Project(ctx, *e)
	}
	return fmt.Errorf("unsupported event payload %T", event)
}

func (p *Projector) Project(ctx context.Context, event store.Event) error {
	p.log.Debug(ctx, "projecting event", map[string]any{
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
		"version":      event.Version,
	})

	var err error
	switch event.AggregateType {
	case post.AggregateType:
		err = p.handlePostEvent(ctx, event)
	case account.AggregateType:
		err = p.handleAccountEvent(ctx, event)
	default:
		return nil
	}
	if err != nil {
		p.log.Error(ctx, "projection failed", err, map[string]any{
			"event_id":   event.ID,
			"event_type": event.EventType,
		})
	}
	return err
}

// Rebuild replays every stored event into the read store.
func (p *Projector) Rebuild(ctx context.Context, es store.EventStoreInterface) error {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := p.Project(ctx, event); err != nil {
			return err
		}
	}
	p.log.Info(ctx, "read store rebuilt", map[string]any{"events": len(events)})
	return nil
}
