package store

import (
	"context"

	"github.com/example/ewaste-exchange/internal/apperr"
)

// ErrVersionConflict is returned by Append when the aggregate moved past the
// version the caller loaded.
var ErrVersionConflict = apperr.New(apperr.CodeConflict, "the record was modified concurrently, reload and retry")

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	// Append stores an event as version expectedVersion+1. expectedVersion is
	// the version the caller loaded, 0 for a new aggregate.
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, expectedVersion int, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// Publisher fans stored events out to consumers (projector, notifier).
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ReadStoreInterface defines the interface for read model storage
type ReadStoreInterface interface {
	// Set stores a read model
	Set(ctx context.Context, collection, id string, data any) error

	// Get retrieves a read model by id
	Get(ctx context.Context, collection, id string) (any, bool, error)

	// GetAll retrieves all items in a collection
	GetAll(ctx context.Context, collection string) ([]any, error)

	// Delete removes a read model
	Delete(ctx context.Context, collection, id string) error
}
