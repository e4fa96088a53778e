package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ewaste-exchange/internal/infrastructure/store"
)

// Root is an event-sourced aggregate. Post and Account implement it.
type Root interface {
	GetID() string
	GetVersion() int
	ApplyEvent(store.Event) error
}

// Load restores a root from its latest snapshot, if any, and replays the
// events recorded after it. found is false when the id has no history.
func Load[T Root](ctx context.Context, es store.EventStoreInterface, id string, fresh func() T) (root T, found bool, err error) {
	root = fresh()

	snap, err := es.GetSnapshot(ctx, id)
	if err != nil {
		return root, false, fmt.Errorf("load snapshot %s: %w", id, err)
	}

	var history []store.Event
	if snap == nil {
		history, err = es.GetEvents(ctx, id)
	} else {
		if err := json.Unmarshal(snap.State, root); err != nil {
			return root, false, fmt.Errorf("decode snapshot %s: %w", id, err)
		}
		history, err = es.GetEventsFromVersion(ctx, id, snap.Version)
	}
	if err != nil {
		return root, false, fmt.Errorf("load events %s: %w", id, err)
	}

	for _, e := range history {
		if err := root.ApplyEvent(e); err != nil {
			return root, false, fmt.Errorf("replay %s v%d: %w", e.EventType, e.Version, err)
		}
	}
	return root, snap != nil || len(history) > 0, nil
}

// Commit appends one event at the root's current version and applies the
// stored copy. On store.ErrVersionConflict the root is left untouched.
func Commit(ctx context.Context, es store.EventStoreInterface, root Root, aggregateType, eventType string, data any) error {
	stored, err := es.Append(ctx, root.GetID(), aggregateType, eventType, root.GetVersion(), data)
	if err != nil {
		return err
	}
	return root.ApplyEvent(*stored)
}

func snapshotDue(version int) bool {
	return version > 0 && version%store.SnapshotThreshold == 0
}

// SnapshotIfDue saves the root's state every store.SnapshotThreshold events.
func SnapshotIfDue(ctx context.Context, es store.EventStoreInterface, root Root, aggregateType string) error {
	if !snapshotDue(root.GetVersion()) {
		return nil
	}
	state, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", aggregateType, root.GetID(), err)
	}
	return es.SaveSnapshot(ctx, &store.Snapshot{
		AggregateID:   root.GetID(),
		AggregateType: aggregateType,
		Version:       root.GetVersion(),
		State:         state,
		CreatedAt:     time.Now().UTC(),
	})
}
