package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event.(Event))
	return p.err
}

// ============================================
// EventStore Tests
// ============================================

func TestEventStore_AppendAssignsSequentialVersions(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)

	first, err := es.Append(ctx, "post-1", "Post", "PostCreated", 0, map[string]string{"a": "b"})
	require.NoError(t, err)
	second, err := es.Append(ctx, "post-1", "Post", "PricingCompleted", 1, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.JSONEq(t, `{"a":"b"}`, string(first.Data))
}

func TestEventStore_StaleVersionIsRejected(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)

	_, err := es.Append(ctx, "post-1", "Post", "PostCreated", 0, nil)
	require.NoError(t, err)

	_, err = es.Append(ctx, "post-1", "Post", "PriceFinalized", 0, nil)

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
	events, _ := es.GetEvents(ctx, "post-1")
	assert.Len(t, events, 1)
}

func TestEventStore_ConcurrentAppendsAtSameVersion(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, err := es.Append(ctx, "post-1", "Post", "PostCreated", 0, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := es.Append(ctx, "post-1", "Post", "PriceFinalized", 1, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		if err == nil {
			ok++
		} else if errors.Is(err, ErrVersionConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, conflicts)
}

func TestEventStore_PublishesStoredEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	es := NewEventStore(pub, nil)

	stored, err := es.Append(ctx, "post-1", "Post", "PostCreated", 0, nil)
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "post-1", pub.keys[0])
	assert.Equal(t, stored.ID, pub.events[0].ID)
}

func TestEventStore_PublishFailureKeepsEvent(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(&recordingPublisher{err: errors.New("broker down")}, nil)

	_, err := es.Append(ctx, "post-1", "Post", "PostCreated", 0, nil)

	require.NoError(t, err)
	events, _ := es.GetEvents(ctx, "post-1")
	assert.Len(t, events, 1)
}

func TestEventStore_GetEventsFromVersion(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	for v := 0; v < 5; v++ {
		_, err := es.Append(ctx, "post-1", "Post", "X", v, nil)
		require.NoError(t, err)
	}

	events, err := es.GetEventsFromVersion(ctx, "post-1", 3)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 4, events[0].Version)
	assert.Equal(t, 5, events[1].Version)
}

func TestEventStore_GetAllEventsKeepsCreationOrder(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)
	_, _ = es.Append(ctx, "b", "Post", "PostCreated", 0, nil)
	_, _ = es.Append(ctx, "a", "Account", "AccountRegistered", 0, nil)
	_, _ = es.Append(ctx, "b", "Post", "PricingCompleted", 1, nil)

	all, err := es.GetAllEvents(ctx)

	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].AggregateID)
	assert.Equal(t, "b", all[1].AggregateID)
	assert.Equal(t, "a", all[2].AggregateID)
}

// ============================================
// Snapshot Tests
// ============================================

func TestEventStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	es := NewEventStore(nil, nil)

	missing, err := es.GetSnapshot(ctx, "post-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	state, _ := json.Marshal(map[string]any{"id": "post-1", "status": "negotiation"})
	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
		AggregateID:   "post-1",
		AggregateType: "Post",
		Version:       10,
		State:         state,
		CreatedAt:     time.Now(),
	}))

	snap, err := es.GetSnapshot(ctx, "post-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 10, snap.Version)
	assert.JSONEq(t, string(state), string(snap.State))
}

func TestSnapshotThreshold(t *testing.T) {
	assert.Equal(t, 10, SnapshotThreshold)
}
