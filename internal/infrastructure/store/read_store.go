package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ewaste-exchange/internal/readmodel"
)

// ReadStore holds read models in memory, keyed by collection then id. It
// backs EVENT_STORE=memory and the handler tests.
type ReadStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]any
}

func NewReadStore() *ReadStore {
	return &ReadStore{collections: make(map[string]map[string]any)}
}

func (rs *ReadStore) Set(_ context.Context, collection, id string, data any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	items, ok := rs.collections[collection]
	if !ok {
		items = make(map[string]any)
		rs.collections[collection] = items
	}
	items[id] = data
	return nil
}

func (rs *ReadStore) Get(_ context.Context, collection, id string) (any, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	item, ok := rs.collections[collection][id]
	return item, ok, nil
}

// GetAll returns a collection sorted by id, so listings are stable across
// calls.
func (rs *ReadStore) GetAll(_ context.Context, collection string) ([]any, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	items := rs.collections[collection]
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = items[id]
	}
	return out, nil
}

func (rs *ReadStore) Delete(_ context.Context, collection, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.collections[collection], id)
	return nil
}

// DeleteExpiredSessions drops sessions whose refresh token expired before now.
func (rs *ReadStore) DeleteExpiredSessions(_ context.Context, now time.Time) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for id, item := range rs.collections[readmodel.CollectionSessions] {
		if s, ok := item.(*readmodel.SessionReadModel); ok && s.ExpiresAt.Before(now) {
			delete(rs.collections[readmodel.CollectionSessions], id)
		}
	}
	return nil
}
