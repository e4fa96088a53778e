package mocks

import (
	"context"
	"sync"

	"github.com/example/ewaste-exchange/internal/infrastructure/store"
)

// MockReadStore wraps the in-memory read store with call recording and
// error injection.
type MockReadStore struct {
	inner *store.ReadStore

	mu       sync.Mutex
	SetCalls []SetCall
	// GetErr, when set, fails every Get and GetAll.
	GetErr error
	// SetErr, when set, fails every Set.
	SetErr error
}

type SetCall struct {
	Collection string
	ID         string
	Data       any
}

var _ store.ReadStoreInterface = (*MockReadStore)(nil)

func NewMockReadStore() *MockReadStore {
	return &MockReadStore{inner: store.NewReadStore()}
}

func (m *MockReadStore) Set(ctx context.Context, collection, id string, data any) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, SetCall{Collection: collection, ID: id, Data: data})
	err := m.SetErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Set(ctx, collection, id, data)
}

func (m *MockReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	if err := m.getErr(); err != nil {
		return nil, false, err
	}
	return m.inner.Get(ctx, collection, id)
}

func (m *MockReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	if err := m.getErr(); err != nil {
		return nil, err
	}
	return m.inner.GetAll(ctx, collection)
}

func (m *MockReadStore) Delete(ctx context.Context, collection, id string) error {
	return m.inner.Delete(ctx, collection, id)
}

func (m *MockReadStore) getErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetErr
}

// SetData seeds a read model without recording a call.
func (m *MockReadStore) SetData(collection, id string, data any) {
	_ = m.inner.Set(context.Background(), collection, id, data)
}

// GetData reads a model without going through error injection.
func (m *MockReadStore) GetData(collection, id string) (any, bool) {
	data, ok, _ := m.inner.Get(context.Background(), collection, id)
	return data, ok
}
