package testutil

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/internal/state"
)

// MemoryStore is a state.Store that keeps the last saved blob as JSON.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailSaves makes every Save return err until called again with nil.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Load decodes the last saved blob, or returns an empty one.
func (m *MemoryStore) Load(_ context.Context) (*state.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return state.NewBlob(), nil
	}
	return state.Decode(m.data)
}

// Save encodes b.
func (m *MemoryStore) Save(_ context.Context, b *state.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
