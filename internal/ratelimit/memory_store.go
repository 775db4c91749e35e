package ratelimit

import (
	"context"
	"sync"
)

// MemoryCounterStore keeps counters in process memory.
type MemoryCounterStore struct {
	mu       sync.RWMutex
	counters map[string]Counter
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]Counter)}
}

func (m *MemoryCounterStore) Get(ctx context.Context, phone string) (Counter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[phone], nil
}

func (m *MemoryCounterStore) Put(ctx context.Context, phone string, c Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[phone] = c
	return nil
}
