package otp

import (
	"context"
	"sync"
)

// MemoryStore is an in-process RecordStore used in development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs []*Record
	byID map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Record)}
}

func (m *MemoryStore) Save(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.recs = append(m.recs, &cp)
	m.byID[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) LatestUnverified(ctx context.Context, identity, phone string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Appends preserve issue order, so scan newest first.
	for i := len(m.recs) - 1; i >= 0; i-- {
		r := m.recs[i]
		if r.Identity == identity && r.Phone == phone && !r.Verified {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNoRecord
}

func (m *MemoryStore) MarkVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.byID[id]; ok {
		r.Verified = true
	}
	return nil
}

func (m *MemoryStore) IncrementAttempt(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return 0, ErrNoRecord
	}
	r.AttemptCount++
	return r.AttemptCount, nil
}
