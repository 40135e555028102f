package state

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store, used in tests.
type MemoryStore struct {
	mu     sync.Mutex
	record *CycleRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// Read returns a copy of the stored record, seeding the default on
// first use.
func (s *MemoryStore) Read(_ context.Context) (*CycleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		s.record = Default()
	}
	return s.record.Clone(), nil
}

// Write stores a copy to prevent external mutation.
func (s *MemoryStore) Write(_ context.Context, record *CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = record.Clone()
	return nil
}
