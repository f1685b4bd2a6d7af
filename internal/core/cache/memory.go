package cache

import (
	"context"
	"sync"

	"github.com/careops/lattice/internal/core/model"
)

// MemoryStore is the in-process entry store: a slice under a lock taken only
// for append and replace. Snapshot copies the slice header set, so lookups
// never hold the lock while scanning.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []model.CacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context) ([]model.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CacheEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Replace(_ context.Context, entries []model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]model.CacheEntry(nil), entries...)
	return nil
}
