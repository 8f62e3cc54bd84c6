package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore implements Store with an in-process map. It is intended for
// tests and single-process deployments; production setups share a Redis
// store across server processes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

// NewMemoryStore creates an in-memory window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Incr increments the counter for key, resetting it when the window elapsed.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &windowEntry{expiresAt: now.Add(window)}
		s.entries[key] = entry
	}

	entry.count++
	return entry.count, nil
}
