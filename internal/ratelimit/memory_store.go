package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	hits      int
	resetTime time.Time
}

// MemoryStore is a process-local Store. Expired windows are swept by a
// background goroutine that Close stops.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
	janitor *janitor
}

// NewMemoryStore starts a store sweeping every cleanupInterval. A zero
// interval uses DefaultCleanupInterval; a negative one disables the sweep.
func NewMemoryStore(cleanupInterval time.Duration, clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	if cleanupInterval == 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	store := &MemoryStore{
		entries: map[string]*windowEntry{},
		now:     clock,
	}
	store.janitor = startJanitor(cleanupInterval, func() {
		store.removeExpired()
	})

	return store
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Info, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists || !now.Before(entry.resetTime) {
		entry = &windowEntry{resetTime: now.Add(window)}
		s.entries[key] = entry
	}
	entry.hits++

	return Info{TotalHits: entry.hits, ResetTime: entry.resetTime}, nil
}

func (s *MemoryStore) Decrement(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.entries[key]; exists && entry.hits > 0 {
		entry.hits--
	}
	return nil
}

func (s *MemoryStore) ResetKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Clean(_ context.Context) (int, error) {
	return s.removeExpired(), nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the background sweep.
func (s *MemoryStore) Close() error {
	s.janitor.stop()
	return nil
}

func (s *MemoryStore) removeExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.resetTime) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
