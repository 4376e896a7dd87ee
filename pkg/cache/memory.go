package cache

import (
	"context"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryStore struct {
	entries *lru
	now     func() time.Time
}

// NewMemoryStore returns an in process Store bounded to budget bytes of
// values. The least recently used entries are evicted first.
func NewMemoryStore(budget int) Store {
	return &memoryStore{
		entries: newLRU(budget),
		now:     time.Now,
	}
}

// Get implements Store.Get
func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.entries.get(key)
	if !ok {
		return nil, false, nil
	}

	entry := v.(*memoryEntry)
	if !s.now().Before(entry.expiresAt) {
		s.entries.remove(key)
		return nil, false, nil
	}

	cloned := make([]byte, len(entry.value))
	copy(cloned, entry.value)
	return cloned, true, nil
}

// Set implements Store.Set
func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cloned := make([]byte, len(value))
	copy(cloned, value)

	s.entries.put(key, &memoryEntry{
		value:     cloned,
		expiresAt: s.now().Add(ttl),
	}, len(key)+len(cloned))
	return nil
}

// Delete implements Store.Delete
func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.entries.remove(key)
	return nil
}
