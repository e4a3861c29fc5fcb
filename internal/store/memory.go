package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is a concurrency-safe in-process Store. Entries do not survive a
// restart; use it for tests or when persistence is not wanted.
type MemoryStore struct {
	mu sync.RWMutex

	// key: cache key, value: latest entry
	data map[string]Entry

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Entry),
		now:  time.Now,
	}
}

// NewMemoryStoreWithClock creates a MemoryStore stamping entries with now().
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	// Hand out a copy so callers cannot mutate the stored payload.
	e.Payload = append(json.RawMessage(nil), e.Payload...)
	return &e, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fetchedAt := s.now().UTC()
	if prev, ok := s.data[key]; ok {
		fetchedAt = stamp(prev.FetchedAt, fetchedAt)
	}
	s.data[key] = Entry{
		Key:       key,
		Payload:   append(json.RawMessage(nil), payload...),
		FetchedAt: fetchedAt,
	}
	return nil
}

func (s *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.data {
		if e.FetchedAt.Before(olderThan) {
			delete(s.data, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	return nil
}
