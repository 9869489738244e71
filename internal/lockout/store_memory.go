package lockout

import (
	"context"
	"sync"
	"time"

	"caregate/pkg/requestcontext"
)

type memoryEntry struct {
	failures    int
	windowStart time.Time
	window      time.Duration
	lockedUntil *time.Time
}

// InMemoryStore is the single-process store for development and tests.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *InMemoryStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) >= entry.window {
		entry = &memoryEntry{windowStart: now, window: window}
		s.entries[key] = entry
	}
	entry.failures++
	return entry.failures, nil
}

func (s *InMemoryStore) Failures(ctx context.Context, key string) (int, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) >= entry.window {
		return 0, nil
	}
	return entry.failures, nil
}

func (s *InMemoryStore) Lock(ctx context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryEntry{windowStart: requestcontext.Now(ctx), window: until.Sub(requestcontext.Now(ctx))}
		s.entries[key] = entry
	}
	entry.lockedUntil = &until
	return nil
}

func (s *InMemoryStore) LockedUntil(ctx context.Context, key string) (*time.Time, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.lockedUntil == nil || !entry.lockedUntil.After(now) {
		return nil, nil
	}
	until := *entry.lockedUntil
	return &until, nil
}

func (s *InMemoryStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
