package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps the initial implementation lightweight and testable.
// It intentionally favors clarity over performance.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Event
	for _, e := range s.events {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}

	// Newest first.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]

	limit := filter.Limit
	if limit == 0 {
		limit = defaultQueryLimit
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemoryStore) ArchiveOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i := range s.events {
		if !s.events[i].Archived && s.events[i].Timestamp.Before(cutoff) {
			s.events[i].Archived = true
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) PurgeArchived(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	count := 0
	for _, e := range s.events {
		if e.Archived && e.Timestamp.Before(cutoff) {
			count++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return count, nil
}
