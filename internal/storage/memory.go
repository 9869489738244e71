package storage

import (
	"context"
	"sync"

	"caregate/pkg/sentinel"
)

// InMemoryRecordStore keeps the initial implementation lightweight and
// testable. It intentionally favors clarity over performance.
type InMemoryRecordStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{collections: make(map[string]map[string]Record)}
}

func (s *InMemoryRecordStore) Get(_ context.Context, collection, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.collections[collection][key]; ok {
		return Clone(record), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryRecordStore) Put(_ context.Context, collection, key string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]Record)
	}
	s.collections[collection][key] = Clone(record)
	return nil
}

func (s *InMemoryRecordStore) Query(_ context.Context, collection string, pred Predicate) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, record := range s.collections[collection] {
		if pred == nil || pred(record) {
			out = append(out, Clone(record))
		}
	}
	return out, nil
}
