package prefs

import (
	"context"
	"sync"
)

// InMemoryStore is a simple in-process preference store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Preferences
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[int64]Preferences)}
}

func (s *InMemoryStore) Get(_ context.Context, ownerID int64) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[ownerID]
	if !ok {
		return Defaults(), nil
	}
	return p, nil
}

func (s *InMemoryStore) Put(_ context.Context, ownerID int64, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ownerID] = p
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
