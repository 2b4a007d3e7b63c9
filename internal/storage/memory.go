package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used in tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Snapshot)}
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, documentID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.docs[documentID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, documentID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[documentID] = snap
	return nil
}

// Seed preloads a snapshot, standing in for a document created through the
// CRUD service.
func (s *MemoryStore) Seed(documentID string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[documentID] = snap
}
