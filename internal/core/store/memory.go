package store

import (
	"context"
	"sync"
	"time"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

var _ RecordStore = (*MemoryStore)(nil)

// MemoryStore is the reference RecordStore: a mutex-guarded map of
// collections with an append-only change log. It backs the local adapter and
// the test suites; real deployments plug in the application's persistent
// store instead.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]change.Payload
	changes     []change.ChangeSet
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]change.Payload),
	}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (change.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.collections[collection]
	if records == nil {
		return nil, nil
	}
	return records[id].Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, collection, id string, payload change.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collections[collection]
	if records == nil {
		records = make(map[string]change.Payload)
		s.collections[collection] = records
	}
	op := change.OperationCreate
	if _, exists := records[id]; exists {
		op = change.OperationUpdate
	}
	records[id] = payload.Clone()
	s.changes = append(s.changes, change.ChangeSet{
		EntityType: change.EntityType(collection),
		EntityID:   id,
		Operation:  op,
		Payload:    payload.Clone(),
		Timestamp:  time.Now(),
	})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collections[collection]
	if records == nil {
		return nil
	}
	if _, exists := records[id]; !exists {
		return nil
	}
	delete(records, id)
	s.changes = append(s.changes, change.ChangeSet{
		EntityType: change.EntityType(collection),
		EntityID:   id,
		Operation:  change.OperationDelete,
		Timestamp:  time.Now(),
	})
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, predicate func(change.Payload) bool) ([]change.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []change.Payload
	for _, payload := range s.collections[collection] {
		if predicate == nil || predicate(payload) {
			out = append(out, payload.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Changes(_ context.Context, since time.Time) ([]change.ChangeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []change.ChangeSet
	for _, cs := range s.changes {
		if cs.Timestamp.After(since) {
			copied := cs
			copied.Payload = cs.Payload.Clone()
			out = append(out, copied)
		}
	}
	return out, nil
}
