package workitem

import (
	"context"
	"sync"

	"github.com/google/uuid"

	dErrors "worksign/pkg/domain-errors"
)

// ErrNotFound keeps collaborator 404s consistent with the review stores.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "work item not found")

// Store reads work items and accepts the post-decision status push. The
// review core only ever calls FindByID and SetStatus.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*WorkItem, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// InMemoryStore backs tests and local development.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]WorkItem
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[uuid.UUID]WorkItem)}
}

// Seed inserts a work item, replacing any existing record.
func (s *InMemoryStore) Seed(item WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if item, ok := s.items[id]; ok {
		out := item
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	item.Status = status
	s.items[id] = item
	return nil
}
