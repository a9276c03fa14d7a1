// Package customer exposes the externally-owned recipient identities tokens
// are issued to. The review workflow never creates or mutates these records.
package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	dErrors "worksign/pkg/domain-errors"
)

var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "customer contact not found")

// Contact identifies one review-link recipient.
type Contact struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// Store resolves recipients at token-issuance time.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Contact, error)
}

type InMemoryStore struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]Contact
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contacts: make(map[uuid.UUID]Contact)}
}

func (s *InMemoryStore) Seed(c Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contacts[id]; ok {
		out := c
		return &out, nil
	}
	return nil, ErrNotFound
}

// PostgresStore reads contacts from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	var c Contact
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find customer contact: %w", err)
	}
	return &c, nil
}
