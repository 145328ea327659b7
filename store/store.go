// Package store persists saved queries as canonical JSON documents and
// caches their decoded trees.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("saved query not found")
	ErrAlreadyExists = errors.New("saved query already exists")
)

// SavedQuery is a named, persisted condition tree. Document holds the
// canonical JSON encoding of the root group; Catalog names the field catalog
// the query was built against.
type SavedQuery struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Catalog   string          `json:"catalog"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (q *SavedQuery) clone() *SavedQuery {
	c := *q
	c.Document = append(json.RawMessage(nil), q.Document...)
	return &c
}

// QueryStore defines the interface for saved query storage.
type QueryStore interface {
	// Add stores a new query. An empty ID is replaced with a fresh UUID.
	Add(q *SavedQuery) error
	Get(id string) (*SavedQuery, error)
	// List returns every query, oldest first.
	List() ([]*SavedQuery, error)
	Update(q *SavedQuery) error
	Delete(id string) error
}

// InMemoryQueryStore implements QueryStore with in-memory storage. Queries
// are copied on the way in and out.
type InMemoryQueryStore struct {
	queries map[string]*SavedQuery
	mu      sync.RWMutex
}

func NewInMemoryQueryStore() *InMemoryQueryStore {
	return &InMemoryQueryStore{
		queries: make(map[string]*SavedQuery),
	}
}

func (s *InMemoryQueryStore) Add(q *SavedQuery) error {
	if err := check(q); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if _, exists := s.queries[q.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, q.ID)
	}

	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	s.queries[q.ID] = q.clone()
	return nil
}

func (s *InMemoryQueryStore) Get(id string) (*SavedQuery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, exists := s.queries[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q.clone(), nil
}

func (s *InMemoryQueryStore) List() ([]*SavedQuery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SavedQuery, 0, len(s.queries))
	for _, q := range s.queries {
		out = append(out, q.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces the name, catalog and document of an existing query.
// CreatedAt is preserved.
func (s *InMemoryQueryStore) Update(q *SavedQuery) error {
	if err := check(q); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.queries[q.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, q.ID)
	}

	q.CreatedAt = existing.CreatedAt
	q.UpdatedAt = time.Now().UTC()
	s.queries[q.ID] = q.clone()
	return nil
}

func (s *InMemoryQueryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queries[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.queries, id)
	return nil
}

func check(q *SavedQuery) error {
	if q == nil {
		return errors.New("saved query is nil")
	}
	if q.Name == "" {
		return errors.New("saved query name is required")
	}
	if len(q.Document) == 0 {
		return errors.New("saved query document is required")
	}
	return nil
}
