package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/liamcoop/querybuilder/conditions"
	"github.com/liamcoop/querybuilder/evaluate"
	"github.com/liamcoop/querybuilder/serialize"
	"github.com/liamcoop/querybuilder/store"
)

// Snapshot is the state of a session after a change: the canonical
// document, both previews and the current violation list.
type Snapshot struct {
	ID         string                 `json:"id"`
	Catalog    string                 `json:"catalog"`
	Document   json.RawMessage        `json:"document"`
	Readable   string                 `json:"readable"`
	SQL        string                 `json:"sql"`
	Violations []conditions.Violation `json:"violations"`
	Valid      bool                   `json:"valid"`
}

// Session is one editor's query. It owns its tree exclusively; every method
// is safe for concurrent use and sees the tree under the session lock.
type Session struct {
	ID        string
	Catalog   string
	CreatedAt time.Time

	tree     *conditions.Tree
	config   *options
	loader   *store.Loader
	lastUsed time.Time
	mu       sync.Mutex
}

// Snapshot regenerates the document, previews and violations.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() (Snapshot, error) {
	root := s.tree.Root()
	doc, err := serialize.Encode(root)
	if err != nil {
		return Snapshot{}, err
	}
	violations := s.tree.Validate()
	if violations == nil {
		violations = []conditions.Violation{}
	}
	return Snapshot{
		ID:         s.ID,
		Catalog:    s.Catalog,
		Document:   doc,
		Readable:   serialize.Readable(root),
		SQL:        serialize.SQL(root),
		Violations: violations,
		Valid:      len(violations) == 0,
	}, nil
}

// mutate runs fn under the lock and returns the snapshot that follows it.
// A failed mutation leaves the tree unchanged and returns fn's error.
func (s *Session) mutate(fn func(t *conditions.Tree) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed = time.Now()
	if err := fn(s.tree); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot()
}

// AddRule appends a rule to the group at parent.
func (s *Session) AddRule(parent conditions.Path, field, operator string, values ...any) (Snapshot, error) {
	return s.mutate(func(t *conditions.Tree) error {
		g, err := t.GroupAt(parent)
		if err != nil {
			return err
		}
		_, err = t.AddRule(g, field, operator, values...)
		return err
	})
}

// AddGroup appends an empty group to the group at parent.
func (s *Session) AddGroup(parent conditions.Path, c conditions.Connective) (Snapshot, error) {
	return s.mutate(func(t *conditions.Tree) error {
		g, err := t.GroupAt(parent)
		if err != nil {
			return err
		}
		_, err = t.AddGroup(g, c)
		return err
	})
}

func (s *Session) RemoveChild(parent conditions.Path, index int) (Snapshot, error) {
	return s.mutate(func(t *conditions.Tree) error {
		g, err := t.GroupAt(parent)
		if err != nil {
			return err
		}
		_, err = t.RemoveChild(g, index)
		return err
	})
}

func (s *Session) MoveChild(parent conditions.Path, from, to int) (Snapshot, error) {
	return s.mutate(func(t *conditions.Tree) error {
		g, err := t.GroupAt(parent)
		if err != nil {
			return err
		}
		return t.MoveChild(g, from, to)
	})
}

func (s *Session) SetConnective(path conditions.Path, c conditions.Connective) (Snapshot, error) {
	return s.mutate(func(t *conditions.Tree) error {
		g, err := t.GroupAt(path)
		if err != nil {
			return err
		}
		return t.SetConnective(g, c)
	})
}

// Clear removes every child of the root.
func (s *Session) Clear() (Snapshot, error) {
	return s.mutate(func(t *conditions.Tree) error {
		t.Clear()
		return nil
	})
}

// Root returns a deep copy of the session's root group.
func (s *Session) Root() *conditions.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conditions.CloneGroup(s.tree.Root())
}

// Evaluate compiles the current tree and filters records with it. An
// invalid tree fails with *conditions.ViolationError.
func (s *Session) Evaluate(ctx context.Context, records []evaluate.MapRecord) ([]evaluate.MapRecord, error) {
	s.mu.Lock()
	q, err := evaluate.Compile(s.tree.Clone(), evaluate.WithCaseSensitive(s.config.caseSensitive))
	s.lastUsed = time.Now()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return evaluate.FilterParallel(ctx, records, q.Predicate(), s.config.workers)
}

// Save stores a copy of the current tree under name.
func (s *Session) Save(name string) (*store.SavedQuery, error) {
	if s.loader == nil {
		return nil, errors.New("no saved-query store configured")
	}
	root := s.Root()
	return s.loader.Save(name, s.Catalog, root)
}
