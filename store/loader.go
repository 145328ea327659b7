package store

import (
	"fmt"

	"github.com/liamcoop/querybuilder/conditions"
	"github.com/liamcoop/querybuilder/internal/logger"
	"github.com/liamcoop/querybuilder/serialize"
)

// Loader reads and writes saved queries through a QueryStore and keeps
// decoded trees in a TreeCache. Every tree it returns is a fresh deep copy
// owned by the caller.
type Loader struct {
	store QueryStore
	cache TreeCache
}

// NewLoader wires store and cache. A nil cache disables caching.
func NewLoader(store QueryStore, cache TreeCache) *Loader {
	return &Loader{store: store, cache: cache}
}

func (l *Loader) Store() QueryStore { return l.store }

// Load fetches the saved query id and its decoded root group. A stored
// document that no longer decodes is reported as a MalformedDocument
// violation wrapped with the query id.
func (l *Loader) Load(id string) (*SavedQuery, *conditions.Group, error) {
	q, err := l.store.Get(id)
	if err != nil {
		return nil, nil, err
	}

	if l.cache != nil {
		if root, stamp, ok := l.cache.Get(id); ok && stamp.Equal(q.UpdatedAt) {
			logger.Trace("saved query cache hit", "id", id)
			return q, root, nil
		}
	}

	root, err := serialize.Decode(q.Document)
	if err != nil {
		return nil, nil, fmt.Errorf("saved query %s: %w", id, err)
	}
	if l.cache != nil {
		l.cache.Set(id, q.UpdatedAt, root)
	}
	logger.Debug("saved query loaded", "id", id, "name", q.Name)
	return q, root, nil
}

// Save encodes root and stores it as a new query.
func (l *Loader) Save(name, catalog string, root *conditions.Group) (*SavedQuery, error) {
	doc, err := serialize.Encode(root)
	if err != nil {
		return nil, err
	}
	q := &SavedQuery{Name: name, Catalog: catalog, Document: doc}
	if err := l.store.Add(q); err != nil {
		return nil, err
	}
	logger.Info("saved query created", "id", q.ID, "name", name, "catalog", catalog)
	return q, nil
}

// Update replaces a stored query and drops its cached tree.
func (l *Loader) Update(q *SavedQuery) error {
	if l.cache != nil {
		defer l.cache.Invalidate(q.ID)
	}
	return l.store.Update(q)
}

// Delete removes a stored query and drops its cached tree.
func (l *Loader) Delete(id string) error {
	if l.cache != nil {
		defer l.cache.Invalidate(id)
	}
	if err := l.store.Delete(id); err != nil {
		return err
	}
	logger.Info("saved query deleted", "id", id)
	return nil
}
