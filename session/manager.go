// Package session hosts editor sessions: each session owns one condition
// tree built against a named field catalog, and every change to it returns
// a fresh Snapshot with previews and violations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/querybuilder/conditions"
	"github.com/liamcoop/querybuilder/evaluate"
	"github.com/liamcoop/querybuilder/fields"
	"github.com/liamcoop/querybuilder/internal/logger"
	"github.com/liamcoop/querybuilder/serialize"
	"github.com/liamcoop/querybuilder/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCatalogNotFound = errors.New("catalog not found")
)

type options struct {
	maxDepth      int
	caseSensitive bool
	workers       int
	loader        *store.Loader
}

type Option func(*options)

// WithMaxDepth sets the maximum group depth of every session tree.
func WithMaxDepth(depth int) Option {
	return func(o *options) { o.maxDepth = depth }
}

// WithCaseSensitive makes text operators respect case when evaluating.
func WithCaseSensitive(sensitive bool) Option {
	return func(o *options) { o.caseSensitive = sensitive }
}

// WithWorkers bounds the goroutines used to filter records. Zero uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLoader enables saving and loading queries.
func WithLoader(l *store.Loader) Option {
	return func(o *options) { o.loader = l }
}

// Manager manages catalogs and the sessions built on them.
type Manager struct {
	catalogs map[string]*fields.Catalog
	sessions map[string]*Session
	config   options
	mu       sync.RWMutex
}

func NewManager(opts ...Option) *Manager {
	cfg := options{maxDepth: conditions.DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		catalogs: make(map[string]*fields.Catalog),
		sessions: make(map[string]*Session),
		config:   cfg,
	}
}

// RegisterCatalog adds or replaces a catalog. Existing sessions keep the
// catalog they were created with.
func (m *Manager) RegisterCatalog(name string, cat *fields.Catalog) {
	m.mu.Lock()
	m.catalogs[name] = cat
	m.mu.Unlock()
	logger.Info("catalog registered", "catalog", name, "fields", cat.Len())
}

func (m *Manager) Catalog(name string) (*fields.Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cat, ok := m.catalogs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, name)
	}
	return cat, nil
}

// CatalogNames returns registered catalog names in sorted order.
func (m *Manager) CatalogNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.catalogs))
	for name := range m.catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Loader() *store.Loader { return m.config.loader }

// Create starts a session with an empty And root.
func (m *Manager) Create(catalog string) (*Session, error) {
	return m.create(catalog, nil, "empty")
}

// CreateFromDocument starts a session from a canonical JSON document. The
// document is checked for shape only; catalog problems show up as
// violations in the session's snapshots.
func (m *Manager) CreateFromDocument(catalog string, doc []byte) (*Session, error) {
	root, err := serialize.Decode(doc)
	if err != nil {
		return nil, err
	}
	return m.create(catalog, root, "document")
}

// CreateFromSaved starts a session from a saved query. The session gets its
// own copy of the tree. A stored document that no longer decodes falls back
// to an empty root.
func (m *Manager) CreateFromSaved(id string) (*Session, error) {
	if m.config.loader == nil {
		return nil, errors.New("no saved-query store configured")
	}
	q, root, err := m.config.loader.Load(id)
	if errors.Is(err, conditions.ErrMalformedDocument) {
		logger.Info("saved query document is malformed, starting empty", "id", id, "error", err)
		q, err = m.config.loader.Store().Get(id)
		root = nil
	}
	if err != nil {
		return nil, err
	}
	return m.create(q.Catalog, root, "saved:"+id)
}

func (m *Manager) create(catalog string, root *conditions.Group, source string) (*Session, error) {
	cat, err := m.Catalog(catalog)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Catalog:   catalog,
		CreatedAt: now,
		tree:      conditions.FromRoot(cat, root, conditions.WithMaxDepth(m.config.maxDepth)),
		config:    &m.config,
		loader:    m.config.loader,
		lastUsed:  now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.Info("session created", "session", s.ID, "catalog", catalog, "source", source)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close discards a session and its tree.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	logger.Info("session closed", "session", id)
	return nil
}

// CloseIdle closes sessions unused for longer than idle and returns how many
// were closed.
func (m *Manager) CloseIdle(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	m.mu.Lock()
	var closed []string
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			closed = append(closed, id)
		}
	}
	m.mu.Unlock()

	for _, id := range closed {
		logger.Debug("idle session closed", "session", id)
	}
	return len(closed)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Evaluate decodes doc against catalog, compiles it and filters records
// without creating a session.
func (m *Manager) Evaluate(ctx context.Context, catalog string, doc []byte, records []evaluate.MapRecord) ([]evaluate.MapRecord, error) {
	cat, err := m.Catalog(catalog)
	if err != nil {
		return nil, err
	}
	root, err := serialize.Decode(doc)
	if err != nil {
		return nil, err
	}
	q, err := evaluate.Compile(
		conditions.FromRoot(cat, root, conditions.WithMaxDepth(m.config.maxDepth)),
		evaluate.WithCaseSensitive(m.config.caseSensitive),
	)
	if err != nil {
		return nil, err
	}
	return evaluate.FilterParallel(ctx, records, q.Predicate(), m.config.workers)
}
