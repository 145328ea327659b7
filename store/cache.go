package store

import (
	"sync"
	"time"

	"github.com/liamcoop/querybuilder/conditions"
)

// TreeCache holds decoded saved-query trees by id so a load does not have to
// decode the document again. Implementations hand out deep copies: a caller
// may mutate what it gets without affecting the cache or other callers.
type TreeCache interface {
	// Get returns the cached tree for id and the UpdatedAt stamp of the
	// query it was decoded from. ok is false on a miss or an expired entry.
	Get(id string) (root *conditions.Group, stamp time.Time, ok bool)

	// Set caches a copy of root for id.
	Set(id string, stamp time.Time, root *conditions.Group)

	// Invalidate drops the entry for id.
	Invalidate(id string)

	// Clear drops every entry.
	Clear()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

type cacheEntry struct {
	root     *conditions.Group
	stamp    time.Time
	cachedAt time.Time
}

// InMemoryTreeCache is a map-backed TreeCache, safe for concurrent use.
type InMemoryTreeCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

func NewInMemoryTreeCache(config CacheConfig) *InMemoryTreeCache {
	return &InMemoryTreeCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

func (c *InMemoryTreeCache) Get(id string) (*conditions.Group, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, time.Time{}, false
	}
	if c.config.TTL > 0 && c.now().Sub(e.cachedAt) > c.config.TTL {
		return nil, time.Time{}, false
	}
	return conditions.CloneGroup(e.root), e.stamp, true
}

func (c *InMemoryTreeCache) Set(id string, stamp time.Time, root *conditions.Group) {
	if root == nil {
		return
	}
	cp := conditions.CloneGroup(root)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{root: cp, stamp: stamp, cachedAt: c.now()}
}

func (c *InMemoryTreeCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *InMemoryTreeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, expired ones included.
func (c *InMemoryTreeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
