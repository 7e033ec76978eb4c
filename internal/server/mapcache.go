package server

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MapCache tracks rendered map images on disk: a concurrent-safe LRU cache
// with TTL expiration keyed by map id, plus a "latest" slot for the bare
// /map endpoint. Evicted and expired entries have their files removed.
type MapCache struct {
	mu         sync.Mutex
	entries    map[string]*mapEntry
	order      []string // LRU order: front=oldest, back=newest
	latest     string
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

type mapEntry struct {
	path      string
	createdAt time.Time
}

// MapCacheStats contains cache performance statistics.
type MapCacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewMapCache creates a MapCache with the given capacity and TTL.
func NewMapCache(maxEntries int, ttl time.Duration) *MapCache {
	return &MapCache{
		entries:    make(map[string]*mapEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Put registers a rendered map file under id and marks it latest, evicting
// the oldest entry if at capacity.
func (c *MapCache) Put(id, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; ok {
		c.entries[id] = &mapEntry{path: path, createdAt: time.Now()}
		c.removeFromOrder(id)
		c.order = append(c.order, id)
		c.latest = id
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.dropEntry(oldest)
	}

	c.entries[id] = &mapEntry{path: path, createdAt: time.Now()}
	c.order = append(c.order, id)
	c.latest = id
}

// Get returns the file path for a map id, or "" on miss or expiration.
func (c *MapCache) Get(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(id)
}

// Latest returns the file path of the most recently registered map, or "".
func (c *MapCache) Latest() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest == "" {
		c.misses.Add(1)
		return ""
	}
	return c.get(c.latest)
}

// get implements lookup with TTL eviction. Caller holds mu.
func (c *MapCache) get(id string) string {
	entry, ok := c.entries[id]
	if !ok {
		c.misses.Add(1)
		return ""
	}

	if time.Since(entry.createdAt) > c.ttl {
		c.removeFromOrder(id)
		c.dropEntry(id)
		c.misses.Add(1)
		return ""
	}

	// Move to back (most recently used).
	c.removeFromOrder(id)
	c.order = append(c.order, id)
	c.hits.Add(1)
	return entry.path
}

// Stats returns cache performance statistics.
func (c *MapCache) Stats() MapCacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return MapCacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// dropEntry removes an entry and its backing file. Caller holds mu.
func (c *MapCache) dropEntry(id string) {
	entry, ok := c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	if c.latest == id {
		c.latest = ""
	}
	if entry.path != "" {
		if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
			zap.L().Debug("map cache: remove evicted file", zap.String("path", entry.path), zap.Error(err))
		}
	}
}

// removeFromOrder removes an id from the LRU order slice.
func (c *MapCache) removeFromOrder(id string) {
	for i, k := range c.order {
		if k == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
