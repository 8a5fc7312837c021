// Package gitstate derives session phase from live repository state,
// fronted by a short-TTL cache so read-heavy surfaces avoid repeated
// subprocess calls.
package gitstate

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTTL bounds how long a cached branch/phase answer is trusted.
// Git state changes out from under us, so this stays short.
const DefaultTTL = 10 * time.Second

type cacheEntry struct {
	value     any
	timestamp time.Time
}

// Cache is a TTL-bounded map keyed by "<kind>:<path>". Expired entries are
// deleted on read. Any component that mutates the repository must
// invalidate the keys it affects.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates a cache with the given TTL; zero means DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Key builds the canonical cache key for a query kind and worktree path.
func Key(kind, path string) string {
	return fmt.Sprintf("%s:%s", kind, path)
}

// Get returns the cached value, or nil on miss or expiry. Expired entries
// are removed.
func (c *Cache) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		return nil
	}
	return entry.value
}

// Set stores a value with the current timestamp.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, timestamp: c.now()}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePath removes every cached kind for a worktree path.
func (c *Cache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	suffix := ":" + path
	for key := range c.entries {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of live entries, counting expired ones that have
// not yet been read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
