package paths

import (
	"sync"

	"mediacat/internal/constants"
)

// Cache provides thread-safe caching for storage root translations
type Cache struct {
	cache map[string]string
	mu    sync.RWMutex
	hits  uint64
	total uint64
}

// NewCache creates a new translation cache
func NewCache() *Cache {
	return &Cache{
		cache: make(map[string]string, constants.PathCacheSize),
	}
}

// Get retrieves a cached translation
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	val, ok := c.cache[key]
	if ok {
		c.hits++
	}
	return val, ok
}

// Set stores a translation in the cache
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// If cache is too large, clear it (simple eviction strategy)
	if len(c.cache) >= constants.PathCacheSize {
		c.cache = make(map[string]string, constants.PathCacheSize)
	}

	c.cache[key] = value
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]string, constants.PathCacheSize)
	c.hits = 0
	c.total = 0
}

// Stats returns hit statistics
func (c *Cache) Stats() (hits, total uint64, hitRate float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.total == 0 {
		return c.hits, c.total, 0
	}
	return c.hits, c.total, float64(c.hits) / float64(c.total)
}
