package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/insightx/models"
)

// entry holds a cached result with its creation timestamp.
type entry struct {
	result    models.ExtractionResult
	createdAt time.Time
}

// Cache is a simple in-memory cache for successful extraction results.
// Nothing is persisted. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older
// than ttl (1 hour when ttl <= 0).
func New(maxEntries int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from the target URL and the rules version, so
// a rules update never serves text extracted under the old table.
func Key(url, rulesVersion string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(rulesVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a copy of a cached result if it exists and is younger
// than maxAge. maxAge is in milliseconds. If maxAge <= 0, no cache lookup
// is performed.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ExtractionResult, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if time.Since(e.createdAt) > maxAge || time.Since(e.createdAt) > c.ttl {
		return nil, false
	}

	res := e.result
	return &res, true
}

// Set stores a successful result. Failed results are not cached so a
// transient page failure is retried on the next request. If the cache
// is at capacity, a random entry is evicted to make room.
func (c *Cache) Set(key string, res *models.ExtractionResult) {
	if !res.Succeeded() || c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Map iteration is random in Go.
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		result:    *res,
		createdAt: time.Now(),
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// cleanupLoop evicts expired entries every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.evictOlderThan(time.Now().Add(-c.ttl))
	}
}

func (c *Cache) evictOlderThan(cutoff time.Time) {
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}
