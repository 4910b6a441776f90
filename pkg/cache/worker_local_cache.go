package cache

import (
	"sync"
	"time"
)

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// LocalCache is an in-process byte cache with TTL and oldest-first eviction.
type LocalCache struct {
	maxSize int
	ttl     time.Duration
	items   map[string]*cacheEntry
	order   []string // insertion order
	mu      sync.Mutex
	now     func() time.Time
}

// NewLocalCache creates a new local cache. Expired entries are dropped lazily.
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LocalCache{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		now:     time.Now,
	}
}

// Get retrieves value from cache.
func (c *LocalCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeLocked(key)
		return nil, false
	}
	return entry.data, true
}

// Set stores value in cache, evicting the oldest entry at capacity.
func (c *LocalCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; exists {
		c.removeLocked(key)
	}
	if len(c.items) >= c.maxSize && len(c.order) > 0 {
		c.removeLocked(c.order[0])
	}

	c.items[key] = &cacheEntry{
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}
	c.order = append(c.order, key)
}

func (c *LocalCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Len counts entries including expired ones not yet dropped.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LocalCache) removeLocked(key string) {
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
