package cache

import (
	"sync"
	"time"
)

// DefaultTTL applies when a Cache is constructed with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value    any
	inserted time.Time
}

// Cache is a process-local TTL key-value store. Entries expire lazily on
// read. The mutex guards concurrent CLI/service access; there is no eviction
// beyond expiry and Clear.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	store map[string]entry
	now   func() time.Time
}

// New constructs a Cache with the given TTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:   ttl,
		store: make(map[string]entry),
		now:   time.Now,
	}
}

// Get returns the cached value for key, evicting and reporting a miss when
// the entry is older than the TTL.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.inserted) >= c.ttl {
		delete(c.store, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the current insertion time.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry{value: value, inserted: c.now()}
}

// Clear empties the store.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]entry)
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}
