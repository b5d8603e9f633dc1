package storage

import (
	"sync"
	"time"
)

// schemaCache is a bounded TTL cache for resolved table schemas. A cache
// hit and a cold resolution return identical values, so eviction only
// costs latency.
type schemaCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]schemaEntry
}

type schemaEntry struct {
	value   string
	expires time.Time
}

func newSchemaCache(ttl time.Duration, maxEntries int) *schemaCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &schemaCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]schemaEntry),
	}
}

func (c *schemaCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *schemaCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = schemaEntry{value: value, expires: time.Now().Add(c.ttl)}
}

// evictLocked drops expired entries, then the soonest-to-expire one if the
// cache is still full.
func (c *schemaCache) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	delete(c.entries, oldestKey)
}
