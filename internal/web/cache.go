package web

import (
	"sync"
	"time"
)

// responseCache holds computed responses keyed by endpoint and query.
type responseCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cachedResponse
}

type cachedResponse struct {
	body      any
	updatedAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{ttl: ttl, entries: make(map[string]cachedResponse)}
}

func (c *responseCache) get(key string, now time.Time) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || now.Sub(e.updatedAt) >= c.ttl {
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) put(key string, body any, now time.Time) {
	c.mu.Lock()
	c.entries[key] = cachedResponse{body: body, updatedAt: now}
	c.mu.Unlock()
}

// clear drops every entry, e.g. after a manual refresh.
func (c *responseCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cachedResponse)
	c.mu.Unlock()
}
