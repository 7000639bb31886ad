package store

import (
	"sync"
	"time"

	"github.com/forumd-dev/forumd/internal/protocol"
)

const (
	defaultCacheTTL = time.Minute
	defaultCacheCap = 4096
)

type cachedResponse struct {
	resp    protocol.Response
	savedAt time.Time
}

// ResponseCache remembers the response produced for a request id so a
// retransmitted mutation is answered from cache instead of being applied
// twice. Entries age out after the TTL; the cache is capacity-bounded so a
// flood of request ids cannot grow it without limit.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	cap     int
	entries map[string]cachedResponse
}

func NewResponseCache(ttl time.Duration, capacity int) *ResponseCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCap
	}
	return &ResponseCache{
		ttl:     ttl,
		cap:     capacity,
		entries: make(map[string]cachedResponse),
	}
}

// Get returns the cached response for id, if still fresh.
func (c *ResponseCache) Get(id string) (*protocol.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if time.Since(entry.savedAt) > c.ttl {
		delete(c.entries, id)
		return nil, false
	}
	resp := entry.resp
	return &resp, true
}

// Put records the response sent for id.
func (c *ResponseCache) Put(id string, resp *protocol.Response) {
	if id == "" || resp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.entries) >= c.cap {
		c.sweep(now)
	}
	if len(c.entries) >= c.cap {
		// Still full after dropping expired entries: evict the oldest.
		var oldestId string
		var oldestAt time.Time
		for id, e := range c.entries {
			if oldestId == "" || e.savedAt.Before(oldestAt) {
				oldestId, oldestAt = id, e.savedAt
			}
		}
		delete(c.entries, oldestId)
	}
	c.entries[id] = cachedResponse{resp: *resp, savedAt: now}
}

// sweep drops expired entries; callers hold the lock.
func (c *ResponseCache) sweep(now time.Time) {
	for id, e := range c.entries {
		if now.Sub(e.savedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
}
