package server

import (
	"sync"
	"time"
)

// seenCache remembers message ids for ttl so redelivered events are dropped
type seenCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time // msgID -> timestamp
	now  func() time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// markNew records id and reports whether it was not seen before.
// Expired records are swept on every call.
func (c *seenCache) markNew(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-c.ttl)
	for k, ts := range c.seen {
		if ts.Before(cutoff) {
			delete(c.seen, k)
		}
	}

	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = now
	return true
}

func (c *seenCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
