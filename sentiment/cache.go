package sentiment

import (
	"sync"

	"github.com/streamsense-live/backend/telemetry"
)

// textCache is a bounded map from exact message text to its classification.
// Insertion order is tracked so that, when the cache is full, the oldest 20%
// of entries are dropped in one sweep. The capacity check happens before
// insert, so the cache briefly sits at capacity rather than above it.
type textCache struct {
	mu       sync.Mutex
	capacity int
	results  map[string]Result
	order    []string
}

func newTextCache(capacity int) *textCache {
	return &textCache{
		capacity: capacity,
		results:  make(map[string]Result, capacity),
	}
}

func (c *textCache) get(text string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[text]
	if ok {
		telemetry.IncCacheHit()
	} else {
		telemetry.IncCacheMiss()
	}
	return r, ok
}

func (c *textCache) put(text string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.results[text]; ok {
		c.results[text] = r
		return
	}
	if len(c.results) >= c.capacity {
		c.evictOldest()
	}
	c.results[text] = r
	c.order = append(c.order, text)
}

// evictOldest drops the first fifth of the insertion order. Caller holds mu.
func (c *textCache) evictOldest() {
	n := c.capacity / 5
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, text := range c.order[:n] {
		delete(c.results, text)
	}
	c.order = append(c.order[:0], c.order[n:]...)
	telemetry.AddCacheEvictions(n)
}

func (c *textCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
