// Package imagecache bounds the number of preview images the client keeps.
//
// A Cache is built once in main and handed to whatever needs it. It only
// tracks keys. DiskStore uses file names in its directory as keys and
// removes the files when the Cache evicts them.
package imagecache

import "sync"

// Cache tracks at most capacity keys under an EvictionPolicy.
type Cache struct {
	mu       sync.Mutex
	capacity int
	policy   EvictionPolicy
	onEvict  func(key string)
}

type Option func(*Cache)

// WithEvictHandler registers fn to run for every key that leaves the cache,
// whether through capacity pressure, Evict or Clear. fn runs without the
// cache lock held.
func WithEvictHandler(fn func(key string)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// New creates a Cache. capacity below 1 is treated as 1.
func New(capacity int, policy EvictionPolicy, opts ...Option) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	c := &Cache{capacity: capacity, policy: policy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Track records an access to key and evicts until the cache fits its
// capacity. It returns the evicted keys.
func (c *Cache) Track(key string) []string {
	c.mu.Lock()
	c.policy.Touch(key)
	var evicted []string
	for c.policy.Len() > c.capacity {
		victim, ok := c.policy.Victim()
		if !ok {
			break
		}
		c.policy.Remove(victim)
		evicted = append(evicted, victim)
	}
	c.mu.Unlock()

	c.notify(evicted...)
	return evicted
}

// Evict removes key and reports whether it was tracked.
func (c *Cache) Evict(key string) bool {
	c.mu.Lock()
	before := c.policy.Len()
	c.policy.Remove(key)
	removed := c.policy.Len() < before
	c.mu.Unlock()

	if removed {
		c.notify(key)
	}
	return removed
}

// Clear removes every key.
func (c *Cache) Clear() {
	c.mu.Lock()
	var all []string
	for {
		victim, ok := c.policy.Victim()
		if !ok {
			break
		}
		c.policy.Remove(victim)
		all = append(all, victim)
	}
	c.policy.Reset()
	c.mu.Unlock()

	c.notify(all...)
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.Len()
}

func (c *Cache) notify(keys ...string) {
	if c.onEvict == nil {
		return
	}
	for _, k := range keys {
		c.onEvict(k)
	}
}
