package cache

import "sync"

// Cache is a lookaside map keyed by string. Entries live until they are
// deleted or the whole cache is cleared; there is no TTL and no size bound.
type Cache[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func New[V any]() *Cache[V] {
	return &Cache[V]{
		m: make(map[string]V),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	v, ok := c.m[key]
	c.mu.RUnlock()

	return v, ok
}

func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	c.m[key] = val
	c.mu.Unlock()
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.m = make(map[string]V)
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.m)
}
