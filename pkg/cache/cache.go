// Package cache implements a bounded cache of non-owning handles. The cache
// never keeps a value alive on its own; values dropped by every other
// holder disappear from it on the next prune.
package cache

import (
	"weak"
)

// Cache maps keys to weak pointers. Dead entries are pruned once the map
// grows past maxSize.
type Cache[K comparable, V any] struct {
	maxSize int
	items   map[K]weak.Pointer[V]
}

// New returns an empty cache which prunes itself when it holds more than
// maxSize entries.
func New[K comparable, V any](maxSize int) *Cache[K, V] {
	return &Cache[K, V]{
		maxSize: maxSize,
		items:   make(map[K]weak.Pointer[V]),
	}
}

// Get returns the value cached under key if it is still alive.
func (c *Cache[K, V]) Get(key K) (*V, bool) {
	wp, ok := c.items[key]
	if !ok {
		return nil, false
	}

	v := wp.Value()
	if v == nil {
		delete(c.items, key)
		return nil, false
	}
	return v, true
}

// Add caches val under key, replacing what was there.
func (c *Cache[K, V]) Add(key K, val *V) {
	c.items[key] = weak.Make(val)
	if len(c.items) > c.maxSize {
		c.Prune()
	}
}

// Remove drops key from the cache.
func (c *Cache[K, V]) Remove(key K) {
	delete(c.items, key)
}

// Prune drops the entries whose values were collected and returns how many
// entries were dropped.
func (c *Cache[K, V]) Prune() int {
	n := 0
	for key, wp := range c.items {
		if wp.Value() == nil {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// Len returns the number of entries, dead ones included.
func (c *Cache[K, V]) Len() int {
	return len(c.items)
}
