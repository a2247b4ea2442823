// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package serapi

import "container/list"

// defaultCacheSize bounds the per-session AST and printed-term caches.
const defaultCacheSize = 4096

// lru is a bounded string-keyed map with least-recently-used eviction.
// Entries are never invalidated: both session caches key on inputs whose
// results cannot change within a session.
type lru[V any] struct {
	max   int
	order *list.List
	items map[string]*list.Element
}

type lruEntry[V any] struct {
	key string
	val V
}

func newLRU[V any](max int) *lru[V] {
	return &lru[V]{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// get returns the cached value and refreshes its recency.
func (c *lru[V]) get(key string) (V, bool) {
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(lruEntry[V]).val, true
	}
	var zero V
	return zero, false
}

// put inserts or refreshes a value, evicting the stalest entry when full.
func (c *lru[V]) put(key string, val V) {
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value = lruEntry[V]{key, val}
		return
	}
	if c.order.Len() >= c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(lruEntry[V]).key)
	}
	c.items[key] = c.order.PushFront(lruEntry[V]{key, val})
}

func (c *lru[V]) len() int { return c.order.Len() }
