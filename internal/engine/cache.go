package engine

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// idleCache is a string-keyed cache whose entries expire after ttl without
// being read or written. Expired entries are purged in the background by the
// underlying LRU; reads never block on eviction.
type idleCache[V any] struct {
	lru *expirable.LRU[string, V]
}

func newIdleCache[V any](ttl time.Duration, onEvict func(key string)) *idleCache[V] {
	var cb expirable.EvictCallback[string, V]
	if onEvict != nil {
		cb = func(key string, _ V) { onEvict(key) }
	}
	return &idleCache[V]{lru: expirable.NewLRU[string, V](0, cb, ttl)}
}

// Get returns the value for key and restarts its idle timer.
func (c *idleCache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.lru.Add(key, v)
	}
	return v, ok
}

func (c *idleCache[V]) Peek(key string) (V, bool) { return c.lru.Peek(key) }

func (c *idleCache[V]) Put(key string, v V) { c.lru.Add(key, v) }

func (c *idleCache[V]) Len() int { return c.lru.Len() }
