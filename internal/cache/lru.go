package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// IdentityMap maps element ids to their single materialized instance.
//
// With capacity 0 the map is unbounded and every instance stays cached until
// Evict or Clear. With a positive capacity the least recently used entries
// are dropped once the map grows past it, skipping entries that pinned
// reports as pinned (objects with unsaved changes).
type IdentityMap[V any] struct {
	mu        sync.Mutex
	capacity  int
	items     map[uint64]*list.Element
	evictList *list.List
	pinned    func(V) bool

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V any] struct {
	id    uint64
	value V
}

// NewIdentityMap creates a map holding at most capacity unpinned entries.
// pinned may be nil.
func NewIdentityMap[V any](capacity int, pinned func(V) bool) *IdentityMap[V] {
	if capacity < 0 {
		capacity = 0
	}
	return &IdentityMap[V]{
		capacity:  capacity,
		items:     make(map[uint64]*list.Element),
		evictList: list.New(),
		pinned:    pinned,
	}
}

// Get returns the cached instance for id.
func (c *IdentityMap[V]) Get(id uint64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[id]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put caches v under id, replacing any previous instance.
func (c *IdentityMap[V]) Put(id uint64, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[id]; ok {
		ent.Value.(*entry[V]).value = v
		c.evictList.MoveToFront(ent)
		return
	}
	c.items[id] = c.evictList.PushFront(&entry[V]{id: id, value: v})
	c.evict()
}

// Evict drops id from the map. It reports whether an entry was removed.
func (c *IdentityMap[V]) Evict(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[id]
	if !ok {
		return false
	}
	c.evictList.Remove(ent)
	delete(c.items, id)
	return true
}

// Clear drops every entry.
func (c *IdentityMap[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uint64]*list.Element)
	c.evictList.Init()
}

// Len returns the number of cached instances.
func (c *IdentityMap[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Range calls fn for every cached instance, most recently used first,
// until fn returns false.
func (c *IdentityMap[V]) Range(fn func(id uint64, v V) bool) {
	c.mu.Lock()
	values := make([]*entry[V], 0, c.evictList.Len())
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		values = append(values, e.Value.(*entry[V]))
	}
	c.mu.Unlock()

	for _, e := range values {
		if !fn(e.id, e.value) {
			return
		}
	}
}

// Stats returns hit and miss counters.
func (c *IdentityMap[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *IdentityMap[V]) evict() {
	if c.capacity == 0 {
		return
	}
	element := c.evictList.Back()
	for len(c.items) > c.capacity && element != nil {
		prev := element.Prev()
		kv := element.Value.(*entry[V])
		if c.pinned == nil || !c.pinned(kv.value) {
			c.evictList.Remove(element)
			delete(c.items, kv.id)
		}
		element = prev
	}
}
