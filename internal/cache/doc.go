// Package cache provides the identity map used by containers.
//
// The identity map guarantees that, while an instance is cached, every load
// of the same id returns that instance. Unlike a finalizer-driven cache it
// has an explicit lifecycle: entries leave only through Evict, Clear, or the
// optional LRU capacity, which never drops pinned (dirty) entries.
package cache
