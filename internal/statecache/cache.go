// Package statecache holds read-mostly snapshots of world and casino state
// for HTTP readers. The orchestrator is the only writer.
package statecache

import (
	"sync/atomic"
	"time"
)

// Snapshot is a published value and the time it was stored.
type Snapshot[T any] struct {
	Value     T
	UpdatedAt time.Time
}

// Cache publishes snapshots with an atomic pointer swap. Readers never block.
type Cache[T any] struct {
	current atomic.Pointer[Snapshot[T]]
	now     func() time.Time
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{now: time.Now}
}

// Store publishes v. v must not be mutated afterwards.
func (c *Cache[T]) Store(v T) {
	c.current.Store(&Snapshot[T]{Value: v, UpdatedAt: c.now().UTC()})
}

// Load returns the latest snapshot, or false if nothing was stored yet.
func (c *Cache[T]) Load() (Snapshot[T], bool) {
	s := c.current.Load()
	if s == nil {
		return Snapshot[T]{}, false
	}
	return *s, true
}
