package collection

import (
	"sync"

	"github.com/grovetools/causes/pkg/models"
)

// Cache is the authoritative local copy of one collection.
// It is thread-safe; ReplaceAll swaps the whole content in one step.
type Cache[T models.Record] struct {
	mu         sync.RWMutex
	collection string
	seq        uint64
	order      []T
	byID       map[string]int // index into order
}

// NewCache creates an empty cache.
func NewCache[T models.Record]() *Cache[T] {
	return &Cache[T]{
		byID: make(map[string]int),
	}
}

// ReplaceAll makes the cache equal to s. Snapshots with duplicate ids are
// rejected and leave the cache untouched.
func (c *Cache[T]) ReplaceAll(s Snapshot[T]) error {
	if err := s.Validate(); err != nil {
		return err
	}

	// Build the new content off-lock so readers only wait for the swap.
	order := make([]T, len(s.Items))
	copy(order, s.Items)
	byID := make(map[string]int, len(order))
	for i, item := range order {
		byID[item.GetID()] = i
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.collection = s.Collection
	c.seq = s.Seq
	c.order = order
	c.byID = byID
	return nil
}

// Snapshot returns a copy of the current content in snapshot order.
func (c *Cache[T]) Snapshot() Snapshot[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := make([]T, len(c.order))
	copy(items, c.order)
	return Snapshot[T]{Collection: c.collection, Seq: c.seq, Items: items}
}

// Get returns the entity with the given id.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.order[i], true
}

// Len returns the number of cached entities.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Reset empties the cache.
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collection = ""
	c.seq = 0
	c.order = nil
	c.byID = make(map[string]int)
}
