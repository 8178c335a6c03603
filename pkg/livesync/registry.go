package livesync

import (
	"sort"
	"sync"

	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
)

// Registry shares one Controller per collection name between several
// views. The first Acquire starts the controller, the last release stops it.
type Registry[T models.Record] struct {
	src  collection.Source[T]
	opts []Option

	mu      sync.Mutex
	entries map[string]*registryEntry[T]
}

type registryEntry[T models.Record] struct {
	ctrl *Controller[T]
	refs int
}

// NewRegistry creates a registry whose controllers subscribe to src. opts
// apply to every controller it creates.
func NewRegistry[T models.Record](src collection.Source[T], opts ...Option) *Registry[T] {
	return &Registry[T]{
		src:     src,
		opts:    opts,
		entries: make(map[string]*registryEntry[T]),
	}
}

// Acquire returns the shared controller for name, started. The release func
// must be called when the caller is done; it is idempotent.
func (r *Registry[T]) Acquire(name string) (*Controller[T], func()) {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok {
		entry = &registryEntry[T]{ctrl: New(name, r.src, r.opts...)}
		r.entries[name] = entry
	}
	entry.refs++
	if entry.refs == 1 {
		// Start from Idle cannot fail.
		_ = entry.ctrl.Start()
	}
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { r.release(name, entry) })
	}
	return entry.ctrl, release
}

func (r *Registry[T]) release(name string, entry *registryEntry[T]) {
	r.mu.Lock()
	entry.refs--
	last := entry.refs == 0
	if last && r.entries[name] == entry {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if last {
		entry.ctrl.Stop()
	}
}

// Active returns the names of collections with at least one holder.
func (r *Registry[T]) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refs returns the number of holders of name.
func (r *Registry[T]) Refs(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[name]; ok {
		return entry.refs
	}
	return 0
}

// Close stops every controller regardless of outstanding holders.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry[T])
	r.mu.Unlock()

	for _, entry := range entries {
		entry.ctrl.Stop()
	}
}
