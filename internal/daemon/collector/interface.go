// Package collector provides background workers that feed changes into the
// daemon store.
package collector

import (
	"context"

	"github.com/grovetools/causes/internal/daemon/store"
)

// Collector is a background worker that watches an upstream and emits
// changes.
type Collector interface {
	// Name returns the collector's name for logging.
	Name() string

	// Run starts the collector. It should block until context is canceled.
	// It emits changes via the changes channel and may read the store for
	// context.
	Run(ctx context.Context, st *store.Store, changes chan<- store.Change) error
}
