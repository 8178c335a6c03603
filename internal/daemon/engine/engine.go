// Package engine runs the daemon's collectors and funnels their changes
// into the store.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/grovetools/causes/internal/daemon/collector"
	"github.com/grovetools/causes/internal/daemon/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const changeBuffer = 100

// Stats counts the changes the engine has seen.
type Stats struct {
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
}

// Engine owns the store writer. Collectors only send changes; a single
// goroutine applies them, so a collection's sequence numbers follow the
// order changes arrive in.
type Engine struct {
	store      *store.Store
	collectors []collector.Collector
	logger     *logrus.Entry

	applied  atomic.Uint64
	rejected atomic.Uint64
}

func New(st *store.Store, logger *logrus.Entry) *Engine {
	return &Engine{store: st, logger: logger}
}

// Register adds a collector. It must be called before Start.
func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Start runs every collector until ctx is done. A failing collector is
// logged and the others keep running.
func (e *Engine) Start(ctx context.Context) {
	changes := make(chan store.Change, changeBuffer)

	var g errgroup.Group
	g.Go(func() error {
		e.consume(ctx, changes)
		return nil
	})
	for _, c := range e.collectors {
		log := e.logger.WithField("collector", c.Name())
		g.Go(func() error {
			log.Info("Starting collector")
			if err := c.Run(ctx, e.store, changes); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Collector failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) consume(ctx context.Context, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-changes:
			e.apply(c)
		}
	}
}

func (e *Engine) apply(c store.Change) {
	log := e.logger.WithFields(logrus.Fields{"collection": c.Collection, "source": c.Source, "type": c.Type})
	u, err := e.store.ApplyChange(c)
	if err != nil {
		e.rejected.Add(1)
		log.WithError(err).Warn("Change rejected")
		return
	}
	e.applied.Add(1)
	log.WithField("seq", u.Seq).Debug("Change applied")
}

// Stats returns the counters so far.
func (e *Engine) Stats() Stats {
	return Stats{Applied: e.applied.Load(), Rejected: e.rejected.Load()}
}

func (e *Engine) Store() *store.Store {
	return e.store
}
