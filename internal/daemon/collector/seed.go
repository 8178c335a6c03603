package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/internal/daemon/store"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/filesource"
	"github.com/sirupsen/logrus"
)

// SeedSource is the Change.Source of seed imports.
const SeedSource = "seed"

// seedDoc carries a raw seed document through the file source. Only the id
// is checked; the daemon stores documents verbatim.
type seedDoc struct {
	id  string
	raw json.RawMessage
}

func (d seedDoc) GetID() string          { return d.id }
func (d seedDoc) GetDisplayName() string { return "" }
func (d seedDoc) GetDescription() string { return "" }
func (d seedDoc) GetCategory() string    { return "" }

func decodeSeed(raw json.RawMessage) (seedDoc, error) {
	var head struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return seedDoc{}, errors.MalformedRecord("", err)
	}
	if head.ID == nil || *head.ID == "" {
		return seedDoc{}, errors.MalformedRecord("", fmt.Errorf("seed document has no string id"))
	}
	return seedDoc{id: *head.ID, raw: raw}, nil
}

// SeedCollector mirrors a directory of collection files into the store.
// Every file is watched; each reload replaces the collection. New files are
// picked up on the next rescan.
type SeedCollector struct {
	dir      string
	interval time.Duration
	debounce time.Duration
	logger   *logrus.Entry
}

// NewSeedCollector creates a SeedCollector on dir.
func NewSeedCollector(dir string, logger *logrus.Entry) *SeedCollector {
	return &SeedCollector{
		dir:      dir,
		interval: 5 * time.Second,
		debounce: filesource.DefaultDebounce,
		logger:   logger,
	}
}

// WithInterval sets how often the directory is rescanned for new files.
func (c *SeedCollector) WithInterval(d time.Duration) *SeedCollector {
	if d > 0 {
		c.interval = d
	}
	return c
}

// Name returns the collector's name.
func (c *SeedCollector) Name() string { return "seed" }

// Run watches the seed directory until ctx is canceled.
func (c *SeedCollector) Run(ctx context.Context, st *store.Store, changes chan<- store.Change) error {
	src := filesource.New(c.dir, decodeSeed,
		filesource.WithDebounce(c.debounce),
		filesource.WithLogger(c.logger.WithField("dir", c.dir)))

	subs := make(map[string]collection.Subscription)
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	scan := func() {
		names, err := filesource.Collections(c.dir)
		if err != nil {
			c.logger.WithError(err).Warn("Cannot list seed directory")
			return
		}
		for _, name := range names {
			if _, ok := subs[name]; ok {
				continue
			}
			c.logger.WithField("collection", name).Info("Watching seed collection")
			subs[name] = src.Subscribe(name, c.handler(ctx, name, changes))
		}
	}

	scan()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		}
	}
}

func (c *SeedCollector) handler(ctx context.Context, name string, changes chan<- store.Change) collection.Handler[seedDoc] {
	log := c.logger.WithField("collection", name)
	return collection.Handler[seedDoc]{
		OnSnapshot: func(s collection.Snapshot[seedDoc]) {
			docs := make([]json.RawMessage, len(s.Items))
			for i, d := range s.Items {
				docs[i] = d.raw
			}
			select {
			case changes <- store.Change{Type: store.ChangeReplace, Collection: name, Documents: docs, Source: SeedSource}:
				log.WithField("documents", len(docs)).Debug("Seed collection changed")
			case <-ctx.Done():
			}
		},
		OnError: func(err error) {
			// The store keeps the last imported state.
			log.WithError(err).Warn("Seed collection unavailable")
		},
	}
}
