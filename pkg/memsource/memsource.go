// Package memsource is an in-process collection.Source. Collections are set
// and failed directly by the owner, which makes it the source of choice for
// tests, demos and embedding the sync engine without a daemon.
package memsource

import (
	"encoding/json"
	"sync"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/logging"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
	"github.com/sirupsen/logrus"
)

// Source holds collections in memory and notifies subscribers of every
// change, in order, on a goroutine per subscription.
type Source[T models.Record] struct {
	mu          sync.Mutex
	decode      models.Decoder[T]
	logger      *logrus.Entry
	collections map[string]collection.Snapshot[T]
	subscribers map[*subscriber[T]]struct{}
}

type event[T models.Record] struct {
	snap collection.Snapshot[T]
	err  error
}

type subscriber[T models.Record] struct {
	name       string
	dispatcher *collection.Dispatcher[T]

	mu    sync.Mutex
	queue []event[T]
	wake  chan struct{}
}

// New creates an empty source. decode is only needed for SetRaw.
func New[T models.Record](decode models.Decoder[T]) *Source[T] {
	return &Source[T]{
		decode:      decode,
		logger:      logging.NewLogger("memsource"),
		collections: make(map[string]collection.Snapshot[T]),
		subscribers: make(map[*subscriber[T]]struct{}),
	}
}

// WithLogger replaces the source logger.
func (s *Source[T]) WithLogger(logger *logrus.Entry) *Source[T] {
	s.logger = logger
	return s
}

// Subscribe implements collection.Source. If the collection has been set,
// its current snapshot is the first notification.
func (s *Source[T]) Subscribe(name string, h collection.Handler[T]) collection.Subscription {
	sub := &subscriber[T]{name: name, wake: make(chan struct{}, 1)}
	sub.dispatcher = collection.NewDispatcher(h, func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	if snap, ok := s.collections[name]; ok {
		sub.push(event[T]{snap: snap})
	}
	s.mu.Unlock()

	go sub.run()
	return sub.dispatcher
}

// Set replaces the contents of a collection. Later duplicates of an id are
// dropped. Every call is a new sequence number.
func (s *Source[T]) Set(name string, items ...T) collection.Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, dropped := collection.NewSnapshot(name, s.collections[name].Seq+1, append([]T(nil), items...))
	if dropped > 0 {
		s.logger.WithFields(logrus.Fields{"collection": name, "dropped": dropped}).Debug("Dropped duplicate ids")
	}
	s.collections[name] = snap
	s.broadcast(name, event[T]{snap: snap})
	return snap
}

// SetRaw decodes raw documents and sets the collection. Malformed documents
// are dropped and the rest is applied.
func (s *Source[T]) SetRaw(name string, raws ...json.RawMessage) (collection.Snapshot[T], error) {
	if s.decode == nil {
		return collection.Snapshot[T]{}, errors.Internal("memsource has no decoder", nil)
	}
	decoded, dropped := collection.Decode(name, 0, raws, s.decode)
	for _, err := range dropped {
		s.logger.WithError(err).WithField("collection", name).Debug("Dropped document")
	}
	return s.Set(name, decoded.Items...), nil
}

// Fail notifies the subscribers of name with err. The stored contents are
// untouched.
func (s *Source[T]) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast(name, event[T]{err: err})
}

// Snapshot returns the current contents of a collection.
func (s *Source[T]) Snapshot(name string) (collection.Snapshot[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.collections[name]
	return snap, ok
}

// Subscribers returns the number of live subscriptions to name.
func (s *Source[T]) Subscribers(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sub := range s.subscribers {
		if sub.name == name {
			n++
		}
	}
	return n
}

// broadcast must be called with s.mu held.
func (s *Source[T]) broadcast(name string, ev event[T]) {
	for sub := range s.subscribers {
		if sub.name == name {
			sub.push(ev)
		}
	}
}

func (sub *subscriber[T]) push(ev event[T]) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber[T]) run() {
	for {
		select {
		case <-sub.dispatcher.Done():
			return
		case <-sub.wake:
		}

		sub.mu.Lock()
		pending := sub.queue
		sub.queue = nil
		sub.mu.Unlock()

		for _, ev := range pending {
			var delivered bool
			if ev.err != nil {
				delivered = sub.dispatcher.Error(ev.err)
			} else {
				delivered = sub.dispatcher.Snapshot(ev.snap)
			}
			if !delivered {
				return
			}
		}
	}
}
