package livesync

import (
	"sync"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/logging"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/query"
	"github.com/sirupsen/logrus"
)

// Controller owns one subscription to a named collection, the cache it
// feeds and the filtered view derived from both.
//
// All state changes, whether triggered by the caller or by the source, are
// serialized on a single mutex. Source callbacks carry the generation of the
// subscription that produced them; once Stop or a replacing Start bumps the
// generation, late callbacks are dropped without touching the cache.
type Controller[T models.Record] struct {
	name   string
	src    collection.Source[T]
	logger *logrus.Entry

	mu      sync.Mutex
	state   State
	params  query.Params
	cache   *collection.Cache[T]
	view    View[T]
	sub     collection.Subscription
	gen     uint64
	lastSeq uint64

	watchers    map[int]chan View[T]
	nextWatcher int
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	logger *logrus.Entry
	params query.Params
}

// WithLogger sets the logger used for lifecycle and dropped-notification
// messages.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.logger = logger }
}

// WithParams sets the initial query. Invalid params are ignored.
func WithParams(p query.Params) Option {
	return func(o *options) { o.params = p }
}

// New creates an idle controller for the named collection.
func New[T models.Record](name string, src collection.Source[T], opts ...Option) *Controller[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger("livesync")
	}
	if o.params.Validate() != nil {
		o.params = query.All()
	}

	c := &Controller[T]{
		name:     name,
		src:      src,
		logger:   o.logger.WithField("collection", name),
		params:   o.params,
		cache:    collection.NewCache[T](),
		watchers: make(map[int]chan View[T]),
	}
	c.recompute()
	return c
}

// Name returns the collection name.
func (c *Controller[T]) Name() string {
	return c.name
}

// Start opens the subscription and moves to PhaseLoading. It is valid from
// PhaseIdle and PhaseError; in PhaseLoading or PhaseReady it does nothing.
// A subscription left over from an error is released before the new one is
// opened.
func (c *Controller[T]) Start() error {
	return c.start(false)
}

// Retry restarts the subscription after an error. It fails with
// INVALID_TRANSITION in any other phase.
func (c *Controller[T]) Retry() error {
	return c.start(true)
}

func (c *Controller[T]) start(retry bool) error {
	c.mu.Lock()
	phase := c.state.Phase
	switch {
	case retry && phase != PhaseError:
		c.mu.Unlock()
		return errors.InvalidTransition(phase.String(), "retry")
	case phase == PhaseLoading || phase == PhaseReady:
		c.mu.Unlock()
		return nil
	}

	old := c.sub
	c.sub = nil
	c.gen++
	gen := c.gen
	c.lastSeq = 0
	c.state = State{Phase: PhaseLoading}
	c.recompute()
	c.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}

	c.logger.WithField("retry", retry).Debug("Opening subscription")
	sub := c.src.Subscribe(c.name, collection.Handler[T]{
		OnSnapshot: func(s collection.Snapshot[T]) { c.applySnapshot(gen, s) },
		OnError:    func(err error) { c.applyError(gen, err) },
	})

	c.mu.Lock()
	if c.gen != gen {
		// Stopped while subscribing.
		c.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// Stop releases the subscription, clears the cache and returns to
// PhaseIdle. It is idempotent. Once Stop returns the cache is never mutated
// by a notification of the released subscription.
func (c *Controller[T]) Stop() {
	c.mu.Lock()
	if c.state.Phase == PhaseIdle && c.sub == nil {
		c.mu.Unlock()
		return
	}
	sub := c.sub
	c.sub = nil
	c.gen++
	c.lastSeq = 0
	c.cache.Reset()
	c.state = State{Phase: PhaseIdle}
	c.recompute()
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	c.logger.Debug("Subscription released")
}

// SetQuery replaces the query and recomputes the view. The subscription is
// untouched. Invalid params are rejected and the previous query stays.
func (c *Controller[T]) SetQuery(p query.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = p
	c.recompute()
	return nil
}

// State returns the current state.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Query returns the active query.
func (c *Controller[T]) Query() query.Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// Visible returns the entities selected by the active query, in snapshot
// order.
func (c *Controller[T]) Visible() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.view.Entities))
	copy(out, c.view.Entities)
	return out
}

// View returns the current view.
func (c *Controller[T]) View() View[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyView()
}

// Watch returns a channel that receives the current view immediately and
// then every recomputed view. A slow reader only sees the latest one. The
// returned cancel func closes the channel and is safe to call more than once.
func (c *Controller[T]) Watch() (<-chan View[T], func()) {
	ch := make(chan View[T], 1)

	c.mu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	ch <- c.copyView()
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			close(ch)
			c.mu.Unlock()
		})
	}
	return ch, cancel
}

func (c *Controller[T]) applySnapshot(gen uint64, s collection.Snapshot[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.logger.WithField("seq", s.Seq).Debug("Dropping snapshot from released subscription")
		return
	}
	if s.Seq != 0 && s.Seq < c.lastSeq {
		c.logger.WithFields(logrus.Fields{"seq": s.Seq, "applied": c.lastSeq}).Debug("Dropping stale snapshot")
		return
	}
	// A redelivered seq carries the contents already cached, but still
	// confirms the source is healthy again.
	if s.Seq == 0 || s.Seq > c.lastSeq {
		if err := c.cache.ReplaceAll(s); err != nil {
			c.logger.WithError(err).Warn("Rejected snapshot")
			return
		}
		if s.Seq != 0 {
			c.lastSeq = s.Seq
		}
	}
	if c.state.Phase != PhaseReady {
		c.logger.WithField("entities", s.Len()).Info("Collection ready")
	}
	c.state = State{Phase: PhaseReady}
	c.recompute()
}

func (c *Controller[T]) applyError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.logger.WithError(err).Warn("Collection source failed")
	c.state = State{Phase: PhaseError, Err: err}
	c.recompute()
}

// recompute must be called with mu held.
func (c *Controller[T]) recompute() {
	snap := c.cache.Snapshot()
	if snap.Collection == "" {
		snap.Collection = c.name
	}
	c.view = Project(c.state, snap, c.params)

	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.copyView():
		default:
		}
	}
}

func (c *Controller[T]) copyView() View[T] {
	v := c.view
	v.Entities = make([]T, len(c.view.Entities))
	copy(v.Entities, c.view.Entities)
	return v
}
