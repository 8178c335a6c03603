package collection

import (
	"sync"

	"github.com/grovetools/causes/pkg/models"
)

// Source delivers full snapshots of a named remote collection.
//
// Subscribe must not block and must not invoke the handler before it
// returns. Every OnSnapshot carries the complete collection. OnError reports
// transport or permission failures and does not end the subscription; the
// caller decides whether to retry.
type Source[T models.Record] interface {
	Subscribe(collection string, h Handler[T]) Subscription
}

// Handler receives notifications for one subscription. Nil callbacks are
// ignored.
type Handler[T models.Record] struct {
	OnSnapshot func(Snapshot[T])
	OnError    func(error)
}

// Subscription is a handle to one live subscription.
type Subscription interface {
	// Unsubscribe releases the subscription. It is idempotent and once it
	// returns no callback runs for this handle again.
	Unsubscribe()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }

// Dispatcher guards a Handler so that delivery and Unsubscribe are
// serialized: a callback in flight finishes before Unsubscribe returns and
// nothing is delivered afterwards. Sources embed one per subscription.
// Handlers must not call Unsubscribe on their own subscription.
type Dispatcher[T models.Record] struct {
	mu      sync.Mutex
	handler Handler[T]
	closed  bool
	done    chan struct{}
	onClose func()
}

// NewDispatcher wraps h. onClose, if set, runs once on the first Unsubscribe
// after delivery has been shut off; sources use it to stop their goroutines.
func NewDispatcher[T models.Record](h Handler[T], onClose func()) *Dispatcher[T] {
	return &Dispatcher[T]{
		handler: h,
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Snapshot delivers s unless the subscription is closed. It reports whether
// the snapshot was delivered.
func (d *Dispatcher[T]) Snapshot(s Snapshot[T]) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if d.handler.OnSnapshot != nil {
		d.handler.OnSnapshot(s)
	}
	return true
}

// Error delivers err unless the subscription is closed.
func (d *Dispatcher[T]) Error(err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if d.handler.OnError != nil {
		d.handler.OnError(err)
	}
	return true
}

// Done is closed once the subscription has been released.
func (d *Dispatcher[T]) Done() <-chan struct{} {
	return d.done
}

// Closed reports whether Unsubscribe has been called.
func (d *Dispatcher[T]) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Unsubscribe implements Subscription.
func (d *Dispatcher[T]) Unsubscribe() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	if d.onClose != nil {
		d.onClose()
	}
}
