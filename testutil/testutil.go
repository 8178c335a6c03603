// Package testutil provides fixtures, generators and fake sources shared by
// package tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
	"github.com/stretchr/testify/require"
)

// Org builds an organization fixture.
func Org(id, name, category string) models.Organization {
	return models.Organization{ID: id, DisplayName: name, Category: category}
}

// OrgWithDescription builds an organization fixture with a description.
func OrgWithDescription(id, name, description, category string) models.Organization {
	return models.Organization{ID: id, DisplayName: name, Description: description, Category: category}
}

// Snap builds an unsequenced organization snapshot.
func Snap(collectionName string, items ...models.Organization) collection.Snapshot[models.Organization] {
	return collection.Snapshot[models.Organization]{Collection: collectionName, Items: items}
}

// RandomString returns a random hex string of the given length.
func RandomString(length int) string {
	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// Eventually polls cond until it holds or the timeout expires.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, timeout, 5*time.Millisecond, msgAndArgs...)
}

// ManualSource is a collection.Source driven by the test. Every Subscribe
// is recorded; Deliver and Fail notify all open subscriptions through their
// dispatcher guard.
type ManualSource[T models.Record] struct {
	mu   sync.Mutex
	subs []*ManualSubscription[T]
}

// ManualSubscription is one recorded subscription.
type ManualSubscription[T models.Record] struct {
	Collection string
	Handler    collection.Handler[T]
	dispatcher *collection.Dispatcher[T]
	released   int
	mu         sync.Mutex
}

// NewManualSource creates an empty manual source.
func NewManualSource[T models.Record]() *ManualSource[T] {
	return &ManualSource[T]{}
}

// Subscribe implements collection.Source.
func (s *ManualSource[T]) Subscribe(name string, h collection.Handler[T]) collection.Subscription {
	sub := &ManualSubscription[T]{Collection: name, Handler: h}
	sub.dispatcher = collection.NewDispatcher(h, func() {
		sub.mu.Lock()
		sub.released++
		sub.mu.Unlock()
	})
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub.dispatcher
}

// Subscriptions returns every subscription opened so far.
func (s *ManualSource[T]) Subscriptions() []*ManualSubscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ManualSubscription[T], len(s.subs))
	copy(out, s.subs)
	return out
}

// Open returns the number of subscriptions not yet released.
func (s *ManualSource[T]) Open() int {
	n := 0
	for _, sub := range s.Subscriptions() {
		if !sub.Released() {
			n++
		}
	}
	return n
}

// Last returns the most recent subscription or fails the test.
func (s *ManualSource[T]) Last(t testing.TB) *ManualSubscription[T] {
	t.Helper()
	subs := s.Subscriptions()
	require.NotEmpty(t, subs, "no subscription opened")
	return subs[len(subs)-1]
}

// Deliver sends snap to every open subscription.
func (s *ManualSource[T]) Deliver(snap collection.Snapshot[T]) {
	for _, sub := range s.Subscriptions() {
		sub.Deliver(snap)
	}
}

// Fail sends err to every open subscription.
func (s *ManualSource[T]) Fail(err error) {
	for _, sub := range s.Subscriptions() {
		sub.Fail(err)
	}
}

// Deliver sends snap through the dispatcher guard.
func (m *ManualSubscription[T]) Deliver(snap collection.Snapshot[T]) bool {
	return m.dispatcher.Snapshot(snap)
}

// Fail sends err through the dispatcher guard.
func (m *ManualSubscription[T]) Fail(err error) bool {
	return m.dispatcher.Error(err)
}

// DeliverUnguarded calls the raw handler, bypassing the dispatcher. It
// simulates a notification racing past Unsubscribe in a misbehaving source.
func (m *ManualSubscription[T]) DeliverUnguarded(snap collection.Snapshot[T]) {
	if m.Handler.OnSnapshot != nil {
		m.Handler.OnSnapshot(snap)
	}
}

// FailUnguarded calls the raw error handler, bypassing the dispatcher.
func (m *ManualSubscription[T]) FailUnguarded(err error) {
	if m.Handler.OnError != nil {
		m.Handler.OnError(err)
	}
}

// Released reports whether Unsubscribe has been called.
func (m *ManualSubscription[T]) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released > 0
}

// String describes the subscription for assertion messages.
func (m *ManualSubscription[T]) String() string {
	return fmt.Sprintf("subscription(%s, released=%v)", m.Collection, m.Released())
}
