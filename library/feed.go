package library

import (
	"fmt"
	"slices"
	"sync/atomic"
)

// topic is a bit set naming the stores a mutation touched.
type topic uint8

const (
	topicCatalog topic = 1 << iota
	topicLoans
	topicLoanHistory
	topicReturnHistory

	topicAll = topicCatalog | topicLoans | topicLoanHistory | topicReturnHistory
)

type subscriber struct {
	topics topic
	// render runs under the engine lock and returns the deferred callback
	// invocation carrying the computed snapshot.
	render func(st *state) func()
	active atomic.Bool
}

type delivery struct {
	sub  *subscriber
	fire func()
}

// Feed is a snapshot stream over engine state. Subscribers get the current
// value immediately and then one value per mutation that touches the feed.
type Feed[T any] struct {
	engine *Engine
	topics topic
	view   func(st *state) T
}

// Subscription is the handle returned by Feed.Subscribe.
type Subscription struct {
	engine *Engine
	sub    *subscriber
}

// Subscribe registers fn and delivers the current snapshot to it. The first
// delivery happens before Subscribe returns unless another delivery is already
// in flight, in which case it is queued behind it. fn runs on the goroutine
// draining the queue and may call back into the engine.
func (f Feed[T]) Subscribe(fn func(T)) *Subscription {
	e := f.engine
	sub := &subscriber{
		topics: f.topics,
		render: func(st *state) func() {
			v := f.view(st)
			return func() { fn(v) }
		},
	}
	sub.active.Store(true)

	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.outbox = append(e.outbox, delivery{sub: sub, fire: sub.render(&e.st)})
	e.mu.Unlock()

	e.flush()
	return &Subscription{engine: e, sub: sub}
}

// Snapshot returns the current value of the feed without subscribing.
func (f Feed[T]) Snapshot() T {
	e := f.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return f.view(&e.st)
}

// Unsubscribe stops future deliveries, including any already queued.
// Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if !s.sub.active.Swap(false) {
		return
	}
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := slices.Index(e.subs, s.sub); i >= 0 {
		e.subs = slices.Delete(e.subs, i, i+1)
	}
}

// publishLocked queues a snapshot for every subscriber interested in t.
// Caller must hold e.mu.
func (e *Engine) publishLocked(t topic) {
	for _, sub := range e.subs {
		if sub.topics&t != 0 {
			e.outbox = append(e.outbox, delivery{sub: sub, fire: sub.render(&e.st)})
		}
	}
}

// flush drains the outbox in FIFO order without holding the lock while
// callbacks run. Publications queued from inside a callback, or by another
// goroutine while a flush is in progress, are delivered by the flush that is
// already running.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.dispatching {
		e.mu.Unlock()
		return
	}
	e.dispatching = true
	for len(e.outbox) > 0 {
		d := e.outbox[0]
		e.outbox[0] = delivery{}
		e.outbox = e.outbox[1:]
		e.mu.Unlock()
		if d.sub.active.Load() {
			e.deliver(d)
		}
		e.mu.Lock()
	}
	e.outbox = nil
	e.dispatching = false
	e.mu.Unlock()
}

func (e *Engine) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Err(fmt.Errorf("%v", r)).Msg("subscriber panicked")
		}
	}()
	d.fire()
}
