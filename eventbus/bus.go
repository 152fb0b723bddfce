// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package eventbus implements the in-process event bus driving the pipeline:
// per-kind FIFO queues with cooperative backpressure, per-subscription
// concurrency limits and retry with backoff.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/toole-brendan/btcwatch/events"
)

// DefaultMaxQueueSize bounds each per-kind queue when no explicit size is
// configured.
const DefaultMaxQueueSize = 2000

// Handler processes one event. A nil return acknowledges the event; an
// error triggers the subscription's retry policy.
type Handler func(ctx context.Context, ev events.Event) error

// RetryPolicy controls how a failing handler is retried. Backoff receives
// the 1-based attempt number of the retry being scheduled.
type RetryPolicy struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration
}

// Subscription binds a named handler to an event kind.
type Subscription struct {
	Kind        events.Kind
	Name        string
	Concurrency int
	Retry       RetryPolicy
	Handler     Handler
}

// subscription is the internal subscription state. The semaphore bounds the
// number of concurrently running handler invocations.
type subscription struct {
	Subscription
	sem chan struct{}
}

// kindState is the per-kind queue state.
type kindState struct {
	queue             []events.Event
	subs              []*subscription
	inflight          int
	dispatcherStarted bool
}

// depth is the backlog the capacity checks operate on.
func (ks *kindState) depth() int {
	return len(ks.queue) + ks.inflight
}

// Bus is the in-process event bus. Dispatchers are explicitly started
// goroutines owned by the bus and joined on shutdown.
type Bus struct {
	ctx          context.Context
	maxQueueSize int

	mtx     sync.Mutex
	cond    *sync.Cond
	kinds   map[events.Kind]*kindState
	stopped bool

	dispatchers sync.WaitGroup
	deliveries  sync.WaitGroup
}

// New creates a bus. The context bounds every handler invocation; canceling
// it aborts in-flight handler sleeps and I/O but does not drop queued
// events.
func New(ctx context.Context, maxQueueSize int) *Bus {
	if maxQueueSize < 1 {
		maxQueueSize = DefaultMaxQueueSize
	}
	b := &Bus{
		ctx:          ctx,
		maxQueueSize: maxQueueSize,
		kinds:        make(map[events.Kind]*kindState),
	}
	b.cond = sync.NewCond(&b.mtx)
	return b
}

// MaxQueueSize returns the per-kind queue bound.
func (b *Bus) MaxQueueSize() int {
	return b.maxQueueSize
}

// kindStateLocked returns the state for kind, creating it if needed. The bus
// mutex must be held.
func (b *Bus) kindStateLocked(kind events.Kind) *kindState {
	ks := b.kinds[kind]
	if ks == nil {
		ks = &kindState{}
		b.kinds[kind] = ks
	}
	return ks
}

// ensureDispatcherLocked starts the kind's dispatcher once. The bus mutex
// must be held.
func (b *Bus) ensureDispatcherLocked(kind events.Kind, ks *kindState) {
	if ks.dispatcherStarted {
		return
	}
	ks.dispatcherStarted = true
	b.dispatchers.Add(1)
	go b.dispatch(kind, ks)
}

// Subscribe registers a handler for an event kind. Concurrency below 1 is
// raised to 1.
func (b *Bus) Subscribe(sub Subscription) {
	if sub.Concurrency < 1 {
		sub.Concurrency = 1
	}
	if sub.Retry.Backoff == nil {
		sub.Retry.Backoff = func(int) time.Duration { return 0 }
	}
	s := &subscription{
		Subscription: sub,
		sem:          make(chan struct{}, sub.Concurrency),
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()
	ks := b.kindStateLocked(sub.Kind)
	ks.subs = append(ks.subs, s)
	b.ensureDispatcherLocked(sub.Kind, ks)
}

// Publish enqueues an event for its kind, suspending while the kind's
// backlog is at capacity. Events published after shutdown are dropped.
func (b *Bus) Publish(ctx context.Context, ev events.Event) error {
	// Wake capacity waiters when the caller gives up.
	stop := context.AfterFunc(ctx, b.cond.Broadcast)
	defer stop()

	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.stopped {
		log.Debugf("bus stopped, dropping %s %s", ev.Kind(), ev.DedupeKey())
		return nil
	}

	ks := b.kindStateLocked(ev.Kind())
	for ks.depth() >= b.maxQueueSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.stopped {
			log.Debugf("bus stopped, dropping %s %s", ev.Kind(), ev.DedupeKey())
			return nil
		}
		b.cond.Wait()
	}

	ks.queue = append(ks.queue, ev)
	b.ensureDispatcherLocked(ev.Kind(), ks)
	b.cond.Broadcast()
	return nil
}

// dispatch is the per-kind dispatcher loop: strict FIFO dequeue, delivery to
// every subscription, each bounded by its own concurrency semaphore.
func (b *Bus) dispatch(kind events.Kind, ks *kindState) {
	defer b.dispatchers.Done()

	for {
		b.mtx.Lock()
		for len(ks.queue) == 0 {
			if b.stopped {
				b.mtx.Unlock()
				return
			}
			b.cond.Wait()
		}
		ev := ks.queue[0]
		ks.queue = ks.queue[1:]
		ks.inflight++
		subs := make([]*subscription, len(ks.subs))
		copy(subs, ks.subs)
		b.mtx.Unlock()

		if len(subs) == 0 {
			log.Tracef("no subscribers for %s, dropping %s", kind, ev.DedupeKey())
			b.eventDone(ks)
			continue
		}

		var wg sync.WaitGroup
		for _, sub := range subs {
			sub := sub
			// Park until the subscription has a free slot. With
			// concurrency 1 this serializes handler runs and keeps
			// the dispatcher from racing ahead of the stage.
			sub.sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sub.sem }()
				b.runHandler(sub, ev)
			}()
		}

		b.deliveries.Add(1)
		go func() {
			defer b.deliveries.Done()
			wg.Wait()
			b.eventDone(ks)
		}()
	}
}

// eventDone retires one in-flight event and wakes capacity and drain
// waiters.
func (b *Bus) eventDone(ks *kindState) {
	b.mtx.Lock()
	ks.inflight--
	b.cond.Broadcast()
	b.mtx.Unlock()
}

// runHandler invokes a subscription handler with its retry policy. After the
// retries are exhausted the failure is logged and the event is given up on;
// the bus keeps running.
func (b *Bus) runHandler(sub *subscription, ev events.Event) {
	for attempt := 0; ; attempt++ {
		err := sub.Handler(b.ctx, ev)
		if err == nil {
			return
		}
		if attempt >= sub.Retry.MaxRetries {
			log.Errorf("event.handler.failed kind=%s subscription=%s "+
				"dedupeKey=%s attempts=%d err=%v",
				sub.Kind, sub.Name, ev.DedupeKey(), attempt+1, err)
			return
		}
		delay := sub.Retry.Backoff(attempt + 1)
		log.Debugf("handler %s retrying %s in %s after: %v",
			sub.Name, ev.DedupeKey(), delay, err)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-b.ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// BacklogDepth returns queued plus in-flight events for the kind.
func (b *Bus) BacklogDepth(kind events.Kind) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	ks := b.kinds[kind]
	if ks == nil {
		return 0
	}
	return ks.depth()
}

// WaitForCapacity suspends until the kind's backlog drops to the threshold.
// A threshold below 1 defaults to half the queue bound.
func (b *Bus) WaitForCapacity(ctx context.Context, kind events.Kind, threshold int) error {
	if threshold < 1 {
		threshold = b.maxQueueSize / 2
	}

	stop := context.AfterFunc(ctx, b.cond.Broadcast)
	defer stop()

	b.mtx.Lock()
	defer b.mtx.Unlock()
	ks := b.kindStateLocked(kind)
	for ks.depth() > threshold {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.stopped {
			return nil
		}
		b.cond.Wait()
	}
	return nil
}

// WaitUntilIdle marks the bus stopped, waits until every kind has drained
// and joins the dispatcher goroutines. Publishes arriving afterwards are
// dropped.
func (b *Bus) WaitUntilIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, b.cond.Broadcast)
	defer stop()

	b.mtx.Lock()
	b.stopped = true
	b.cond.Broadcast()
	for {
		idle := true
		for _, ks := range b.kinds {
			if ks.depth() > 0 {
				idle = false
				break
			}
		}
		if idle {
			break
		}
		if err := ctx.Err(); err != nil {
			b.mtx.Unlock()
			return err
		}
		b.cond.Wait()
	}
	b.mtx.Unlock()

	b.dispatchers.Wait()
	b.deliveries.Wait()
	return nil
}
