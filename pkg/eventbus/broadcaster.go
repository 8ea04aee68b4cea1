// Package eventbus implements EventBroadcaster[E], a suspend/resume gated
// fanout over weakly-held subscribers. CpuAssignmentDependencyGraph uses
// a single one for all roots to publish ComputationSystemwideCpuAssignment diffs
// without pinning its subscribers alive, and ComputedGraph's root
// mechanism is modeled the same way.
package eventbus

import (
	"sync"
	"sync/atomic"
	"weak"
)

// CallbackScheduler decouples delivery from publish: Schedule must
// eventually invoke fn, but need not do so synchronously.
type CallbackScheduler interface {
	Schedule(fn func())
}

// GoroutineScheduler runs each scheduled callback on its own goroutine.
// It is the default CallbackScheduler, grounded on the fire-and-forget
// dispatch pattern used by the worker pool's checkin path.
type GoroutineScheduler struct{}

func (GoroutineScheduler) Schedule(fn func()) {
	go fn()
}

// InlineScheduler runs callbacks synchronously on the publishing
// goroutine; useful in tests that need delivery ordering guarantees.
type InlineScheduler struct{}

func (InlineScheduler) Schedule(fn func()) { fn() }

// Subscriber is kept alive by the caller; the broadcaster only ever holds
// a weak.Pointer to it, so a subscriber that the caller drops is
// automatically pruned from the next fanout instead of leaking.
type Subscriber[E any] struct {
	handle func(E)
}

// NewSubscriber wraps a callback as a Subscriber. The returned value must
// be kept referenced by the caller for as long as delivery is wanted.
func NewSubscriber[E any](handle func(E)) *Subscriber[E] {
	return &Subscriber[E]{handle: handle}
}

// EventBroadcaster fans an event out to weakly-held subscribers, one
// CallbackScheduler dispatch per subscriber, with publish gated by a
// suspend/resume counter and a live count of events still in flight.
type EventBroadcaster[E any] struct {
	mu        sync.Mutex
	weakSubs  []weak.Pointer[Subscriber[E]]
	scheduler CallbackScheduler
	suspended int32
	pending   int64
}

// New builds an EventBroadcaster using the given scheduler. A nil
// scheduler defaults to GoroutineScheduler{}.
func New[E any](scheduler CallbackScheduler) *EventBroadcaster[E] {
	if scheduler == nil {
		scheduler = GoroutineScheduler{}
	}
	return &EventBroadcaster[E]{scheduler: scheduler}
}

// Subscribe registers sub for future Publish calls. The broadcaster holds
// only a weak reference; sub is pruned automatically once the caller
// drops its last strong reference.
func (b *EventBroadcaster[E]) Subscribe(sub *Subscriber[E]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.weakSubs = append(b.weakSubs, weak.Make(sub))
}

// Suspend increments the suspend counter; while suspended, Publish queues
// no deliveries (events are simply dropped, matching the "gated fanout"
// contract — suspend is for batching/quiescing, not buffering).
func (b *EventBroadcaster[E]) Suspend() {
	atomic.AddInt32(&b.suspended, 1)
}

// Resume decrements the suspend counter.
func (b *EventBroadcaster[E]) Resume() {
	atomic.AddInt32(&b.suspended, -1)
}

func (b *EventBroadcaster[E]) IsSuspended() bool {
	return atomic.LoadInt32(&b.suspended) > 0
}

// Pending returns the number of scheduled deliveries not yet completed.
func (b *EventBroadcaster[E]) Pending() int64 {
	return atomic.LoadInt64(&b.pending)
}

// Publish fans event out to every live subscriber via the scheduler.
// Expired weak subscribers are pruned from the live list as a side
// effect. A no-op while suspended.
func (b *EventBroadcaster[E]) Publish(event E) {
	if b.IsSuspended() {
		return
	}

	b.mu.Lock()
	live := b.weakSubs[:0]
	var targets []*Subscriber[E]
	for _, w := range b.weakSubs {
		if s := w.Value(); s != nil {
			live = append(live, w)
			targets = append(targets, s)
		}
	}
	b.weakSubs = live
	b.mu.Unlock()

	for _, s := range targets {
		sub := s
		atomic.AddInt64(&b.pending, 1)
		b.scheduler.Schedule(func() {
			defer atomic.AddInt64(&b.pending, -1)
			sub.handle(event)
		})
	}
}

// SubscriberCount returns the number of live (non-expired) subscribers,
// pruning expired ones first. For diagnostics/tests.
func (b *EventBroadcaster[E]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.weakSubs[:0]
	for _, w := range b.weakSubs {
		if w.Value() != nil {
			live = append(live, w)
		}
	}
	b.weakSubs = live
	return len(live)
}
