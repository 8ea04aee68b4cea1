// Package objectpool implements ObjectPool[T], a bounded-reuse pool of
// lazily constructed values with refcounted handles. It is the supporting
// primitive behind memory-pool-backed ForaValueArray and
// MutableVectorHandle buffers: a Handle is a refcounted pair of the value
// and an on-destroy callback, and the underlying T returns to the pool's
// reuse queue only once its last Handle drops.
package objectpool

import (
	"sync"
	"sync/atomic"

	"github.com/fora-lang/cumulus/pkg/collections"
)

// Constructor lazily builds a fresh T when the pool's reuse queue is
// empty.
type Constructor[T any] func() T

// Destructor resets a T before it re-enters the reuse queue.
type Destructor[T any] func(T)

// ObjectPool hands out refcounted Handles over T, reusing released
// values via a FIFO queue rather than allocating one per checkout.
type ObjectPool[T any] struct {
	mu      sync.Mutex
	reuse   *collections.Queue[T]
	newFn   Constructor[T]
	destroy Destructor[T]
	created int
}

// New builds an ObjectPool with the given lazy constructor. destroy may
// be nil if T needs no reset before reuse.
func New[T any](newFn Constructor[T], destroy Destructor[T]) *ObjectPool[T] {
	if newFn == nil {
		panic("objectpool: constructor must not be nil")
	}
	return &ObjectPool[T]{
		reuse:   collections.NewQueue[T](16),
		newFn:   newFn,
		destroy: destroy,
	}
}

// Handle is a refcounted checkout from an ObjectPool. Checkout returns a
// Handle with refcount 1; Retain bumps it, Release drops it and, on
// reaching zero, returns the underlying T to the pool's reuse queue
// after running the destructor.
type Handle[T any] struct {
	pool  *ObjectPool[T]
	value T
	refs  *int32
}

// Checkout obtains a T, reusing a previously released value when one is
// available, otherwise lazily constructing a new one.
func (p *ObjectPool[T]) Checkout() Handle[T] {
	p.mu.Lock()
	v, ok := p.reuse.Dequeue()
	if !ok {
		v = p.newFn()
		p.created++
	}
	p.mu.Unlock()

	one := int32(1)
	return Handle[T]{pool: p, value: v, refs: &one}
}

// Created returns the total number of values this pool has constructed,
// including those now sitting in the reuse queue, for diagnostics/tests.
func (p *ObjectPool[T]) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Outstanding returns the number of values currently checked out (not
// sitting in the reuse queue).
func (p *ObjectPool[T]) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created - p.reuse.Len()
}

func (h Handle[T]) Value() T { return h.value }

// Retain increments the handle's refcount; both the receiver and the
// returned Handle must eventually be Released independently.
func (h Handle[T]) Retain() Handle[T] {
	if h.refs != nil {
		atomic.AddInt32(h.refs, 1)
	}
	return h
}

// Release decrements the refcount. When it reaches zero the value is
// reset (if a destructor was configured) and returned to the pool's
// reuse queue for a future Checkout.
func (h Handle[T]) Release() {
	if h.refs == nil {
		return
	}
	if atomic.AddInt32(h.refs, -1) != 0 {
		return
	}
	if h.pool.destroy != nil {
		h.pool.destroy(h.value)
	}
	h.pool.mu.Lock()
	h.pool.reuse.Enqueue(h.value)
	h.pool.mu.Unlock()
}

func (h Handle[T]) RefCount() int32 {
	if h.refs == nil {
		return 0
	}
	return atomic.LoadInt32(h.refs)
}
