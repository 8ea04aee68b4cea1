// Package mutablevector implements MutableVectorHandle, a refcounted,
// memory-pooled, packed array with one element judgment, uniform
// stride, and an identity hash preserved across content swaps.
package mutablevector

import (
	"sync"
	"sync/atomic"

	"github.com/fora-lang/cumulus/pkg/cumid"
	"github.com/fora-lang/cumulus/pkg/errors"
	"github.com/fora-lang/cumulus/pkg/judgment"
)

// Destructor runs when a value leaves the handle (setItem's old value,
// resize's shrunk tail, or the final release). Nil is fine for POD
// judgments that need no scatter pass.
type Destructor func(judgment.ImplValContainer)

// MutableVectorHandle is a fixed-judgment, uniform-stride packed array
// whose identity survives content swaps. Not safe for concurrent
// mutation beyond the atomic refcount itself.
type MutableVectorHandle struct {
	mu sync.Mutex

	identity cumid.ID160
	jov      judgment.Judgment
	values   []judgment.ImplValContainer
	destroy  Destructor

	refs int32
}

// New constructs a handle of n copies of def, deriving a fresh identity
// hash from a salt so two independently constructed handles never
// collide even with identical contents.
func New(jov judgment.Judgment, n int, def judgment.ImplValContainer, destroy Destructor) *MutableVectorHandle {
	h := &MutableVectorHandle{
		identity: cumid.HashBytes(cumid.NewSalt()),
		jov:      jov,
		values:   make([]judgment.ImplValContainer, n),
		destroy:  destroy,
		refs:     1,
	}
	for i := range h.values {
		h.values[i] = def
	}
	return h
}

func (h *MutableVectorHandle) Identity() cumid.ID160 { return h.identity }

func (h *MutableVectorHandle) Judgment() judgment.Judgment { return h.jov }

func (h *MutableVectorHandle) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

// Retain increments the refcount and returns h.
func (h *MutableVectorHandle) Retain() *MutableVectorHandle {
	atomic.AddInt32(&h.refs, 1)
	return h
}

// Release decrements the refcount; on reaching zero it runs the
// destructor scatter pass over every stored value and frees the buffer.
func (h *MutableVectorHandle) Release() {
	if atomic.AddInt32(&h.refs, -1) != 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroy != nil {
		for _, v := range h.values {
			h.destroy(v)
		}
	}
	h.values = nil
}

func (h *MutableVectorHandle) RefCount() int32 { return atomic.LoadInt32(&h.refs) }

var ErrIndexOutOfRange = errors.New(errors.CodeInvalidInput, "mutablevector: index out of range")

func (h *MutableVectorHandle) Get(i int) (judgment.ImplValContainer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.values) {
		return judgment.ImplValContainer{}, ErrIndexOutOfRange
	}
	return h.values[i], nil
}

// SetItem destroys the old element at i, then stores v, in that order.
func (h *MutableVectorHandle) SetItem(i int, v judgment.ImplValContainer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.values) {
		return ErrIndexOutOfRange
	}
	old := h.values[i]
	if h.destroy != nil {
		h.destroy(old)
	}
	h.values[i] = v
	return nil
}

// Resize grows or shrinks the handle to n elements: growth constructs
// (n - oldN) copies of def, shrinkage destroys the (oldN - n) trailing
// elements before dropping them.
func (h *MutableVectorHandle) Resize(n int, def judgment.ImplValContainer) error {
	if n < 0 {
		return errors.New(errors.CodeInvalidInput, "mutablevector: negative size")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	oldN := len(h.values)
	if n > oldN {
		for i := oldN; i < n; i++ {
			h.values = append(h.values, def)
		}
		return nil
	}
	if n < oldN {
		if h.destroy != nil {
			for i := n; i < oldN; i++ {
				h.destroy(h.values[i])
			}
		}
		h.values = h.values[:n]
	}
	return nil
}

// SwapContentsWith exchanges h and other's backing data and judgment
// without allocating. Both handles remain live afterward under their
// original identity: only the content moves.
func (h *MutableVectorHandle) SwapContentsWith(other *MutableVectorHandle) {
	if h == other {
		return
	}
	// Lock in a fixed global order (by identity byte comparison) to
	// avoid deadlocking two goroutines swapping the same pair of
	// handles in opposite order.
	first, second := h, other
	if h.identity.Less(other.identity) {
		first, second = other, h
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	h.values, other.values = other.values, h.values
	h.jov, other.jov = other.jov, h.jov
	h.destroy, other.destroy = other.destroy, h.destroy
}
