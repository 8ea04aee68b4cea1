package bigvector

import (
	"sync"
	"sync/atomic"

	"github.com/fora-lang/cumulus/pkg/errors"
	"github.com/fora-lang/cumulus/pkg/foravalue"
)

// PageSource resolves a PageId to its realized in-memory array; the
// storage/fetch layer that actually produces bytes for a page is an
// external collaborator (spec §1), so BigVectorHandle only depends on
// this narrow interface.
type PageSource interface {
	ResolvePage(id PageId) (*foravalue.ForaValueArray, error)
}

// cacheSlot is one entry of the fixed 2-slot lookup cache: the logical
// range [Lo, Hi) it covers, the resolved array, and the element index
// within that array where Lo begins.
type cacheSlot struct {
	lo, hi int64
	array  *foravalue.ForaValueArray
	offset int64
}

// BigVectorHandle is a mutable per-process realization of a
// BigVectorPageLayout: it maps a logical index to (array, local offset)
// pairs, short-circuiting the common case of repeated nearby access with
// a 2-slot fixed cache before falling back to a locked slow path.
type BigVectorHandle struct {
	layout BigVectorPageLayout
	source PageSource

	slot0, slot1 atomic.Pointer[cacheSlot]
	lru          int32 // which of slot0/slot1 was least recently installed into

	mu            sync.Mutex
	unpagedValues *foravalue.ForaValueArray // tail of values appended beyond the paged prefix
}

func NewBigVectorHandle(layout BigVectorPageLayout, source PageSource) *BigVectorHandle {
	return &BigVectorHandle{layout: layout, source: source}
}

func (h *BigVectorHandle) Layout() BigVectorPageLayout { return h.layout }

// Size is the layout's paged size plus whatever has been appended to the
// unpaged tail.
func (h *BigVectorHandle) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.layout.Size()
	if h.unpagedValues != nil {
		n += int64(h.unpagedValues.Size())
	}
	return n
}

// SliceForOffset resolves logical index i to the array and the local
// element index holding it. Slot reads are lock-free; only a cache miss takes
// the mutex shared with the mapping publisher.
func (h *BigVectorHandle) SliceForOffset(i int64) (*foravalue.ForaValueArray, int64, error) {
	if s := h.slot0.Load(); s != nil && i >= s.lo && i < s.hi {
		return s.array, i - s.lo + s.offset, nil
	}
	if s := h.slot1.Load(); s != nil && i >= s.lo && i < s.hi {
		return s.array, i - s.lo + s.offset, nil
	}
	return h.resolveSlow(i)
}

func (h *BigVectorHandle) resolveSlow(i int64) (*foravalue.ForaValueArray, int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if i >= h.layout.Size() {
		if h.unpagedValues == nil {
			return nil, 0, errors.New(errors.CodeInvalidInput, "bigvector: index out of range")
		}
		lo := h.layout.Size()
		hi := lo + int64(h.unpagedValues.Size())
		if i < lo || i >= hi {
			return nil, 0, errors.New(errors.CodeInvalidInput, "bigvector: index out of range")
		}
		h.install(cacheSlot{lo: lo, hi: hi, array: h.unpagedValues, offset: 0})
		return h.unpagedValues, i - lo, nil
	}

	seq := NewIntegerSequence(i, 1, 1)
	covering, err := h.layout.SlicesCoveringRange(seq)
	if err != nil {
		return nil, 0, err
	}
	if len(covering) != 1 {
		return nil, 0, errors.New(errors.CodeInvariantViolation, "bigvector: single-index lookup resolved to more than one slice")
	}
	sliceIdx := h.layout.lowerBound(i)
	start := h.layout.startIndex(sliceIdx)
	arr, err := h.source.ResolvePage(covering[0].Page)
	if err != nil {
		return nil, 0, err
	}
	slot := cacheSlot{lo: start, hi: start + h.layout.slices[sliceIdx].Size(), array: arr, offset: 0}
	h.install(slot)
	return arr, i - slot.lo, nil
}

// install places slot into whichever of the two cache entries was least
// recently installed.
func (h *BigVectorHandle) install(slot cacheSlot) {
	if atomic.LoadInt32(&h.lru) == 0 {
		h.slot0.Store(&slot)
		atomic.StoreInt32(&h.lru, 1)
	} else {
		h.slot1.Store(&slot)
		atomic.StoreInt32(&h.lru, 0)
	}
}

// AppendUnpaged appends values [lo, hi) of v to the handle's unpaged
// tail, creating the tail array lazily on first use.
func (h *BigVectorHandle) AppendUnpaged(v *foravalue.ForaValueArray, lo, hi int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unpagedValues == nil {
		h.unpagedValues = foravalue.New()
	}
	return h.unpagedValues.AppendRange(v, lo, hi)
}
