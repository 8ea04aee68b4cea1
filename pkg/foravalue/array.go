// Package foravalue implements ForaValueArray, the packed columnar value
// container that BigVectorHandle and MutableVectorHandle build on. An
// array starts empty and commits to a storage mode on its first append;
// later appends either stay on the fast path or trigger a one-time
// promotion to a richer mode, never a downgrade.
package foravalue

import (
	"sync"
	"sync/atomic"

	"github.com/fora-lang/cumulus/pkg/collections"
	"github.com/fora-lang/cumulus/pkg/judgment"
)

// StorageMode identifies which of the three storage strategies an array
// currently uses.
type StorageMode uint8

const (
	// ModeEmpty is the pre-first-append state; no judgment is committed yet.
	ModeEmpty StorageMode = iota
	// ModeStrided is homogeneous storage over a common POD byte stride.
	ModeStrided
	// ModeOffsetTable is homogeneous storage of a variable-width judgment.
	ModeOffsetTable
	// ModeHeterogeneousStrided is mode 3a: a dedup judgment table plus a
	// per-value 1-byte table index, still stride-compatible.
	ModeHeterogeneousStrided
	// ModeHeterogeneousOffset is mode 3b: a full per-value judgment array
	// plus an offset table, used once strides stop being compatible.
	ModeHeterogeneousOffset
)

// JudgmentCount names how many values of a given judgment a caller
// intends to append next, the unit PrepareForAppending sizes against.
type JudgmentCount struct {
	Jov   judgment.Judgment
	Count int
}

// SpaceRequirements describes an upcoming batch of appends by judgment
// mix, so PrepareForAppending can size storage once instead of growing
// incrementally on the hot path.
type SpaceRequirements struct {
	ByJudgment []JudgmentCount
}

func (s SpaceRequirements) total() int {
	n := 0
	for _, jc := range s.ByJudgment {
		n += jc.Count
	}
	return n
}

// ForaValueArray is a packed sequence of values sharing a memory pool.
// It is not safe for concurrent mutation; CurrentJor is the one read
// that is safe to call while another goroutine appends, because the
// heterogeneous judgment table is swapped via an atomic pointer rather
// than mutated in place.
type ForaValueArray struct {
	mu sync.Mutex

	mode      StorageMode
	writeable bool
	count     int

	// mode 1 / mode 3a: fixed-stride POD payload.
	stride  int
	payload []byte

	// mode 2 / mode 3b: one boxed slot per logical value. OffsetFor
	// returns the slot index rather than a byte pointer: Go has no
	// legitimate use for raw pointer arithmetic here, so the table's
	// role (indirection from logical index to value storage) is kept,
	// its representation is not.
	slots []judgment.ImplValContainer

	sharedJudgment judgment.Judgment // valid when IsHomogenous()

	// mode 3 only: dedup table, replaced wholesale (never mutated) on
	// promotion so a concurrent CurrentJor reader never observes a
	// half-built table.
	table     atomic.Pointer[[]judgment.Judgment]
	tableIdx  []uint8             // mode 3a: index into *table per value
	perValueJ []judgment.Judgment // mode 3b: explicit per-value judgment

	// podMask tracks, for mode 3, which logical slots hold a POD value.
	// The append paths maintain it; no read path consults it.
	podMask *collections.Bitset

	entupled     bool
	entupleTag   judgment.Judgment
	entupledFrom judgment.Judgment
}

// New returns an empty, writeable ForaValueArray.
func New() *ForaValueArray {
	return &ForaValueArray{writeable: true, mode: ModeEmpty}
}

func (a *ForaValueArray) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func (a *ForaValueArray) IsWriteable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeable
}

// Seal latches the array read-only; isWriteable never turns back on.
func (a *ForaValueArray) Seal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeable = false
}

func (a *ForaValueArray) Mode() StorageMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// IsHomogenous reports whether every value shares one judgment.
func (a *ForaValueArray) IsHomogenous() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode == ModeEmpty || a.mode == ModeStrided || a.mode == ModeOffsetTable
}

// UsingOffsetTable reports whether indexing goes through an offset/slot
// table rather than flat fixed-stride arithmetic.
func (a *ForaValueArray) UsingOffsetTable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode == ModeOffsetTable || a.mode == ModeHeterogeneousOffset
}
