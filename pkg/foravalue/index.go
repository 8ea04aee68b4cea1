package foravalue

import (
	"github.com/fora-lang/cumulus/pkg/errors"
	"github.com/fora-lang/cumulus/pkg/judgment"
)

// ErrIndexOutOfRange is returned by any indexing operation given an
// out-of-bounds logical index.
var ErrIndexOutOfRange = errors.New(errors.CodeInvalidInput, "foravalue: index out of range")

// At returns the value at logical index i as an ImplValContainer,
// reconstructing it from whichever storage mode currently backs the
// array. This is the Go analogue of operator[].
func (a *ForaValueArray) At(i int) (judgment.ImplValContainer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.atLocked(i)
}

func (a *ForaValueArray) atLocked(i int) (judgment.ImplValContainer, error) {
	if i < 0 || i >= a.count {
		return judgment.ImplValContainer{}, ErrIndexOutOfRange
	}
	switch a.mode {
	case ModeStrided:
		return judgment.NewPOD(a.sharedJudgment, a.payload[i*a.stride:(i+1)*a.stride]), nil
	case ModeOffsetTable:
		return a.slots[i], nil
	case ModeHeterogeneousStrided:
		table := a.table.Load()
		jov := (*table)[a.tableIdx[i]]
		return judgment.NewPOD(jov, a.payload[i*a.stride:(i+1)*a.stride]), nil
	case ModeHeterogeneousOffset:
		return a.slots[i], nil
	}
	return judgment.ImplValContainer{}, ErrIndexOutOfRange
}

// OffsetFor returns the logical storage slot backing index i: a byte
// offset for fixed-stride modes, a slot index for offset-table modes.
// Callers never dereference this directly (no raw pointers in Go); it
// exists so other components can address a value's storage location the
// way the original's offsetFor(i) does.
func (a *ForaValueArray) OffsetFor(i int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= a.count {
		return 0, ErrIndexOutOfRange
	}
	switch a.mode {
	case ModeStrided, ModeHeterogeneousStrided:
		return i * a.stride, nil
	default:
		return i, nil
	}
}

// JovFor returns the judgment of the value at index i without
// materializing the full ImplValContainer.
func (a *ForaValueArray) JovFor(i int) (judgment.Judgment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= a.count {
		return judgment.Judgment{}, ErrIndexOutOfRange
	}
	switch a.mode {
	case ModeStrided, ModeOffsetTable:
		return a.sharedJudgment, nil
	case ModeHeterogeneousStrided:
		table := a.table.Load()
		return (*table)[a.tableIdx[i]], nil
	case ModeHeterogeneousOffset:
		return a.perValueJ[i], nil
	}
	return judgment.Judgment{}, ErrIndexOutOfRange
}

// CurrentJor returns the array's current tightest judgment: the shared
// judgment for homogeneous modes, or a union of the dedup table's
// members for heterogeneous modes. It is the one method safe to call
// concurrently with Append: the heterogeneous table is read through an
// atomic pointer that Append only ever replaces wholesale, so a reader
// either sees the pre-append table or the fully-built post-append one,
// never a half-written one.
func (a *ForaValueArray) CurrentJor() judgment.Judgment {
	table := a.table.Load()
	if table != nil && len(*table) > 0 {
		return judgment.Union((*table)...)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == ModeEmpty {
		return judgment.Unknown()
	}
	return a.sharedJudgment
}
