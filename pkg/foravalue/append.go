package foravalue

import (
	"github.com/fora-lang/cumulus/pkg/collections"
	"github.com/fora-lang/cumulus/pkg/errors"
	"github.com/fora-lang/cumulus/pkg/judgment"
)

// ErrNotWriteable is returned by any mutator once the array has been
// sealed.
var ErrNotWriteable = errors.New(errors.CodeInvariantViolation, "foravalue: array is not writeable")

// Append adds a single value, taking the fast path when the array's
// current mode already admits the value's judgment and falling back to
// a one-time mode promotion otherwise.
func (a *ForaValueArray) Append(v judgment.ImplValContainer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.writeable {
		return ErrNotWriteable
	}
	return a.appendLocked(v)
}

func (a *ForaValueArray) appendLocked(v judgment.ImplValContainer) error {
	jov := v.Judgment()

	switch a.mode {
	case ModeEmpty:
		a.initFirstValue(v)
		return nil

	case ModeStrided:
		if jov.VectorElementJOV().Equal(a.sharedJudgment) && jov.ByteSize() == a.stride {
			a.payload = append(a.payload, padTo(v.Bytes(), a.stride)...)
			a.count++
			return nil
		}
		return a.promoteFromStrided(v)

	case ModeOffsetTable:
		if jov.VectorElementJOV().Equal(a.sharedJudgment) {
			a.slots = append(a.slots, v)
			a.count++
			return nil
		}
		return a.promoteFromOffsetTable(v)

	case ModeHeterogeneousStrided:
		return a.appendHeterogeneousStrided(v)

	case ModeHeterogeneousOffset:
		a.appendHeterogeneousOffset(v)
		return nil
	}
	panic("foravalue: unknown storage mode")
}

func (a *ForaValueArray) initFirstValue(v judgment.ImplValContainer) {
	jov := v.Judgment()
	a.sharedJudgment = jov.VectorElementJOV()
	if jov.IsPOD() {
		a.mode = ModeStrided
		a.stride = jov.ByteSize()
		a.payload = append(a.payload, padTo(v.Bytes(), a.stride)...)
	} else {
		a.mode = ModeOffsetTable
		a.slots = append(a.slots, v)
	}
	a.count = 1
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// registerJudgment dedups jov into the table, publishing a freshly built
// slice via the atomic pointer so a concurrent CurrentJor reader never
// observes a partially extended table. Returns the table index.
func (a *ForaValueArray) registerJudgment(jov judgment.Judgment) uint8 {
	old := a.table.Load()
	if old != nil {
		for i, existing := range *old {
			if existing.Equal(jov) {
				return uint8(i)
			}
		}
	}
	var next []judgment.Judgment
	if old != nil {
		next = append(next, (*old)...)
	}
	next = append(next, jov)
	a.table.Store(&next)
	return uint8(len(next) - 1)
}

func (a *ForaValueArray) promoteFromStrided(v judgment.ImplValContainer) error {
	newJov := v.Judgment()
	a.podMask = collections.NewBitset(a.count + 1)

	if newJov.IsPOD() && newJov.ByteSize() == a.stride {
		// Mode 3a: every existing slot keeps its byte stride, we just
		// need a table index per value now instead of one shared judgment.
		oldIdx := a.registerJudgment(a.sharedJudgment)
		newIdx := a.registerJudgment(newJov.VectorElementJOV())
		a.tableIdx = make([]uint8, a.count, a.count+1)
		for i := range a.tableIdx {
			a.tableIdx[i] = oldIdx
			a.podMask.Set(i)
		}
		a.tableIdx = append(a.tableIdx, newIdx)
		a.podMask.Set(a.count)
		a.payload = append(a.payload, padTo(v.Bytes(), a.stride)...)
		a.mode = ModeHeterogeneousStrided
		a.count++
		return nil
	}

	// Mode 3b: rehydrate existing POD payload into boxed slots, then
	// append the incompatible value alongside its own judgment.
	a.registerJudgment(a.sharedJudgment)
	a.registerJudgment(newJov.VectorElementJOV())
	a.slots = make([]judgment.ImplValContainer, 0, a.count+1)
	a.perValueJ = make([]judgment.Judgment, 0, a.count+1)
	for i := 0; i < a.count; i++ {
		b := a.payload[i*a.stride : (i+1)*a.stride]
		a.slots = append(a.slots, judgment.NewPOD(a.sharedJudgment, b))
		a.perValueJ = append(a.perValueJ, a.sharedJudgment)
		a.podMask.Set(i)
	}
	a.slots = append(a.slots, v)
	a.perValueJ = append(a.perValueJ, newJov.VectorElementJOV())
	if newJov.IsPOD() {
		a.podMask.Set(a.count)
	}
	a.payload = nil
	a.stride = 0
	a.mode = ModeHeterogeneousOffset
	a.count++
	return nil
}

func (a *ForaValueArray) promoteFromOffsetTable(v judgment.ImplValContainer) error {
	newJov := v.Judgment()
	a.registerJudgment(a.sharedJudgment)
	a.registerJudgment(newJov.VectorElementJOV())

	a.podMask = collections.NewBitset(a.count + 1)
	a.perValueJ = make([]judgment.Judgment, 0, a.count+1)
	for range a.slots {
		a.perValueJ = append(a.perValueJ, a.sharedJudgment)
	}
	a.perValueJ = append(a.perValueJ, newJov.VectorElementJOV())
	a.slots = append(a.slots, v)
	if newJov.IsPOD() {
		a.podMask.Set(a.count)
	}
	a.mode = ModeHeterogeneousOffset
	a.count++
	return nil
}

func (a *ForaValueArray) appendHeterogeneousStrided(v judgment.ImplValContainer) error {
	jov := v.Judgment().VectorElementJOV()
	if v.Judgment().IsPOD() && v.Judgment().ByteSize() == a.stride {
		idx := a.registerJudgment(jov)
		a.tableIdx = append(a.tableIdx, idx)
		a.payload = append(a.payload, padTo(v.Bytes(), a.stride)...)
		a.podMask.Set(a.count)
		a.count++
		return nil
	}
	// Stride compatibility broke: demote 3a's bookkeeping to 3b in a
	// single linear pass, never shrinking what's already stored.
	table := a.table.Load()
	a.slots = make([]judgment.ImplValContainer, 0, a.count+1)
	a.perValueJ = make([]judgment.Judgment, 0, a.count+1)
	for i := 0; i < a.count; i++ {
		j := (*table)[a.tableIdx[i]]
		b := a.payload[i*a.stride : (i+1)*a.stride]
		a.slots = append(a.slots, judgment.NewPOD(j, b))
		a.perValueJ = append(a.perValueJ, j)
	}
	a.slots = append(a.slots, v)
	a.perValueJ = append(a.perValueJ, jov)
	a.registerJudgment(jov)
	a.payload = nil
	a.stride = 0
	a.tableIdx = nil
	a.mode = ModeHeterogeneousOffset
	a.count++
	return nil
}

func (a *ForaValueArray) appendHeterogeneousOffset(v judgment.ImplValContainer) {
	jov := v.Judgment().VectorElementJOV()
	a.registerJudgment(jov)
	a.slots = append(a.slots, v)
	a.perValueJ = append(a.perValueJ, jov)
	if v.Judgment().IsPOD() {
		a.podMask.Set(a.count)
	}
	a.count++
}

// AppendRange copies values [lo, hi) from src into a, preserving order.
func (a *ForaValueArray) AppendRange(src *ForaValueArray, lo, hi int) error {
	if src == nil {
		return errors.New(errors.CodeInvalidInput, "foravalue: nil source array")
	}
	src.mu.Lock()
	values := make([]judgment.ImplValContainer, 0, hi-lo)
	for i := lo; i < hi; i++ {
		v, err := src.atLocked(i)
		if err != nil {
			src.mu.Unlock()
			return err
		}
		values = append(values, v)
	}
	src.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.writeable {
		return ErrNotWriteable
	}
	for _, v := range values {
		if err := a.appendLocked(v); err != nil {
			return err
		}
	}
	return nil
}

// AppendRaw fast-paths a run of count identical-stride POD values already
// packed contiguously in raw, avoiding one ImplValContainer per element.
func (a *ForaValueArray) AppendRaw(jov judgment.Judgment, raw []byte, count, stride int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.writeable {
		return ErrNotWriteable
	}
	if len(raw) != count*stride {
		return errors.New(errors.CodeInvalidInput, "foravalue: raw buffer does not match count*stride")
	}
	for i := 0; i < count; i++ {
		v := judgment.NewPOD(jov, raw[i*stride:(i+1)*stride])
		if err := a.appendLocked(v); err != nil {
			return err
		}
	}
	return nil
}

// PrepareForAppending preallocates payload, table and slot capacity so
// that every append in the described batch mix can take the fast path.
func (a *ForaValueArray) PrepareForAppending(req SpaceRequirements) {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := req.total()
	if total == 0 {
		return
	}

	distinct := map[string]judgment.Judgment{}
	for _, jc := range req.ByJudgment {
		distinct[jc.Jov.Hash()] = jc.Jov
	}

	if a.mode == ModeEmpty && len(distinct) == 1 {
		for _, jov := range distinct {
			a.sharedJudgment = jov.VectorElementJOV()
			if jov.IsPOD() {
				a.mode = ModeStrided
				a.stride = jov.ByteSize()
				a.payload = make([]byte, 0, total*a.stride)
			} else {
				a.mode = ModeOffsetTable
				a.slots = make([]judgment.ImplValContainer, 0, total)
			}
		}
		return
	}

	switch a.mode {
	case ModeStrided:
		a.payload = growByteCap(a.payload, total*maxInt(a.stride, 1))
	case ModeOffsetTable:
		a.slots = growSlotCap(a.slots, total)
	case ModeHeterogeneousStrided:
		a.payload = growByteCap(a.payload, total*maxInt(a.stride, 1))
		if cap(a.tableIdx)-len(a.tableIdx) < total {
			grown := make([]uint8, len(a.tableIdx), len(a.tableIdx)+total)
			copy(grown, a.tableIdx)
			a.tableIdx = grown
		}
	case ModeHeterogeneousOffset:
		a.slots = growSlotCap(a.slots, total)
		if cap(a.perValueJ)-len(a.perValueJ) < total {
			grown := make([]judgment.Judgment, len(a.perValueJ), len(a.perValueJ)+total)
			copy(grown, a.perValueJ)
			a.perValueJ = grown
		}
	}
	for _, jov := range distinct {
		a.registerJudgment(jov.VectorElementJOV())
	}
}

func growByteCap(b []byte, extra int) []byte {
	if cap(b)-len(b) >= extra {
		return b
	}
	grown := make([]byte, len(b), len(b)+extra)
	copy(grown, b)
	return grown
}

func growSlotCap(s []judgment.ImplValContainer, extra int) []judgment.ImplValContainer {
	if cap(s)-len(s) >= extra {
		return s
	}
	grown := make([]judgment.ImplValContainer, len(s), len(s)+extra)
	copy(grown, s)
	return grown
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
