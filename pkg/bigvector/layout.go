package bigvector

import (
	"encoding/binary"
	"sort"

	"github.com/fora-lang/cumulus/pkg/cumid"
	"github.com/fora-lang/cumulus/pkg/errors"
)

// PageId content-addresses one paged chunk of a ForaValueArray.
type PageId struct{ cumid.ID160 }

func NewPageId(content []byte) PageId {
	return PageId{cumid.HashBytes(content)}
}

// BigVectorId content-addresses an entire BigVectorPageLayout.
type BigVectorId struct{ cumid.ID160 }

// VectorDataIDSlice names a contiguous run of a page (or of the unpaged
// tail, when Page is the zero value) covered by its own IntegerSequence
// local to that page.
type VectorDataIDSlice struct {
	Page  PageId
	Local IntegerSequence
}

func (s VectorDataIDSlice) Size() int64 { return s.Local.Size() }

// BigVectorPageLayout is an immutable description of a logical vector as
// a cumulative-prefix sum over VectorDataIDSlices.
type BigVectorPageLayout struct {
	slices          []VectorDataIDSlice
	cumulativeSizes []int64 // cumulativeSizes[i] = sum(slices[0..=i].Size())
	id              BigVectorId
}

// NewBigVectorPageLayout builds a layout from slices in order, deriving
// the cumulative-size index and a content hash over the slice sequence.
func NewBigVectorPageLayout(slices []VectorDataIDSlice) BigVectorPageLayout {
	cum := make([]int64, len(slices))
	var running int64
	h := make([]byte, 0, len(slices)*24)
	for i, s := range slices {
		running += s.Size()
		cum[i] = running
		h = append(h, s.Page.ID160[:]...)
		var buf [24]byte
		binary.LittleEndian.PutUint64(buf[0:8], uint64(s.Local.Start))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(s.Local.Stride))
		binary.LittleEndian.PutUint64(buf[16:24], uint64(s.Local.Count))
		h = append(h, buf[:]...)
	}
	return BigVectorPageLayout{
		slices:          append([]VectorDataIDSlice(nil), slices...),
		cumulativeSizes: cum,
		id:              BigVectorId{cumid.HashBytes(h)},
	}
}

func (l BigVectorPageLayout) ID() BigVectorId { return l.id }

func (l BigVectorPageLayout) Size() int64 {
	if len(l.cumulativeSizes) == 0 {
		return 0
	}
	return l.cumulativeSizes[len(l.cumulativeSizes)-1]
}

func (l BigVectorPageLayout) SliceCount() int { return len(l.slices) }

// startIndex returns the logical index at which slice i begins.
func (l BigVectorPageLayout) startIndex(i int) int64 {
	if i == 0 {
		return 0
	}
	return l.cumulativeSizes[i-1]
}

// lowerBound returns the index of the first slice whose cumulative size
// exceeds target, i.e. the first slice containing logical index target.
func (l BigVectorPageLayout) lowerBound(target int64) int {
	return sort.Search(len(l.cumulativeSizes), func(i int) bool {
		return l.cumulativeSizes[i] > target
	})
}

// SlicesCoveringRange returns the minimal ordered list of
// VectorDataIDSlices whose concatenated indexed elements equal the
// logical elements named by seq.
func (l BigVectorPageLayout) SlicesCoveringRange(seq IntegerSequence) ([]VectorDataIDSlice, error) {
	if seq.IsEmpty() {
		return nil, nil
	}
	lo, hi := seq.Start, seq.Last()
	if seq.Stride < 0 {
		lo, hi = hi, lo
	}
	if lo < 0 || hi >= l.Size() {
		return nil, errors.New(errors.CodeInvalidInput, "bigvector: sequence out of range")
	}

	loSlice := l.lowerBound(lo)
	hiSlice := l.lowerBound(hi)

	out := make([]VectorDataIDSlice, 0, hiSlice-loSlice+1)
	var covered int64
	for k := 0; k <= hiSlice-loSlice; k++ {
		// A negative stride walks the slices from high to low so the
		// concatenation follows seq's own order.
		i := loSlice + k
		if seq.Stride < 0 {
			i = hiSlice - k
		}
		if i >= len(l.slices) {
			continue
		}
		start := l.startIndex(i)
		localSeq := IntegerSequence{Start: seq.Start - start, Stride: seq.Stride, Count: seq.Count}
		intersected := localSeq.Intersect(l.slices[i].Local)
		if intersected.IsEmpty() {
			continue
		}
		out = append(out, VectorDataIDSlice{Page: l.slices[i].Page, Local: intersected})
		covered += intersected.Size()
	}
	if covered != seq.Size() {
		return nil, errors.New(errors.CodeInvariantViolation, "bigvector: slicesCoveringRange did not cover the full requested sequence")
	}
	return out, nil
}

// Slice returns a new layout referencing the same PageIds, restricted to
// logical positions [lo, hi) and restrided by stride. Negative stride
// reverses traversal.
func (l BigVectorPageLayout) Slice(lo, hi, stride int64) (BigVectorPageLayout, error) {
	full := NewIntegerSequence(lo, 1, hi-lo)
	if stride != 1 {
		count := (hi - lo + absI64(stride) - 1) / absI64(stride)
		start := lo
		if stride < 0 {
			start = hi - 1
		}
		full = IntegerSequence{Start: start, Stride: stride, Count: count}
	}
	covering, err := l.SlicesCoveringRange(full)
	if err != nil {
		return BigVectorPageLayout{}, err
	}
	return NewBigVectorPageLayout(covering), nil
}

func absI64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// FragmentContaining returns [start, stop), the widest contiguous run of
// slice indices starting no earlier than the fragmentBytes-aligned slice
// boundary at or before pageIx whose cumulative byte count (using
// bytesPerElement as the uniform element size) still fits within one
// fragmentBytes window.
func (l BigVectorPageLayout) FragmentContaining(pageIx int, fragmentBytes int64, bytesPerElement int64) (int, int) {
	if pageIx < 0 || pageIx >= len(l.slices) || bytesPerElement <= 0 {
		return pageIx, pageIx
	}
	maxElements := fragmentBytes / bytesPerElement
	if maxElements <= 0 {
		return pageIx, pageIx + 1
	}

	start := l.startIndex(pageIx)
	windowStart := (start / maxElements) * maxElements
	windowEnd := windowStart + maxElements

	begin := pageIx
	for begin > 0 && l.startIndex(begin-1) >= windowStart {
		begin--
	}
	end := pageIx + 1
	for end < len(l.slices) && l.cumulativeSizes[end-1] <= windowEnd && l.startIndex(end) < windowEnd {
		end++
	}
	return begin, end
}
