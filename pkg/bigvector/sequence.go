// Package bigvector implements BigVectorPageLayout and BigVectorHandle,
// the paged-index substrate that maps a logical 64-bit vector index onto
// an in-memory ForaValueArray and local offset.
package bigvector

import (
	"github.com/fora-lang/cumulus/pkg/errors"
)

// IntegerSequence is an arithmetic progression start, start+stride,
// start+2*stride, ... for count terms. Stride may be negative; count is
// always nonnegative.
type IntegerSequence struct {
	Start  int64
	Stride int64
	Count  int64
}

// NewIntegerSequence builds a sequence, normalizing a zero count to a
// canonical empty sequence regardless of start/stride.
func NewIntegerSequence(start, stride, count int64) IntegerSequence {
	if count <= 0 {
		return IntegerSequence{}
	}
	return IntegerSequence{Start: start, Stride: stride, Count: count}
}

func (s IntegerSequence) Size() int64 { return s.Count }

func (s IntegerSequence) IsEmpty() bool { return s.Count == 0 }

// At returns the i'th element of the sequence.
func (s IntegerSequence) At(i int64) int64 {
	return s.Start + i*s.Stride
}

// Last returns the sequence's final element; only valid when non-empty.
func (s IntegerSequence) Last() int64 {
	return s.At(s.Count - 1)
}

// Offset translates a logical vector index i to a position within this
// sequence, or (-1, false) if i is not a member.
func (s IntegerSequence) Offset(i int64) (int64, bool) {
	if s.Count == 0 {
		return -1, false
	}
	if s.Stride == 0 {
		if i == s.Start {
			return 0, true
		}
		return -1, false
	}
	diff := i - s.Start
	if diff%s.Stride != 0 {
		return -1, false
	}
	pos := diff / s.Stride
	if s.Stride > 0 {
		if pos < 0 || pos >= s.Count {
			return -1, false
		}
	} else {
		if pos < 0 || pos >= s.Count {
			return -1, false
		}
	}
	return pos, true
}

// Slice returns the sub-sequence covering logical positions [lo, hi)
// of s, restriding by stride. A negative stride reverses traversal.
// Panics if stride is zero.
func (s IntegerSequence) Slice(lo, hi, stride int64) IntegerSequence {
	if stride == 0 {
		panic("bigvector: slice stride must be nonzero")
	}
	if lo < 0 {
		lo = 0
	}
	if hi > s.Count {
		hi = s.Count
	}
	if hi <= lo {
		return IntegerSequence{}
	}
	count := (hi - lo + stride - 1) / stride
	if stride < 0 {
		count = (hi - lo + (-stride) - 1) / (-stride)
	}
	if count <= 0 {
		return IntegerSequence{}
	}
	localStart := lo
	if stride < 0 {
		localStart = hi - 1
	}
	newStart := s.At(localStart)
	newStride := s.Stride * stride
	return NewIntegerSequence(newStart, newStride, count)
}

// Intersect returns the sub-sequence of s whose members also satisfy
// membership in other, expressed as an IntegerSequence over s's own
// index space (i.e. every returned element is also an element of s).
// Used to restrict a requested index sequence to what one underlying
// page slice actually covers.
func (s IntegerSequence) Intersect(other IntegerSequence) IntegerSequence {
	if s.IsEmpty() || other.IsEmpty() {
		return IntegerSequence{}
	}
	out := make([]int64, 0)
	// Small sequences only in practice (bounded by one page's slice
	// count); a direct scan is simpler and correct for both directions
	// and is what the post-condition checks (exact element-for-element
	// agreement) actually require.
	for i := int64(0); i < s.Count; i++ {
		v := s.At(i)
		if _, ok := other.Offset(v); ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return IntegerSequence{}
	}
	stride := int64(0)
	if len(out) > 1 {
		stride = out[1] - out[0]
	}
	return NewIntegerSequence(out[0], stride, int64(len(out)))
}

// ErrEmptySequence is returned by Last/At callers on an empty sequence
// in contexts that require at least one element.
var ErrEmptySequence = errors.New(errors.CodeInvalidInput, "bigvector: sequence is empty")
