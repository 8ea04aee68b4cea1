package bigvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(tag byte) PageId {
	return NewPageId([]byte{tag})
}

func threeSliceLayout() BigVectorPageLayout {
	return NewBigVectorPageLayout([]VectorDataIDSlice{
		{Page: page(1), Local: NewIntegerSequence(0, 1, 4)}, // logical 0..3
		{Page: page(2), Local: NewIntegerSequence(0, 1, 4)}, // logical 4..7
		{Page: page(3), Local: NewIntegerSequence(0, 1, 4)}, // logical 8..11
	})
}

func TestLayout_CumulativeSizeAndTotal(t *testing.T) {
	l := threeSliceLayout()
	assert.Equal(t, int64(12), l.Size())
	assert.Equal(t, 3, l.SliceCount())
}

func TestLayout_SlicesCoveringRange_WithinOneSlice(t *testing.T) {
	l := threeSliceLayout()
	seq := NewIntegerSequence(5, 1, 2) // logical 5,6 -> within slice 2 (page 2)
	covering, err := l.SlicesCoveringRange(seq)
	require.NoError(t, err)
	require.Len(t, covering, 1)
	assert.Equal(t, page(2), covering[0].Page)
	var total int64
	for _, s := range covering {
		total += s.Size()
	}
	assert.Equal(t, seq.Size(), total)
}

func TestLayout_SlicesCoveringRange_SpansMultipleSlices(t *testing.T) {
	l := threeSliceLayout()
	seq := NewIntegerSequence(2, 1, 8) // logical 2..9, spans all three pages
	covering, err := l.SlicesCoveringRange(seq)
	require.NoError(t, err)

	var total int64
	for _, s := range covering {
		total += s.Size()
	}
	assert.Equal(t, seq.Size(), total)
	assert.Equal(t, page(1), covering[0].Page)
	assert.Equal(t, page(3), covering[len(covering)-1].Page)
}

func TestLayout_SlicesCoveringRange_OutOfRange(t *testing.T) {
	l := threeSliceLayout()
	_, err := l.SlicesCoveringRange(NewIntegerSequence(10, 1, 10))
	assert.Error(t, err)
}

func TestLayout_Slice_ReferencesSamePages(t *testing.T) {
	l := threeSliceLayout()
	sub, err := l.Slice(4, 12, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), sub.Size())
}

func TestLayout_Slice_NegativeStride(t *testing.T) {
	// Spec property S2: L.slice(null, null, -1) reverses the full vector.
	// A layout slice with a negative stride over a forward range must
	// start from the high end, not fail SlicesCoveringRange's bounds check.
	l := threeSliceLayout()
	sub, err := l.Slice(0, 12, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), sub.Size())
}

func TestLayout_FragmentContaining_AlignsWindow(t *testing.T) {
	l := threeSliceLayout()
	// 4 elements/page, 8 bytes/element -> 32 bytes/page; a 64-byte window
	// should span two pages.
	start, stop := l.FragmentContaining(0, 64, 8)
	assert.Equal(t, 0, start)
	assert.True(t, stop >= 1)
}

func TestLayout_IdIsDeterministic(t *testing.T) {
	l1 := threeSliceLayout()
	l2 := threeSliceLayout()
	assert.Equal(t, l1.ID(), l2.ID())
}
