package bigvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fora-lang/cumulus/pkg/foravalue"
	"github.com/fora-lang/cumulus/pkg/judgment"
)

type fakeSource struct {
	pages map[PageId]*foravalue.ForaValueArray
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[PageId]*foravalue.ForaValueArray{}}
}

func (f *fakeSource) withPage(id PageId, values ...int64) *fakeSource {
	arr := foravalue.New()
	for _, v := range values {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		_ = arr.Append(judgment.NewPOD(judgment.Type(judgment.TypeInt64), b))
	}
	f.pages[id] = arr
	return f
}

func (f *fakeSource) ResolvePage(id PageId) (*foravalue.ForaValueArray, error) {
	return f.pages[id], nil
}

func TestBigVectorHandle_ResolvesThroughSlowPathThenCaches(t *testing.T) {
	p1, p2 := page(1), page(2)
	src := newFakeSource().withPage(p1, 10, 11, 12, 13).withPage(p2, 20, 21, 22, 23)
	layout := NewBigVectorPageLayout([]VectorDataIDSlice{
		{Page: p1, Local: NewIntegerSequence(0, 1, 4)},
		{Page: p2, Local: NewIntegerSequence(0, 1, 4)},
	})
	h := NewBigVectorHandle(layout, src)

	arr, off, err := h.SliceForOffset(5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), off)
	v, err := arr.At(int(off))
	require.NoError(t, err)
	assert.Equal(t, byte(21), v.Bytes()[0])

	// second lookup within the same slice should hit the cache, not the source.
	arr2, off2, err := h.SliceForOffset(6)
	require.NoError(t, err)
	assert.Same(t, arr, arr2)
	assert.Equal(t, int64(2), off2)
}

func TestBigVectorHandle_TwoSlotCacheHoldsBothRecentSlices(t *testing.T) {
	p1, p2, p3 := page(1), page(2), page(3)
	src := newFakeSource().withPage(p1, 1, 2).withPage(p2, 3, 4).withPage(p3, 5, 6)
	layout := NewBigVectorPageLayout([]VectorDataIDSlice{
		{Page: p1, Local: NewIntegerSequence(0, 1, 2)},
		{Page: p2, Local: NewIntegerSequence(0, 1, 2)},
		{Page: p3, Local: NewIntegerSequence(0, 1, 2)},
	})
	h := NewBigVectorHandle(layout, src)

	_, _, err := h.SliceForOffset(0) // installs slot0 <- page1
	require.NoError(t, err)
	_, _, err = h.SliceForOffset(2) // installs slot1 <- page2
	require.NoError(t, err)

	// page1 still cached in slot0
	arr, off, err := h.SliceForOffset(1)
	require.NoError(t, err)
	v, _ := arr.At(int(off))
	assert.Equal(t, byte(2), v.Bytes()[0])
}

func TestBigVectorHandle_OutOfRangeWithNoUnpagedTail(t *testing.T) {
	p1 := page(1)
	src := newFakeSource().withPage(p1, 1, 2)
	layout := NewBigVectorPageLayout([]VectorDataIDSlice{
		{Page: p1, Local: NewIntegerSequence(0, 1, 2)},
	})
	h := NewBigVectorHandle(layout, src)

	_, _, err := h.SliceForOffset(5)
	assert.Error(t, err)
}

func TestBigVectorHandle_UnpagedTailExtendsRange(t *testing.T) {
	p1 := page(1)
	src := newFakeSource().withPage(p1, 1, 2)
	layout := NewBigVectorPageLayout([]VectorDataIDSlice{
		{Page: p1, Local: NewIntegerSequence(0, 1, 2)},
	})
	h := NewBigVectorHandle(layout, src)

	tail := foravalue.New()
	b := make([]byte, 8)
	b[0] = 99
	require.NoError(t, tail.Append(judgment.NewPOD(judgment.Type(judgment.TypeInt64), b)))
	require.NoError(t, h.AppendUnpaged(tail, 0, tail.Size()))

	assert.Equal(t, int64(3), h.Size())

	arr, off, err := h.SliceForOffset(2)
	require.NoError(t, err)
	v, err := arr.At(int(off))
	require.NoError(t, err)
	assert.Equal(t, byte(99), v.Bytes()[0])
}
