package objectpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type buf struct {
	data []byte
}

func TestCheckout_ConstructsLazily(t *testing.T) {
	built := 0
	p := New(func() *buf {
		built++
		return &buf{data: make([]byte, 0, 16)}
	}, nil)

	h1 := p.Checkout()
	assert.Equal(t, 1, built)
	assert.Equal(t, int32(1), h1.RefCount())
	assert.NotNil(t, h1.Value())
}

func TestRelease_ReturnsToReuseQueue(t *testing.T) {
	built := 0
	p := New(func() *buf {
		built++
		return &buf{}
	}, nil)

	h1 := p.Checkout()
	h1.Value().data = []byte("hello")
	h1.Release()

	h2 := p.Checkout()
	assert.Equal(t, 1, built, "second checkout should reuse the released value")
	assert.Equal(t, h1.Value(), h2.Value())
}

func TestDestructor_RunsOnRelease(t *testing.T) {
	resetCount := 0
	p := New(func() *buf {
		return &buf{data: []byte("x")}
	}, func(b *buf) {
		resetCount++
		b.data = nil
	})

	h := p.Checkout()
	h.Release()

	assert.Equal(t, 1, resetCount)
}

func TestRetain_DelaysReuse(t *testing.T) {
	built := 0
	p := New(func() *buf {
		built++
		return &buf{}
	}, nil)

	h1 := p.Checkout()
	h2 := h1.Retain()

	h1.Release()
	assert.Equal(t, 0, p.reuse.Len())

	h2.Release()
	assert.Equal(t, 1, p.reuse.Len())
	assert.Equal(t, 1, built)
}

func TestOutstanding(t *testing.T) {
	p := New(func() *buf { return &buf{} }, nil)

	h1 := p.Checkout()
	_ = p.Checkout()
	assert.Equal(t, 2, p.Outstanding())

	h1.Release()
	assert.Equal(t, 1, p.Outstanding())
}
