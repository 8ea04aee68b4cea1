package judgment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPOD_RoundTrip(t *testing.T) {
	v := NewPOD(Type(TypeInt64), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, TypeInt64, v.Judgment().TypeName())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, v.Bytes())
	assert.True(t, v.IsPOD())
}

func TestNewPOD_PanicsOnNonPOD(t *testing.T) {
	assert.Panics(t, func() {
		NewPOD(Type(TypeString), []byte("hi"))
	})
}

func TestNewBoxed(t *testing.T) {
	v := NewBoxed(Type(TypeString), "hello")
	assert.Equal(t, "hello", v.Boxed())
	assert.False(t, v.IsPOD())
}

func TestRefCounting(t *testing.T) {
	v := NewBoxed(Type(TypeString), "hello")
	assert.Equal(t, int32(1), v.RefCount())

	v2 := v.Retain()
	assert.Equal(t, int32(2), v.RefCount())
	assert.Equal(t, int32(2), v2.RefCount())

	assert.False(t, v.Release())
	assert.Equal(t, int32(1), v.RefCount())

	assert.True(t, v2.Release())
	assert.Equal(t, int32(0), v.RefCount())
}
