package judgment

import (
	"sync/atomic"
)

// ImplValContainer is a reference-counted boxed value over a memory pool.
// POD values (see Judgment.IsPOD) are stored inline in Bytes; non-POD
// values are stored as an opaque Go value in Boxed and require the
// pool's destructor registry to run on last release.
type ImplValContainer struct {
	jov   Judgment
	bytes []byte
	boxed any
	refs  *int32
}

// NewPOD constructs a container over an inline POD byte representation.
func NewPOD(jov Judgment, bytes []byte) ImplValContainer {
	if !jov.IsPOD() {
		panic("judgment: NewPOD requires a POD judgment")
	}
	n := int32(1)
	return ImplValContainer{jov: jov, bytes: append([]byte(nil), bytes...), refs: &n}
}

// NewBoxed constructs a container over a non-POD Go value, released via
// the owning Pool's destructor registry when refcount hits zero.
func NewBoxed(jov Judgment, value any) ImplValContainer {
	n := int32(1)
	return ImplValContainer{jov: jov, boxed: value, refs: &n}
}

func (v ImplValContainer) Judgment() Judgment { return v.jov }

func (v ImplValContainer) Bytes() []byte { return v.bytes }

func (v ImplValContainer) Boxed() any { return v.boxed }

func (v ImplValContainer) IsPOD() bool { return v.jov.IsPOD() }

// Retain increments the refcount and returns v, mirroring the C++
// original's copy-construction semantics without allocating a new box.
func (v ImplValContainer) Retain() ImplValContainer {
	if v.refs != nil {
		atomic.AddInt32(v.refs, 1)
	}
	return v
}

// Release decrements the refcount and reports whether this was the last
// reference, i.e. whether the caller's pool should run the destructor
// registry for v's judgment now.
func (v ImplValContainer) Release() bool {
	if v.refs == nil {
		return false
	}
	return atomic.AddInt32(v.refs, -1) == 0
}

func (v ImplValContainer) RefCount() int32 {
	if v.refs == nil {
		return 0
	}
	return atomic.LoadInt32(v.refs)
}
