// Package vm is the boundary runtime: a reference-counted tensor and value
// representation plus the invocation entry point callers outside the
// compiled program use.
package vm

import "sync/atomic"

// Counted is implemented by heap objects carrying an intrusive reference
// count.
type Counted interface {
	refCount() *atomic.Int32
	destroy()
}

// Ref is a shared-ownership handle over a Counted object. Copying a Ref
// requires Retain; dropping one requires Release. The count transitions
// 1 -> 0 exactly once, at which point the object is destroyed.
type Ref[T Counted] struct {
	ptr T
	ok  bool
}

// NewRef wraps a freshly constructed object and takes the first reference.
func NewRef[T Counted](p T) Ref[T] {
	p.refCount().Add(1)
	return Ref[T]{ptr: p, ok: true}
}

// Retain returns an additional owning handle to the same object.
func (r Ref[T]) Retain() Ref[T] {
	if !r.ok {
		return r
	}
	r.ptr.refCount().Add(1)
	return Ref[T]{ptr: r.ptr, ok: true}
}

// Release drops this handle's ownership, destroying the object when it held
// the last reference. Releasing a zero Ref is a no-op.
func (r *Ref[T]) Release() {
	if !r.ok {
		return
	}
	r.ok = false
	if r.ptr.refCount().Add(-1) == 0 {
		r.ptr.destroy()
	}
}

// Get returns the underlying object. The handle keeps owning it.
func (r Ref[T]) Get() T {
	return r.ptr
}

// Valid reports whether the handle owns an object.
func (r Ref[T]) Valid() bool {
	return r.ok
}

// DebugRefCount exposes the current count for tests.
func (r Ref[T]) DebugRefCount() int32 {
	if !r.ok {
		return 0
	}
	return r.ptr.refCount().Load()
}
