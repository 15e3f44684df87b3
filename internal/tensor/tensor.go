package tensor

import "fmt"

// Tensor is an immutable handle to a buffer owned by a backend.
//
// A Tensor never owns memory: the backend's buffer record does, and the record's
// reference count says how many live handles point at it. Several handles can share one
// buffer (reshape, identity, clones kept by the gradient tape).
//
// Handles are created by the engine. The disposed flag is only changed by the engine's
// scope manager.
type Tensor struct {
	id    int64
	shape Shape
	dtype DataType
	ref   *DataRef

	disposed bool
}

// New creates a handle. It does not touch the backend's reference count.
func New(id int64, shape Shape, dtype DataType, ref *DataRef) *Tensor {
	return &Tensor{
		id:    id,
		shape: shape.Clone(),
		dtype: dtype,
		ref:   ref,
	}
}

// ID returns the handle's unique id within its engine.
func (t *Tensor) ID() int64 {
	return t.id
}

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return t.shape.NumElements()
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// DataID returns the id of the buffer currently backing the tensor.
func (t *Tensor) DataID() DataID {
	return t.ref.ID
}

// Backend returns the name of the backend owning the buffer.
func (t *Tensor) Backend() string {
	return t.ref.Backend
}

// Ref returns the shared buffer metadata.
func (t *Tensor) Ref() *DataRef {
	return t.ref
}

// IsDisposed reports whether the handle already released its buffer reference.
func (t *Tensor) IsDisposed() bool {
	return t.disposed
}

// MarkDisposed flags the handle as released. It returns false if it already was.
func (t *Tensor) MarkDisposed() bool {
	if t.disposed {
		return false
	}
	t.disposed = true
	return true
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	state := ""
	if t.disposed {
		state = ", disposed"
	}
	return fmt.Sprintf("Tensor#%d(%s%v, %s@%s%s)", t.id, t.dtype, t.shape, t.ref.ID, t.ref.Backend, state)
}
