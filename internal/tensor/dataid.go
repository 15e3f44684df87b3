package tensor

import "fmt"

// DataID is a generation-checked handle to a buffer record inside one backend.
//
// Index selects a slot of the backend's arena; Generation is bumped every time the slot
// is reclaimed, so a stale DataID is detected instead of silently aliasing a new buffer.
// The zero DataID is never issued.
type DataID struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether id was never issued by a backend.
func (id DataID) IsZero() bool {
	return id.Generation == 0
}

// String returns "d<index>.<generation>".
func (id DataID) String() string {
	return fmt.Sprintf("d%d.%d", id.Index, id.Generation)
}

// DataRef is the engine's metadata record for one logical buffer: which backend owns it
// and under which id. All handles sharing a buffer share the same DataRef, so moving the
// data to another backend rebinds every handle at once.
type DataRef struct {
	ID      DataID
	Backend string
	Shape   Shape
	DType   DataType
	Bytes   int
}

// NewDataRef creates a DataRef for a buffer just written to backend.
func NewDataRef(id DataID, backend string, shape Shape, dtype DataType, bytes int) *DataRef {
	return &DataRef{
		ID:      id,
		Backend: backend,
		Shape:   shape.Clone(),
		DType:   dtype,
		Bytes:   bytes,
	}
}
