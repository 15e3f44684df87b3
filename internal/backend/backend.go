// Package backend defines the interface every compute target implements, the
// generation-checked buffer store backends keep their records in, and the registry the
// engine selects backends from.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/born-ml/engine/internal/tensor"
)

// Backend is the capability set a compute target provides to the engine and to kernels.
//
// Implementations:
//   - cpu: dense Go slices, synchronous.
//   - webgpu: device buffers, results materialized lazily on Read.
//
// Every buffer record carries a reference count equal to the number of live tensor
// handles pointing at it. Only IncRef and DisposeData change it.
type Backend interface {
	// Name returns the backend's short name, used in error messages.
	Name() string

	// Write allocates a new buffer record with refCount 1 holding values.
	// A nil values allocates zeros.
	Write(values any, shape tensor.Shape, dtype tensor.DataType) (tensor.DataID, error)

	// Move adopts a logical tensor relocated from another backend. The new record starts
	// with the given refCount instead of 1.
	Move(values any, shape tensor.Shape, dtype tensor.DataType, refCount int) (tensor.DataID, error)

	// Read returns the buffer's values, waiting for pending device work if needed.
	Read(ctx context.Context, id tensor.DataID) (any, error)

	// ReadSync returns the buffer's values without waiting. It fails with ErrAsyncOnly
	// when the values are only reachable asynchronously.
	ReadSync(id tensor.DataID) (any, error)

	// IncRef adds one reference to the record.
	IncRef(id tensor.DataID) error

	// DisposeData drops one reference (all of them if force) and reports whether the
	// storage was reclaimed.
	DisposeData(id tensor.DataID, force bool) (bool, error)

	// RefCount returns the record's reference count, 0 for reclaimed or unknown ids.
	RefCount(id tensor.DataID) int

	// NumDataIDs returns the number of live buffer records.
	NumDataIDs() int

	// Memory reports the backend's storage usage.
	Memory() MemoryInfo

	// Time runs f and reports how long the backend spent executing it.
	Time(f func() error) (TimingInfo, error)

	// Close releases every buffer and the native context. Later calls fail with
	// ErrBackendUnavailable.
	Close() error
}

// MemoryInfo is the storage usage reported by a backend.
type MemoryInfo struct {
	NumBytes   int
	NumBuffers int
	// Reliable is false when NumBytes is only an estimate (e.g. device memory the
	// backend cannot observe directly).
	Reliable bool
	Reasons  []string
}

// String implements fmt.Stringer.
func (m MemoryInfo) String() string {
	s := fmt.Sprintf("%d buffers, %s", m.NumBuffers, humanize.IBytes(uint64(m.NumBytes)))
	if !m.Reliable {
		s += " (unreliable)"
	}
	return s
}

// TimingInfo is the result of Backend.Time.
type TimingInfo struct {
	KernelTime time.Duration
	WallTime   time.Duration
}

// KernelMs returns KernelTime in milliseconds.
func (t TimingInfo) KernelMs() float64 {
	return float64(t.KernelTime) / float64(time.Millisecond)
}
