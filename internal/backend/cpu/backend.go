// Package cpu implements the CPU backend: dense Go slices held in a generation-checked
// arena, with the reference kernels running synchronously.
package cpu

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/envconfig"
	"github.com/born-ml/engine/internal/parallel"
	"github.com/born-ml/engine/internal/tensor"
)

const (
	// Name is the name the CPU backend registers under.
	Name = "cpu"

	// Priority is the CPU backend's registration priority; accelerated backends use a
	// higher one.
	Priority = 1
)

// buffer is one record of the CPU store.
type buffer struct {
	values any
	shape  tensor.Shape
	dtype  tensor.DataType
	bytes  int
}

// Options configure a CPU backend.
type Options struct {
	// MaxBytes limits the bytes held by live buffers. 0 means no limit.
	MaxBytes uint64

	// NumThreads is the number of goroutines kernels may use. 0 or 1 runs sequentially.
	NumThreads int
}

// OptionsFromEnv reads BORN_CPU_MAX_BYTES and BORN_NUM_THREADS.
func OptionsFromEnv() Options {
	return Options{
		MaxBytes:   envconfig.CPUMaxBytes(),
		NumThreads: envconfig.NumThreads(),
	}
}

// CPUBackend stores tensors as Go slices.
type CPUBackend struct {
	store    *backend.Arena[*buffer]
	par      parallel.Config
	maxBytes int64
	numBytes atomic.Int64
	closed   atomic.Bool
}

var _ backend.Backend = (*CPUBackend)(nil)

// New creates a new CPU backend.
func New(opts Options) *CPUBackend {
	return &CPUBackend{
		store:    backend.NewArena[*buffer](),
		par:      parallel.NewConfig(opts.NumThreads),
		maxBytes: int64(opts.MaxBytes), //nolint:gosec // G115: limits beyond 8EiB are not meaningful
	}
}

// Factory returns a backend.Factory creating CPU backends with opts.
func Factory(opts Options) backend.Factory {
	return func(context.Context) (backend.Backend, error) {
		return New(opts), nil
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return Name
}

func (cpu *CPUBackend) checkOpen() error {
	if cpu.closed.Load() {
		return errors.Wrapf(backend.ErrBackendUnavailable, "backend %q was closed", Name)
	}
	return nil
}

// put stores values, which the store takes ownership of.
func (cpu *CPUBackend) put(values any, shape tensor.Shape, dtype tensor.DataType, refCount int) (tensor.DataID, error) {
	if err := cpu.checkOpen(); err != nil {
		return tensor.DataID{}, err
	}
	bytes := tensor.ValuesBytes(values)
	if cpu.maxBytes > 0 {
		inUse := cpu.numBytes.Load()
		if inUse+int64(bytes) > cpu.maxBytes {
			return tensor.DataID{}, errors.Wrapf(backend.ErrOutOfMemory,
				"backend %q: allocating %s for %s%v with %s in use (limit %s)", Name,
				humanize.IBytes(uint64(bytes)), dtype, shape,
				humanize.IBytes(uint64(inUse)), humanize.IBytes(uint64(cpu.maxBytes)))
		}
	}
	cpu.numBytes.Add(int64(bytes))
	return cpu.store.Insert(&buffer{values: values, shape: shape.Clone(), dtype: dtype, bytes: bytes}, refCount), nil
}

func (cpu *CPUBackend) adopt(values any, shape tensor.Shape, dtype tensor.DataType, refCount int) (tensor.DataID, error) {
	if err := shape.Validate(); err != nil {
		return tensor.DataID{}, errors.Wrapf(err, "backend %q", Name)
	}
	if values == nil {
		values = tensor.MakeValues(dtype, shape.NumElements())
	} else {
		if err := tensor.CheckValues(values, shape, dtype); err != nil {
			return tensor.DataID{}, errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: %v", Name, err)
		}
		values = tensor.CloneValues(values)
	}
	return cpu.put(values, shape, dtype, refCount)
}

// Write copies values into a new buffer with refCount 1.
func (cpu *CPUBackend) Write(values any, shape tensor.Shape, dtype tensor.DataType) (tensor.DataID, error) {
	return cpu.adopt(values, shape, dtype, 1)
}

// Move copies values relocated from another backend into a new buffer with refCount.
func (cpu *CPUBackend) Move(values any, shape tensor.Shape, dtype tensor.DataType, refCount int) (tensor.DataID, error) {
	return cpu.adopt(values, shape, dtype, refCount)
}

// buffer returns the live record of id, without copying.
func (cpu *CPUBackend) buffer(id tensor.DataID) (*buffer, error) {
	if err := cpu.checkOpen(); err != nil {
		return nil, err
	}
	buf, err := cpu.store.Get(id)
	if err != nil {
		return nil, errors.Wrapf(err, "backend %q", Name)
	}
	return buf, nil
}

// Read returns a copy of the buffer's values. CPU buffers are always materialized.
func (cpu *CPUBackend) Read(ctx context.Context, id tensor.DataID) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cpu.ReadSync(id)
}

// ReadSync returns a copy of the buffer's values.
func (cpu *CPUBackend) ReadSync(id tensor.DataID) (any, error) {
	buf, err := cpu.buffer(id)
	if err != nil {
		return nil, err
	}
	return tensor.CloneValues(buf.values), nil
}

// IncRef adds one reference to the buffer.
func (cpu *CPUBackend) IncRef(id tensor.DataID) error {
	if err := cpu.checkOpen(); err != nil {
		return err
	}
	return errors.Wrapf(cpu.store.IncRef(id), "backend %q", Name)
}

// DisposeData drops one reference, or all of them if force, freeing the buffer at 0.
func (cpu *CPUBackend) DisposeData(id tensor.DataID, force bool) (bool, error) {
	if err := cpu.checkOpen(); err != nil {
		return false, err
	}
	buf, reclaimed, err := cpu.store.Release(id, force)
	if err != nil {
		return false, errors.Wrapf(err, "backend %q", Name)
	}
	if reclaimed {
		cpu.numBytes.Add(-int64(buf.bytes))
	}
	return reclaimed, nil
}

// RefCount returns the buffer's reference count.
func (cpu *CPUBackend) RefCount(id tensor.DataID) int {
	return cpu.store.RefCount(id)
}

// NumDataIDs returns the number of live buffers.
func (cpu *CPUBackend) NumDataIDs() int {
	return cpu.store.Len()
}

// Memory reports the exact bytes held by live buffers.
func (cpu *CPUBackend) Memory() backend.MemoryInfo {
	return backend.MemoryInfo{
		NumBytes:   int(cpu.numBytes.Load()),
		NumBuffers: cpu.store.Len(),
		Reliable:   true,
	}
}

// Time runs f. CPU kernels run synchronously, so kernel time is the wall time.
func (cpu *CPUBackend) Time(f func() error) (backend.TimingInfo, error) {
	start := time.Now()
	err := f()
	elapsed := time.Since(start)
	return backend.TimingInfo{KernelTime: elapsed, WallTime: elapsed}, err
}

// Close frees every buffer. Further calls fail with backend.ErrBackendUnavailable.
func (cpu *CPUBackend) Close() error {
	if cpu.closed.Swap(true) {
		return nil
	}
	freed := cpu.store.Clear()
	cpu.numBytes.Store(0)
	klog.V(1).Infof("cpu backend closed, freed %d buffers", len(freed))
	return nil
}
