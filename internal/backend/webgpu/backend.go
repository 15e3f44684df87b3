//go:build windows

package webgpu

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/tensor"
)

// buffer is one record of the WebGPU store. Float32 records with elements live in a
// device buffer; values holds the host copy, nil until a read brings it back. Records of
// other dtypes are host only.
type buffer struct {
	gpu      *wgpu.Buffer
	capacity uint64
	size     uint64
	shape    tensor.Shape
	dtype    tensor.DataType

	mu     sync.Mutex
	values any
}

// Backend runs kernels on a WebGPU device.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	opts     Options

	store    *backend.Arena[*buffer]
	pool     *bufferPool
	numBytes atomic.Int64
	closed   atomic.Bool

	pipelinesMu sync.Mutex
	shaders     map[string]*wgpu.ShaderModule
	pipelines   map[string]*wgpu.ComputePipeline

	batchMu     sync.Mutex
	batch       *commandBatch
	submissions atomic.Int64
}

var _ backend.Backend = (*Backend)(nil)

// New creates a WebGPU backend on the default adapter. It fails with
// backend.ErrBackendUnavailable if the native library or an adapter is missing.
func New(opts Options) (b *Backend, err error) {
	// wgpu panics if the native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = errors.Wrapf(backend.ErrBackendUnavailable, "backend %q: native library not available: %v", Name, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrapf(backend.ErrBackendUnavailable, "backend %q: requesting adapter: %v", Name, err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(backend.ErrBackendUnavailable, "backend %q: requesting device: %v", Name, err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(backend.ErrBackendUnavailable, "backend %q: device has no queue", Name)
	}

	klog.V(1).Infof("webgpu backend created, batch size %d", opts.BatchSize)
	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		opts:      opts,
		store:     backend.NewArena[*buffer](),
		pool:      newBufferPool(device),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Factory returns a backend.Factory creating WebGPU backends with opts.
func Factory(opts Options) backend.Factory {
	return func(ctx context.Context) (backend.Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return New(opts)
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return Name
}

func (b *Backend) checkOpen() error {
	if b.closed.Load() {
		return errors.Wrapf(backend.ErrBackendUnavailable, "backend %q was closed", Name)
	}
	return nil
}

// createBuffer creates a buffer of the given usage holding data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size) //nolint:gosec // mapped range is size bytes
	copy(mapped, data)
	buf.Unmap()
	return buf
}

// paramsBuffer uploads shader parameters. It is released with the batch recording it.
func (b *Backend) paramsBuffer(words []uint32) (*wgpu.Buffer, uint64) {
	data := wordBytes(words)
	return b.createBuffer(data, wgpu.BufferUsageStorage), uint64(len(data))
}

// readBuffer copies size bytes of src back to the host through a staging buffer,
// waiting for the device.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrapf(err, "backend %q: mapping staging buffer", Name)
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size) //nolint:gosec // mapped range is size bytes
	data := make([]byte, size)
	copy(data, mapped)
	staging.Unmap()
	return data, nil
}

// upload records a copy of values into a pooled device buffer.
func (b *Backend) upload(values []float32) (*wgpu.Buffer, uint64) {
	data := float32Bytes(values)
	dst, capacity := b.pool.acquire(uint64(len(data)))
	src := b.createBuffer(data, wgpu.BufferUsageCopySrc)

	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	if b.batch == nil {
		b.batch = &commandBatch{encoder: b.device.CreateCommandEncoder(nil)}
	}
	b.batch.encoder.CopyBufferToBuffer(src, 0, dst, 0, uint64(len(data)))
	b.batch.transient = append(b.batch.transient, src)
	return dst, capacity
}

// put stores host values, which the store takes ownership of. Float32 values are also
// uploaded to the device.
func (b *Backend) put(values any, shape tensor.Shape, dtype tensor.DataType, refCount int) (tensor.DataID, error) {
	if err := b.checkOpen(); err != nil {
		return tensor.DataID{}, err
	}
	rec := &buffer{shape: shape.Clone(), dtype: dtype, values: values}
	bytes := tensor.ValuesBytes(values)
	if f32, ok := values.([]float32); ok && len(f32) > 0 {
		rec.gpu, rec.capacity = b.upload(f32)
		rec.size = uint64(bytes)
	}
	b.numBytes.Add(int64(bytes))
	return b.store.Insert(rec, refCount), nil
}

// alloc stores a device-only float32 record for a kernel output.
func (b *Backend) alloc(shape tensor.Shape) (tensor.DataID, *buffer, error) {
	if err := b.checkOpen(); err != nil {
		return tensor.DataID{}, nil, err
	}
	size := uint64(shape.NumElements() * tensor.Float32.Size()) //nolint:gosec // G115: sizes are non-negative
	rec := &buffer{shape: shape.Clone(), dtype: tensor.Float32, size: size}
	rec.gpu, rec.capacity = b.pool.acquire(size)
	b.numBytes.Add(int64(size)) //nolint:gosec // G115
	return b.store.Insert(rec, 1), rec, nil
}

func (b *Backend) adopt(values any, shape tensor.Shape, dtype tensor.DataType, refCount int) (tensor.DataID, error) {
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
	return b.put(values, shape, dtype, refCount)
}

// Write copies values into a new record with refCount 1.
func (b *Backend) Write(values any, shape tensor.Shape, dtype tensor.DataType) (tensor.DataID, error) {
	return b.adopt(values, shape, dtype, 1)
}

// Move adopts values relocated from another backend with refCount references.
func (b *Backend) Move(values any, shape tensor.Shape, dtype tensor.DataType, refCount int) (tensor.DataID, error) {
	return b.adopt(values, shape, dtype, refCount)
}

func (b *Backend) record(id tensor.DataID) (*buffer, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	rec, err := b.store.Get(id)
	if err != nil {
		return nil, errors.Wrapf(err, "backend %q", Name)
	}
	return rec, nil
}

// materialize returns the host values of rec, reading them back from the device once.
func (b *Backend) materialize(rec *buffer) (any, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.values != nil {
		return rec.values, nil
	}
	b.flush()
	data, err := b.readBuffer(rec.gpu, rec.size)
	if err != nil {
		return nil, err
	}
	rec.values = bytesFloat32(data, rec.shape.NumElements())
	return rec.values, nil
}

// Read returns a copy of the record's values, waiting for pending kernels.
func (b *Backend) Read(ctx context.Context, id tensor.DataID) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := b.record(id)
	if err != nil {
		return nil, err
	}
	values, err := b.materialize(rec)
	if err != nil {
		return nil, err
	}
	return tensor.CloneValues(values), nil
}

// ReadSync returns a copy of the record's host values. Records produced by kernels and
// not read yet fail with backend.ErrAsyncOnly.
func (b *Backend) ReadSync(id tensor.DataID) (any, error) {
	rec, err := b.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.values == nil {
		return nil, errors.Wrapf(backend.ErrAsyncOnly, "backend %q: data id %s is on the device", Name, id)
	}
	return tensor.CloneValues(rec.values), nil
}

// IncRef adds one reference to the record.
func (b *Backend) IncRef(id tensor.DataID) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return errors.Wrapf(b.store.IncRef(id), "backend %q", Name)
}

// DisposeData drops one reference, or all of them if force. The device buffer goes back
// to the pool at 0.
func (b *Backend) DisposeData(id tensor.DataID, force bool) (bool, error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	rec, reclaimed, err := b.store.Release(id, force)
	if err != nil {
		return false, errors.Wrapf(err, "backend %q", Name)
	}
	if reclaimed {
		b.free(rec)
	}
	return reclaimed, nil
}

func (b *Backend) free(rec *buffer) {
	if rec.gpu != nil {
		b.pool.release(rec.gpu, rec.capacity)
		rec.gpu = nil
	}
	b.numBytes.Add(-int64(rec.bytes()))
}

func (rec *buffer) bytes() int {
	return rec.shape.NumElements() * rec.dtype.Size()
}

// RefCount returns the record's reference count.
func (b *Backend) RefCount(id tensor.DataID) int {
	return b.store.RefCount(id)
}

// NumDataIDs returns the number of live records.
func (b *Backend) NumDataIDs() int {
	return b.store.Len()
}

// Memory reports the logical bytes of live records. Device allocations are rounded up
// and pooled, so the figure is not reliable.
func (b *Backend) Memory() backend.MemoryInfo {
	stats := b.pool.stats()
	return backend.MemoryInfo{
		NumBytes:   int(b.numBytes.Load()),
		NumBuffers: b.store.Len(),
		Reliable:   false,
		Reasons: []string{
			"device buffers are pooled by size class: " + humanize.IBytes(stats.deviceBytes) + " allocated",
		},
	}
}

// Time runs f and submits the kernels it recorded. Without timestamp queries the kernel
// time is the wall time including submission.
func (b *Backend) Time(f func() error) (backend.TimingInfo, error) {
	b.flush()
	start := time.Now()
	err := f()
	b.flush()
	elapsed := time.Since(start)
	return backend.TimingInfo{KernelTime: elapsed, WallTime: elapsed}, err
}

// Close submits pending work and releases every buffer, pipeline and the device. Further
// calls fail with backend.ErrBackendUnavailable.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.flush()
	freed := b.store.Clear()
	for _, rec := range freed {
		b.free(rec)
	}
	b.pool.clear()
	b.releasePipelines()
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
	klog.V(1).Infof("webgpu backend closed, freed %d buffers after %d submissions", len(freed), b.submissions.Load())
	return nil
}
