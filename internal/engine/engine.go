// Package engine ties the kernel registry, the backends, the scope manager and the
// gradient tape together.
//
// An Engine dispatches every operation: it resolves the active backend, looks up the
// kernel, wraps the kernel outputs into tensor handles, tracks those handles in the open
// scope and, while gradients are being computed, records the operation on the tape.
//
// An Engine is not safe for concurrent use. Only reads (Read, ReadAll) may overlap.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/autodiff"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/envconfig"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// Config configures an Engine.
type Config struct {
	// Backends the engine selects from. A nil registry creates an empty one, so backends
	// must then be registered through Backends() before the first operation.
	Backends *backend.Registry

	// Kernels holds the kernels and gradients. Nil uses kernels.Default().
	Kernels *kernels.Registry

	// Backend is the preferred backend name. Empty selects the highest priority backend
	// that initializes.
	Backend string

	// Debug checks after every kernel that the backend holds exactly the buffers the
	// kernel returned.
	Debug bool
}

// DefaultConfig returns the configuration read from the BORN_* environment variables,
// using the default kernel registry.
func DefaultConfig() Config {
	return Config{
		Kernels: kernels.Default(),
		Backend: envconfig.Backend(),
		Debug:   envconfig.Debug(),
	}
}

// Engine executes operations on the registered backends.
type Engine struct {
	id       uuid.UUID
	cfg      Config
	backends *backend.Registry
	kernels  *kernels.Registry

	backendName string
	backend     backend.Backend
	setupDone   map[string]bool

	// refs is the metadata registry of every live logical buffer.
	refs         map[*tensor.DataRef]struct{}
	numBytes     int
	numTensors   int
	nextTensorID int64

	scopes      []*scope
	nextScopeID int

	tape        *autodiff.Tape
	kernelDepth int

	variables      map[string]*Variable
	nextVariableID int

	profiling *ProfileInfo
}

// New creates an Engine. No backend is initialized until the first operation or Ready.
func New(cfg Config) *Engine {
	if cfg.Backends == nil {
		cfg.Backends = backend.NewRegistry()
	}
	if cfg.Kernels == nil {
		cfg.Kernels = kernels.Default()
	}
	e := &Engine{
		id:       uuid.New(),
		cfg:      cfg,
		backends: cfg.Backends,
		kernels:  cfg.Kernels,
	}
	e.resetState()
	klog.V(1).Infof("engine %s created (preferred backend %q, debug=%v)", e.id, cfg.Backend, cfg.Debug)
	return e
}

func (e *Engine) resetState() {
	e.backendName = ""
	e.backend = nil
	e.setupDone = make(map[string]bool)
	e.refs = make(map[*tensor.DataRef]struct{})
	e.numBytes = 0
	e.numTensors = 0
	e.scopes = nil
	e.tape = autodiff.NewTape()
	e.kernelDepth = 0
	e.variables = make(map[string]*Variable)
	e.profiling = nil
}

// ID returns the engine's instance id.
func (e *Engine) ID() string {
	return e.id.String()
}

// String implements fmt.Stringer.
func (e *Engine) String() string {
	name := e.backendName
	if name == "" {
		name = "<none>"
	}
	return fmt.Sprintf("Engine(%s, backend=%s, %d tensors)", e.id, name, e.numTensors)
}

// Backends returns the backend registry the engine selects from.
func (e *Engine) Backends() *backend.Registry {
	return e.backends
}

// Kernels returns the kernel registry the engine dispatches through.
func (e *Engine) Kernels() *kernels.Registry {
	return e.kernels
}

// Debug reports whether the per-kernel leak check is on.
func (e *Engine) Debug() bool {
	return e.cfg.Debug
}

// SetDebug turns the per-kernel leak check on or off.
func (e *Engine) SetDebug(debug bool) {
	e.cfg.Debug = debug
}

// Ready initializes the active backend if it isn't yet. ctx bounds backend creation,
// which may wait for a device.
func (e *Engine) Ready(ctx context.Context) error {
	_, _, err := e.activeBackend(ctx)
	return err
}

// activeBackend returns the active backend, selecting and initializing one on first use.
func (e *Engine) activeBackend(ctx context.Context) (string, backend.Backend, error) {
	if e.backend != nil {
		return e.backendName, e.backend, nil
	}
	name, b, err := e.backends.Best(ctx, e.cfg.Backend)
	if err != nil {
		return "", nil, err
	}
	if err := e.activate(name, b); err != nil {
		return "", nil, err
	}
	klog.V(1).Infof("engine %s: using backend %q", e.id, name)
	return name, b, nil
}

// activate makes b the active backend, running its kernels' setup hooks the first time.
func (e *Engine) activate(name string, b backend.Backend) error {
	if !e.setupDone[name] {
		for _, cfg := range e.kernels.KernelsForBackend(kernels.BackendID(name)) {
			if cfg.Setup == nil {
				continue
			}
			if err := cfg.Setup(b); err != nil {
				return errors.WithMessagef(err, "setting up kernel %s on backend %q", cfg.Op, name)
			}
		}
		e.setupDone[name] = true
	}
	e.backendName, e.backend = name, b
	return nil
}

// teardown runs the teardown hooks of name's kernels if their setup ran.
func (e *Engine) teardown(name string, b backend.Backend) error {
	if !e.setupDone[name] {
		return nil
	}
	delete(e.setupDone, name)
	var firstErr error
	for _, cfg := range e.kernels.KernelsForBackend(kernels.BackendID(name)) {
		if cfg.Teardown == nil {
			continue
		}
		if err := cfg.Teardown(b); err != nil {
			klog.Warningf("tearing down kernel %s on backend %q: %v", cfg.Op, name, err)
			if firstErr == nil {
				firstErr = errors.WithMessagef(err, "tearing down kernel %s on backend %q", cfg.Op, name)
			}
		}
	}
	return firstErr
}

// backendOf returns the backend owning ref's buffer.
func (e *Engine) backendOf(ref *tensor.DataRef) (backend.Backend, error) {
	if e.backend != nil && ref.Backend == e.backendName {
		return e.backend, nil
	}
	b, found := e.backends.Initialized(ref.Backend)
	if !found {
		return nil, errors.Wrapf(backend.ErrBackendUnavailable, "backend %q owning buffer %s", ref.Backend, ref.ID)
	}
	return b, nil
}

// BackendName returns the name of the active backend, initializing one if needed.
func (e *Engine) BackendName() (string, error) {
	name, _, err := e.activeBackend(context.Background())
	return name, err
}

// Backend returns the active backend, initializing one if needed.
func (e *Engine) Backend() (backend.Backend, error) {
	_, b, err := e.activeBackend(context.Background())
	return b, err
}

// addRef registers a new logical buffer.
func (e *Engine) addRef(ref *tensor.DataRef) {
	e.refs[ref] = struct{}{}
	e.numBytes += ref.Bytes
	if e.profiling != nil && e.numBytes > e.profiling.PeakBytes {
		e.profiling.PeakBytes = e.numBytes
	}
}

// dropRef forgets a reclaimed buffer.
func (e *Engine) dropRef(ref *tensor.DataRef) {
	if _, found := e.refs[ref]; !found {
		return
	}
	delete(e.refs, ref)
	e.numBytes -= ref.Bytes
}

// newRef registers a buffer freshly written to the backend name.
func (e *Engine) newRef(id tensor.DataID, name string, shape tensor.Shape, dtype tensor.DataType) *tensor.DataRef {
	ref := tensor.NewDataRef(id, name, shape, dtype, shape.NumElements()*dtype.Size())
	e.addRef(ref)
	return ref
}

// newHandle creates a handle on ref and tracks it in the open scope. The caller has
// already accounted the handle's reference in the backend.
func (e *Engine) newHandle(shape tensor.Shape, dtype tensor.DataType, ref *tensor.DataRef) *tensor.Tensor {
	t := e.untrackedHandle(shape, dtype, ref)
	e.track(t)
	return t
}

// untrackedHandle creates a handle no scope will dispose of.
func (e *Engine) untrackedHandle(shape tensor.Shape, dtype tensor.DataType, ref *tensor.DataRef) *tensor.Tensor {
	e.nextTensorID++
	e.numTensors++
	return tensor.New(e.nextTensorID, shape, dtype, ref)
}

// clone returns a new handle sharing t's buffer, adding a reference to it.
func (e *Engine) clone(t *tensor.Tensor, tracked bool) (*tensor.Tensor, error) {
	if err := e.checkLive(t); err != nil {
		return nil, err
	}
	ref := t.Ref()
	b, err := e.backendOf(ref)
	if err != nil {
		return nil, err
	}
	if err := b.IncRef(ref.ID); err != nil {
		return nil, errors.WithMessagef(err, "cloning %s", t)
	}
	if tracked {
		return e.newHandle(t.Shape(), t.DType(), ref), nil
	}
	return e.untrackedHandle(t.Shape(), t.DType(), ref), nil
}

// Clone returns a new handle sharing t's buffer, tracked by the open scope.
func (e *Engine) Clone(t *tensor.Tensor) (*tensor.Tensor, error) {
	return e.clone(t, true)
}

func (e *Engine) checkLive(t *tensor.Tensor) error {
	if t == nil {
		return errors.New("nil tensor")
	}
	if t.IsDisposed() {
		return errors.Wrapf(ErrDisposedTensor, "%s", t)
	}
	return nil
}

// FromValues writes values (a flat slice of a supported element type) into a new tensor
// of the given shape on the active backend.
func (e *Engine) FromValues(values any, shape tensor.Shape) (*tensor.Tensor, error) {
	dtype, err := tensor.ValuesDataType(values)
	if err != nil {
		return nil, err
	}
	return e.write(values, shape, dtype)
}

// Zeros returns a new zero-filled tensor.
func (e *Engine) Zeros(shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	return e.write(nil, shape, dtype)
}

func (e *Engine) write(values any, shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	name, b, err := e.activeBackend(context.Background())
	if err != nil {
		return nil, err
	}
	id, err := b.Write(values, shape, dtype)
	if err != nil {
		return nil, err
	}
	return e.newHandle(shape, dtype, e.newRef(id, name, shape, dtype)), nil
}

// FromSlice writes values into a new tensor of the given shape. With no dimensions the
// tensor is a vector of len(values).
func FromSlice[T tensor.DType](e *Engine, values []T, dims ...int) (*tensor.Tensor, error) {
	shape := tensor.Shape(dims)
	if len(dims) == 0 {
		shape = tensor.Shape{len(values)}
	}
	return e.write(values, shape, tensor.DataTypeOf[T]())
}

// Scalar writes a rank 0 tensor holding value.
func Scalar[T tensor.DType](e *Engine, value T) (*tensor.Tensor, error) {
	return e.write([]T{value}, tensor.Shape{}, tensor.DataTypeOf[T]())
}

// Reset disposes every tensor and variable, closes every initialized backend and
// forgets the active one. Registered backends and kernels are kept.
func (e *Engine) Reset() error {
	for name := range e.setupDone {
		if b, found := e.backends.Initialized(name); found {
			_ = e.teardown(name, b)
		}
	}
	err := e.backends.Close()
	e.resetState()
	klog.V(1).Infof("engine %s reset", e.id)
	return err
}

// Close releases every resource of the engine. It is equivalent to Reset.
func (e *Engine) Close() error {
	return e.Reset()
}
