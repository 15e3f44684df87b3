package engine

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// newTestEngine returns a debug engine over one CPU backend with every kernel and
// gradient registered.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := kernels.NewRegistry()
	require.NoError(t, cpu.RegisterKernels(reg, cpu.Name))
	require.NoError(t, ops.Register(reg))
	return newEngineWith(t, reg)
}

func newEngineWith(t *testing.T, reg *kernels.Registry) *Engine {
	t.Helper()
	backends := backend.NewRegistry()
	require.NoError(t, backends.Register(cpu.Name, cpu.Factory(cpu.Options{NumThreads: 2}), cpu.Priority))
	e := New(Config{Backends: backends, Kernels: reg, Debug: true})
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	return e
}

func floats(t *testing.T, e *Engine, values []float32, dims ...int) *tensor.Tensor {
	t.Helper()
	x, err := FromSlice(e, values, dims...)
	require.NoError(t, err)
	return x
}

func readFloats(t *testing.T, e *Engine, x *tensor.Tensor) []float32 {
	t.Helper()
	require.NotNil(t, x)
	values, err := ReadSlice[float32](context.Background(), e, x)
	require.NoError(t, err)
	return values
}

// must1 unwraps an op result, failing the test on error: must1(t)(ops.Add(e, a, b)).
func must1(t *testing.T) func(*tensor.Tensor, error) *tensor.Tensor {
	t.Helper()
	return func(x *tensor.Tensor, err error) *tensor.Tensor {
		t.Helper()
		require.NoError(t, err)
		return x
	}
}

func TestEngine_LazyBackendSelection(t *testing.T) {
	e := newTestEngine(t)
	_, found := e.Backends().Initialized(cpu.Name)
	assert.False(t, found, "no backend before the first operation")

	floats(t, e, []float32{1})
	name, err := e.BackendName()
	require.NoError(t, err)
	assert.Equal(t, cpu.Name, name)
}

func TestEngine_NoBackend(t *testing.T) {
	e := New(Config{Kernels: kernels.NewRegistry()})
	_, err := FromSlice(e, []float32{1})
	assert.True(t, errors.Is(err, backend.ErrNoBackend), "got %v", err)
}

func TestRunKernel_AddMul(t *testing.T) {
	e := newTestEngine(t)
	a := floats(t, e, []float32{1, 2, 3})
	b := floats(t, e, []float32{4, 5, 6})

	sum := must1(t)(ops.Add(e, a, b))
	prod := must1(t)(ops.Mul(e, a, b))
	assert.Equal(t, []float32{5, 7, 9}, readFloats(t, e, sum))
	assert.Equal(t, []float32{4, 10, 18}, readFloats(t, e, prod))
	assert.Equal(t, 4, e.Memory().NumTensors)
	assert.Equal(t, 4, e.Memory().NumDataBuffers)
}

func TestRunKernel_KernelNotFound(t *testing.T) {
	e := newTestEngine(t)
	x := floats(t, e, []float32{1})
	e.Kernels().Unregister(kernels.OpExp, cpu.Name)

	_, err := ops.Exp(e, x)
	var notFound *kernels.KernelNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, kernels.OpExp, notFound.Op)
	assert.Equal(t, kernels.BackendID(cpu.Name), notFound.Backend)
}

func TestRunKernel_IdentitySharesBuffer(t *testing.T) {
	e := newTestEngine(t)
	x := floats(t, e, []float32{1, 2})
	y := must1(t)(ops.Identity(e, x))

	assert.Same(t, x.Ref(), y.Ref())
	assert.Equal(t, 2, e.RefCount(x))
	assert.Equal(t, 1, e.Memory().NumDataBuffers)

	require.NoError(t, e.Dispose(y))
	assert.Equal(t, 1, e.RefCount(x))
	assert.Equal(t, []float32{1, 2}, readFloats(t, e, x))
}

func TestRunKernel_DisposedInput(t *testing.T) {
	e := newTestEngine(t)
	x := floats(t, e, []float32{1})
	require.NoError(t, e.Dispose(x))

	_, err := ops.Neg(e, x)
	assert.True(t, errors.Is(err, ErrDisposedTensor), "got %v", err)
}

func TestRunKernel_ZeroSizeSkipsKernel(t *testing.T) {
	e := newTestEngine(t)
	e.Kernels().Unregister(kernels.OpNeg, cpu.Name)
	require.NoError(t, e.Kernels().Register(kernels.KernelConfig{
		Op:      kernels.OpNeg,
		Backend: cpu.Name,
		Kernel: func(*kernels.Context) ([]kernels.Output, error) {
			return nil, errors.New("kernel must not run for empty outputs")
		},
		OutputShape: kernels.UnaryShape,
	}))

	x, err := e.Zeros(tensor.Shape{0, 3}, tensor.Float32)
	require.NoError(t, err)
	y, err := ops.Neg(e, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 3}, y.Shape())
	assert.Empty(t, readFloats(t, e, y))

	// Non-empty inputs still reach the kernel.
	_, err = ops.Neg(e, floats(t, e, []float32{1}))
	assert.Error(t, err)
}

func TestRunKernel_LeakCheck(t *testing.T) {
	e := newTestEngine(t)
	e.Kernels().Unregister(kernels.OpSquare, cpu.Name)
	require.NoError(t, e.Kernels().Register(kernels.KernelConfig{
		Op:      kernels.OpSquare,
		Backend: cpu.Name,
		Kernel: func(ctx *kernels.Context) ([]kernels.Output, error) {
			x := ctx.Inputs[kernels.InputX]
			if _, err := ctx.Backend.Write(nil, x.Shape(), x.DType()); err != nil {
				return nil, err
			}
			id, err := ctx.Backend.Write(nil, x.Shape(), x.DType())
			if err != nil {
				return nil, err
			}
			return []kernels.Output{{DataID: id, Shape: x.Shape(), DType: x.DType()}}, nil
		},
	}))

	x := floats(t, e, []float32{1, 2})
	_, err := ops.Square(e, x)
	var leak *MemoryLeakError
	require.True(t, errors.As(err, &leak), "got %v", err)
	assert.Equal(t, kernels.OpSquare, leak.Op)
	assert.Equal(t, leak.Before+1, leak.Expected)
	assert.Equal(t, leak.Before+2, leak.After)

	e.SetDebug(false)
	_, err = ops.Square(e, x)
	assert.NoError(t, err)
}

func TestEngine_ReadAll(t *testing.T) {
	e := newTestEngine(t)
	a := floats(t, e, []float32{1})
	b, err := FromSlice(e, []int32{7, 8}, 2)
	require.NoError(t, err)

	values, err := e.ReadAll(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, []any{[]float32{1}, []int32{7, 8}}, values)
}

func TestEngine_ReadSyncAndScalar(t *testing.T) {
	e := newTestEngine(t)
	s, err := Scalar(e, float32(2.5))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Rank())

	values, err := e.ReadSync(s)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5}, values)
}

func TestEngine_Reset(t *testing.T) {
	e := newTestEngine(t)
	x := floats(t, e, []float32{1})
	_, err := e.Variable(x, true, "w")
	require.NoError(t, err)

	require.NoError(t, e.Reset())
	assert.Equal(t, 0, e.Memory().NumTensors)
	assert.Empty(t, e.Variables())

	// The engine selects a backend again after a reset.
	floats(t, e, []float32{2})
	assert.Equal(t, 1, e.Memory().NumTensors)
}
