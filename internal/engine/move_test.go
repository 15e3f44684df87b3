package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

const secondCPU = "cpu-2"

// newTwoBackendEngine returns an engine with two independent CPU backends, "cpu" being
// preferred.
func newTwoBackendEngine(t *testing.T) *Engine {
	t.Helper()
	reg := kernels.NewRegistry()
	require.NoError(t, cpu.RegisterKernels(reg, cpu.Name))
	require.NoError(t, cpu.RegisterKernels(reg, secondCPU))
	require.NoError(t, ops.Register(reg))
	e := newEngineWith(t, reg)
	require.NoError(t, e.Backends().Register(secondCPU, cpu.Factory(cpu.Options{}), 0))
	return e
}

func initialized(t *testing.T, e *Engine, name string) backend.Backend {
	t.Helper()
	b, found := e.Backends().Initialized(name)
	require.True(t, found, "backend %q not initialized", name)
	return b
}

func TestSetBackend_MovesDataOnUse(t *testing.T) {
	e := newTwoBackendEngine(t)
	x := floats(t, e, []float32{1, 2, 3})
	y := must1(t)(ops.Identity(e, x))
	first := initialized(t, e, cpu.Name)
	require.Equal(t, 1, first.NumDataIDs())

	require.NoError(t, e.SetBackend(context.Background(), secondCPU))
	name, err := e.BackendName()
	require.NoError(t, err)
	assert.Equal(t, secondCPU, name)
	assert.Equal(t, cpu.Name, x.Backend(), "data only moves when used")

	z := must1(t)(ops.Neg(e, x))
	assert.Equal(t, secondCPU, x.Backend())
	assert.Equal(t, secondCPU, y.Backend(), "handles sharing the buffer follow it")
	assert.Equal(t, secondCPU, z.Backend())
	assert.Equal(t, tensor.Shape{3}, x.Shape())
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, 2, e.RefCount(x), "the reference count moves with the data")
	assert.Equal(t, 0, first.NumDataIDs(), "the source record is released")

	assert.Equal(t, []float32{1, 2, 3}, readFloats(t, e, y))
	assert.Equal(t, []float32{-1, -2, -3}, readFloats(t, e, z))
	require.NoError(t, e.Dispose(x, y))
	assert.Equal(t, 1, initialized(t, e, secondCPU).NumDataIDs())
}

func TestMove_Explicit(t *testing.T) {
	e := newTwoBackendEngine(t)
	require.NoError(t, e.SetBackend(context.Background(), secondCPU))
	x := floats(t, e, []float32{4})
	require.NoError(t, e.SetBackend(context.Background(), cpu.Name))

	require.NoError(t, e.Move(x))
	assert.Equal(t, cpu.Name, x.Backend())
	assert.Equal(t, 0, initialized(t, e, secondCPU).NumDataIDs())
	assert.Equal(t, []float32{4}, readFloats(t, e, x))

	// Already on the active backend.
	require.NoError(t, e.Move(x))
}

func TestSetBackend_Unknown(t *testing.T) {
	e := newTestEngine(t)
	assert.Error(t, e.SetBackend(context.Background(), "tpu"))
}

func TestSetBackend_SetupTeardownHooks(t *testing.T) {
	e := newTwoBackendEngine(t)
	setups, teardowns := 0, 0
	e.Kernels().Unregister(kernels.OpIdentity, secondCPU)
	require.NoError(t, e.Kernels().Register(kernels.KernelConfig{
		Op:       kernels.OpIdentity,
		Backend:  secondCPU,
		Kernel:   kernels.IdentityKernel,
		Setup:    func(backend.Backend) error { setups++; return nil },
		Teardown: func(backend.Backend) error { teardowns++; return nil },
	}))

	require.NoError(t, e.Ready(context.Background()))
	assert.Equal(t, 0, setups, "hooks only run for the backend being activated")

	require.NoError(t, e.SetBackend(context.Background(), secondCPU))
	require.NoError(t, e.SetBackend(context.Background(), secondCPU))
	assert.Equal(t, 1, setups)

	require.NoError(t, e.SetBackend(context.Background(), cpu.Name))
	assert.Equal(t, 1, teardowns)

	require.NoError(t, e.SetBackend(context.Background(), secondCPU))
	assert.Equal(t, 2, setups)

	x := floats(t, e, []float32{1})
	require.NoError(t, e.RemoveBackend(secondCPU))
	assert.Equal(t, 2, teardowns)
	assert.Equal(t, 0, e.Memory().NumDataBuffers, "buffers of a removed backend are lost")
	assert.NoError(t, e.Dispose(x))

	name, err := e.BackendName()
	require.NoError(t, err)
	assert.Equal(t, cpu.Name, name)
	assert.NotContains(t, e.Backends().Names(), secondCPU)
}
