package optim_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/engine"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/optim"
	"github.com/born-ml/engine/internal/tensor"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg := kernels.NewRegistry()
	require.NoError(t, cpu.RegisterKernels(reg, cpu.Name))
	require.NoError(t, ops.Register(reg))
	backends := backend.NewRegistry()
	require.NoError(t, backends.Register(cpu.Name, cpu.Factory(cpu.Options{}), cpu.Priority))
	e := engine.New(engine.Config{Backends: backends, Kernels: reg, Debug: true})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func variable(t *testing.T, e *engine.Engine, name string, values ...float32) *engine.Variable {
	t.Helper()
	initial, err := engine.FromSlice(e, values)
	require.NoError(t, err)
	v, err := e.Variable(initial, true, name)
	require.NoError(t, err)
	require.NoError(t, e.Dispose(initial))
	return v
}

func vector(t *testing.T, e *engine.Engine, values ...float32) *tensor.Tensor {
	t.Helper()
	x, err := engine.FromSlice(e, values)
	require.NoError(t, err)
	return x
}

func read(t *testing.T, e *engine.Engine, x *tensor.Tensor) []float32 {
	t.Helper()
	values, err := engine.ReadSlice[float32](context.Background(), e, x)
	require.NoError(t, err)
	return values
}

func TestSGD_SimpleUpdate(t *testing.T) {
	e := newEngine(t)
	w := variable(t, e, "w", 2)
	sgd := optim.NewSGD(e, optim.SGDConfig{LR: 0.1})

	require.NoError(t, sgd.ApplyGradients(map[string]*tensor.Tensor{"w": vector(t, e, 1)}))
	assert.InDeltaSlice(t, []float32{1.9}, read(t, e, w.Value()), 1e-6)
	assert.Empty(t, sgd.StateDict(), "no velocities without momentum")
}

func TestSGD_DefaultLR(t *testing.T) {
	sgd := optim.NewSGD(newEngine(t), optim.SGDConfig{})
	assert.Equal(t, float32(0.01), sgd.LR())
	sgd.SetLR(0.5)
	assert.Equal(t, float32(0.5), sgd.LR())
}

func TestSGD_WithMomentum(t *testing.T) {
	e := newEngine(t)
	w := variable(t, e, "w", 1)
	sgd := optim.NewSGD(e, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	grad := vector(t, e, 1)

	// velocity = 1, w = 1 - 0.1*1
	require.NoError(t, sgd.ApplyGradients(map[string]*tensor.Tensor{"w": grad}))
	assert.InDeltaSlice(t, []float32{0.9}, read(t, e, w.Value()), 1e-6)

	// velocity = 0.9*1 + 1, w = 0.9 - 0.1*1.9
	require.NoError(t, sgd.ApplyGradients(map[string]*tensor.Tensor{"w": grad}))
	assert.InDeltaSlice(t, []float32{0.71}, read(t, e, w.Value()), 1e-6)

	state := sgd.StateDict()
	require.Contains(t, state, "w")
	assert.InDeltaSlice(t, []float32{1.9}, read(t, e, state["w"]), 1e-6)

	names := func() []string {
		var names []string
		for _, v := range e.Variables() {
			names = append(names, v.Name())
		}
		return names
	}
	assert.Equal(t, []string{"w", "w/velocity"}, names())
	require.NoError(t, sgd.Dispose())
	assert.Equal(t, []string{"w"}, names())
}

func TestSGD_SkipsFrozenAndRejectsUnknown(t *testing.T) {
	e := newEngine(t)
	w := variable(t, e, "w", 3)
	w.SetTrainable(false)
	sgd := optim.NewSGD(e, optim.SGDConfig{LR: 1})

	require.NoError(t, sgd.ApplyGradients(map[string]*tensor.Tensor{"w": vector(t, e, 1)}))
	assert.Equal(t, []float32{3}, read(t, e, w.Value()))

	err := sgd.ApplyGradients(map[string]*tensor.Tensor{"nope": vector(t, e, 1)})
	assert.ErrorContains(t, err, `unknown variable "nope"`)
}

func TestSGD_MinimizeQuadratic(t *testing.T) {
	e := newEngine(t)
	w := variable(t, e, "w", 0, 0)
	target := vector(t, e, 1, 2)
	sgd := optim.NewSGD(e, optim.SGDConfig{LR: 0.1})

	loss := func() (*tensor.Tensor, error) {
		d, err := ops.Sub(e, w.Value(), target)
		if err != nil {
			return nil, err
		}
		sq, err := ops.Square(e, d)
		if err != nil {
			return nil, err
		}
		return ops.Sum(e, sq, nil, false)
	}

	first, err := sgd.Minimize(loss, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, read(t, e, first))
	require.NoError(t, e.Dispose(first))

	before := e.Memory()
	for range 50 {
		cost, err := sgd.Minimize(loss, false)
		require.NoError(t, err)
		assert.Nil(t, cost)
	}
	after := e.Memory()
	assert.Equal(t, before.NumTensors, after.NumTensors, "steps do not leak tensors")
	assert.Equal(t, before.NumBytes, after.NumBytes)

	assert.InDeltaSlice(t, []float32{1, 2}, read(t, e, w.Value()), 1e-3)
}

func TestSGD_LoadStateDict(t *testing.T) {
	e := newEngine(t)
	w := variable(t, e, "w", 1, 1)
	sgd := optim.NewSGD(e, optim.SGDConfig{LR: 0.1, Momentum: 0.5})

	require.NoError(t, sgd.LoadStateDict(map[string]*tensor.Tensor{"w": vector(t, e, 2, 4)}))
	require.NoError(t, sgd.ApplyGradients(map[string]*tensor.Tensor{"w": vector(t, e, 0, 0)}))
	// velocity = 0.5*[2 4], w = 1 - 0.1*velocity
	assert.InDeltaSlice(t, []float32{0.9, 0.8}, read(t, e, w.Value()), 1e-6)

	err := sgd.LoadStateDict(map[string]*tensor.Tensor{"w": vector(t, e, 1)})
	assert.ErrorContains(t, err, "shape mismatch")
}
