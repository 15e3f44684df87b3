package autodiff_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/autodiff"
	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/engine"
	"github.com/born-ml/engine/internal/kernels"
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

// node runs op eagerly and describes it the way the engine records it.
func node(t *testing.T, e *engine.Engine, op kernels.OpID, inputs kernels.Inputs, rule kernels.GradientRule) *autodiff.Node {
	t.Helper()
	outs, err := e.RunKernel(op, inputs, nil)
	require.NoError(t, err)
	n := autodiff.NewNode(op, inputs, outs, nil, rule)
	for name, in := range inputs {
		n.SavedInputs[name] = in
	}
	return n
}

func TestBackprop_AccumulatesFanOut(t *testing.T) {
	e := newEngine(t)
	x := vector(t, e, 1, 2)

	// y = x*x + x
	sq := node(t, e, kernels.OpMul, kernels.Inputs{kernels.InputA: x, kernels.InputB: x}, ops.MulOp{})
	y := node(t, e, kernels.OpAdd, kernels.Inputs{kernels.InputA: sq.Outputs[0], kernels.InputB: x}, ops.AddOp{})
	nodes := []*autodiff.Node{sq, y}

	seed := vector(t, e, 1, 1)
	grads := map[int64]*tensor.Tensor{y.Outputs[0].ID(): seed}
	require.NoError(t, autodiff.Backprop(e, nodes, grads))

	// dy/dx = 2x + 1
	assert.Equal(t, []float32{3, 5}, read(t, e, grads[x.ID()]))
	assert.Equal(t, []float32{1, 1}, read(t, e, grads[sq.Outputs[0].ID()]))
}

func TestBackprop_SkipsNodesWithoutGradient(t *testing.T) {
	e := newEngine(t)
	x := vector(t, e, 1)

	// The first node has no registered rule, but nothing flows into it.
	unused := node(t, e, kernels.OpNeg, kernels.Inputs{kernels.InputX: x}, nil)
	y := node(t, e, kernels.OpNeg, kernels.Inputs{kernels.InputX: x}, ops.NegOp{})

	grads := map[int64]*tensor.Tensor{y.Outputs[0].ID(): vector(t, e, 2)}
	require.NoError(t, autodiff.Backprop(e, []*autodiff.Node{unused, y}, grads))
	assert.Equal(t, []float32{-2}, read(t, e, grads[x.ID()]))
}

func TestBackprop_MissingRule(t *testing.T) {
	e := newEngine(t)
	x := vector(t, e, 1)
	y := node(t, e, kernels.OpExp, kernels.Inputs{kernels.InputX: x}, nil)

	grads := map[int64]*tensor.Tensor{y.Outputs[0].ID(): vector(t, e, 1)}
	err := autodiff.Backprop(e, []*autodiff.Node{y}, grads)
	var notFound *autodiff.GradientNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, kernels.OpExp, notFound.Op)
}

// sumRule forgets to reduce its gradient back to the input shape.
type sumRule struct{}

func (sumRule) Backward(_ *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	return kernels.Inputs{kernels.InputX: dys[0]}, nil
}

func TestBackprop_ShapeMismatch(t *testing.T) {
	e := newEngine(t)
	x := vector(t, e, 1, 2, 3)
	y := node(t, e, kernels.OpSum, kernels.Inputs{kernels.InputX: x}, sumRule{})

	grads := map[int64]*tensor.Tensor{y.Outputs[0].ID(): vector(t, e, 1)}
	err := autodiff.Backprop(e, []*autodiff.Node{y}, grads)
	var mismatch *autodiff.ShapeMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, kernels.OpSum, mismatch.Op)
	assert.Equal(t, kernels.InputX, mismatch.Input)
	assert.Equal(t, tensor.Shape{3}, mismatch.Want)
	assert.Equal(t, tensor.Shape{1}, mismatch.Got)
	assert.Contains(t, err.Error(), "broadcast axes must be reduced first")
}
