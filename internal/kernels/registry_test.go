package kernels

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/tensor"
)

func noopKernel(*Context) ([]Output, error) { return nil, nil }

type noopRule struct{}

func (noopRule) Backward(*GradContext, []*tensor.Tensor) (Inputs, error) { return nil, nil }

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(KernelConfig{Op: OpAdd, Backend: "cpu", Kernel: noopKernel}))

	cfg, ok := r.Lookup(OpAdd, "cpu")
	require.True(t, ok)
	assert.Equal(t, OpAdd, cfg.Op)

	_, ok = r.Lookup(OpAdd, "webgpu")
	assert.False(t, ok)
	_, ok = r.Lookup(OpMul, "cpu")
	assert.False(t, ok)
}

func TestRegistry_DuplicateKernel(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(KernelConfig{Op: OpAdd, Backend: "cpu", Kernel: noopKernel}))
	err := r.Register(KernelConfig{Op: OpAdd, Backend: "cpu", Kernel: noopKernel})

	var dup *DuplicateKernelError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, OpAdd, dup.Op)
	assert.Equal(t, BackendID("cpu"), dup.Backend)
	assert.Contains(t, err.Error(), "Add")
	assert.Contains(t, err.Error(), "cpu")

	// Same op on another backend is fine.
	require.NoError(t, r.Register(KernelConfig{Op: OpAdd, Backend: "webgpu", Kernel: noopKernel}))
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(KernelConfig{Op: OpInvalid, Backend: "cpu", Kernel: noopKernel}))
	assert.Error(t, r.Register(KernelConfig{Op: OpLast, Backend: "cpu", Kernel: noopKernel}))
	assert.Error(t, r.Register(KernelConfig{Op: OpAdd, Backend: "cpu"}))
}

func TestRegistry_KernelsForBackendSorted(t *testing.T) {
	r := NewRegistry()
	for _, op := range []OpID{OpMul, OpAdd, OpExp} {
		require.NoError(t, r.Register(KernelConfig{Op: op, Backend: "cpu", Kernel: noopKernel}))
	}
	require.NoError(t, r.Register(KernelConfig{Op: OpSub, Backend: "webgpu", Kernel: noopKernel}))

	cfgs := r.KernelsForBackend("cpu")
	require.Len(t, cfgs, 3)
	assert.Equal(t, []OpID{OpAdd, OpMul, OpExp}, []OpID{cfgs[0].Op, cfgs[1].Op, cfgs[2].Op})

	r.Unregister(OpMul, "cpu")
	assert.Len(t, r.KernelsForBackend("cpu"), 2)
}

func TestRegistry_Gradients(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterGradient(GradConfig{Op: OpMul, InputsToSave: []string{"a", "b"}, Rule: noopRule{}}))

	cfg, ok := r.Gradient(OpMul)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, cfg.InputsToSave)

	err := r.RegisterGradient(GradConfig{Op: OpMul, Rule: noopRule{}})
	var dup *DuplicateKernelError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, BackendID("gradient"), dup.Backend)

	assert.Error(t, r.RegisterGradient(GradConfig{Op: OpAdd}))
}

func TestKernelNotFoundError_Message(t *testing.T) {
	err := &KernelNotFoundError{Op: OpSquare, Backend: "webgpu"}
	assert.Contains(t, err.Error(), "Square")
	assert.Contains(t, err.Error(), `"webgpu"`)
}

func TestOpID_String(t *testing.T) {
	assert.Equal(t, "Add", OpAdd.String())
	assert.Equal(t, "ZerosLike", OpZerosLike.String())
	assert.Equal(t, "OpID(99)", OpID(99).String())

	for op := OpInvalid; op < OpLast; op++ {
		parsed, err := OpIDString(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}
	_, err := OpIDString("Last")
	assert.Error(t, err)
}

func TestAttrs(t *testing.T) {
	attrs := Attrs{
		AttrAxes:     []int{0, 1},
		AttrKeepDims: true,
		AttrShape:    tensor.Shape{2, 3},
		AttrDType:    tensor.Int32,
	}

	axes, err := attrs.Ints(AttrAxes)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, axes)

	keep, err := attrs.Bool(AttrKeepDims)
	require.NoError(t, err)
	assert.True(t, keep)

	shape, err := attrs.Shape(AttrShape)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, shape)

	dt, err := attrs.DType(AttrDType)
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32, dt)

	missing, err := Attrs{}.Ints(AttrAxes)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = Attrs{}.Shape(AttrShape)
	assert.Error(t, err)
	_, err = Attrs{AttrKeepDims: 1}.Bool(AttrKeepDims)
	assert.Error(t, err)
}

func TestGradContext_PanicsOnUnsaved(t *testing.T) {
	ctx := &GradContext{SavedInputs: map[string]*tensor.Tensor{}}
	assert.Panics(t, func() { ctx.Input("a") })
	assert.Panics(t, func() { ctx.Output(0) })
}
