// Package ops defines the differentiable operations of the engine: the forward helpers
// dispatching each op through a kernels.Runner, and the gradient rule of each op.
//
// Each rule implements kernels.GradientRule and declares, through its GradConfig, which
// inputs and outputs the tape must save for it:
//   - AddOp: d(a+b)/da = 1, d(a+b)/db = 1 (no saved tensors)
//   - SubOp: d(a-b)/da = 1, d(a-b)/db = -1 (no saved tensors)
//   - MulOp: d(a*b)/da = b, d(a*b)/db = a (saves a, b)
//   - DivOp: d(a/b)/da = 1/b, d(a/b)/db = -a/b² (saves a, b)
//   - ExpOp: d(exp(x))/dx = exp(x) (saves the output)
//
// Rules for broadcasting ops reduce their gradients back to the input shapes with
// ReduceBroadcast.
package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// GradConfigs returns the gradient configs of every built-in op.
func GradConfigs() []kernels.GradConfig {
	ab := []string{kernels.InputA, kernels.InputB}
	return []kernels.GradConfig{
		{Op: kernels.OpIdentity, Rule: IdentityOp{}},
		{Op: kernels.OpAdd, Rule: AddOp{}},
		{Op: kernels.OpSub, Rule: SubOp{}},
		{Op: kernels.OpMul, InputsToSave: ab, Rule: MulOp{}},
		{Op: kernels.OpDiv, InputsToSave: ab, Rule: DivOp{}},
		{Op: kernels.OpNeg, Rule: NegOp{}},
		{Op: kernels.OpExp, OutputsToSave: []bool{true}, Rule: ExpOp{}},
		{Op: kernels.OpSquare, InputsToSave: []string{kernels.InputX}, Rule: SquareOp{}},
		{Op: kernels.OpSum, Rule: SumOp{}},
		{Op: kernels.OpReshape, Rule: ReshapeOp{}},
		{Op: kernels.OpCast, Rule: CastOp{}},
		{Op: kernels.OpFill, Rule: ConstantOp{}},
		{Op: kernels.OpOnesLike, Rule: ConstantOp{}},
		{Op: kernels.OpZerosLike, Rule: ConstantOp{}},
	}
}

// Register registers the gradient of every built-in op in r.
func Register(r *kernels.Registry) error {
	for _, cfg := range GradConfigs() {
		if err := r.RegisterGradient(cfg); err != nil {
			return err
		}
	}
	return nil
}

// run1 dispatches a single-output op.
func run1(r kernels.Runner, op kernels.OpID, inputs kernels.Inputs, attrs kernels.Attrs) (*tensor.Tensor, error) {
	outs, err := r.RunKernel(op, inputs, attrs)
	if err != nil {
		return nil, err
	}
	if len(outs) != 1 {
		return nil, errors.Errorf("%s returned %d outputs, expected 1", op, len(outs))
	}
	return outs[0], nil
}

func binary(r kernels.Runner, op kernels.OpID, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return run1(r, op, kernels.Inputs{kernels.InputA: a, kernels.InputB: b}, nil)
}

func unary(r kernels.Runner, op kernels.OpID, x *tensor.Tensor) (*tensor.Tensor, error) {
	return run1(r, op, kernels.Inputs{kernels.InputX: x}, nil)
}
