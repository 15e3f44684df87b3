package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// MulOp is the gradient of element-wise multiplication: output = a * b.
//
// Backward pass:
//   - d(a*b)/da = b, so grad_a = outputGrad * b
//   - d(a*b)/db = a, so grad_b = outputGrad * a
type MulOp struct{}

// Backward computes input gradients for multiplication.
func (MulOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	a, b := ctx.Input(kernels.InputA), ctx.Input(kernels.InputB)

	gradA, err := Mul(ctx.Runner, dys[0], b)
	if err != nil {
		return nil, err
	}
	gradB, err := Mul(ctx.Runner, dys[0], a)
	if err != nil {
		return nil, err
	}
	return binaryGrads(ctx, gradA, gradB)
}
