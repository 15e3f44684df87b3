package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// DivOp is the gradient of element-wise division: output = a / b.
//
// Backward pass:
//   - d(a/b)/da = 1/b, so grad_a = outputGrad / b
//   - d(a/b)/db = -a/b², so grad_b = -outputGrad * a / b²
type DivOp struct{}

// Backward computes input gradients for division.
func (DivOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	r := ctx.Runner
	a, b := ctx.Input(kernels.InputA), ctx.Input(kernels.InputB)

	gradA, err := Div(r, dys[0], b)
	if err != nil {
		return nil, err
	}

	// grad_b = -(outputGrad * a) / (b * b)
	numerator, err := Mul(r, dys[0], a)
	if err != nil {
		return nil, err
	}
	bSquared, err := Square(r, b)
	if err != nil {
		return nil, err
	}
	quotient, err := Div(r, numerator, bSquared)
	if err != nil {
		return nil, err
	}
	gradB, err := Neg(r, quotient)
	if err != nil {
		return nil, err
	}
	return binaryGrads(ctx, gradA, gradB)
}
