package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// ExpOp is the gradient of the exponential: y = exp(x).
//
// Since d(exp(x))/dx = exp(x), and the output is saved:
// grad_input = grad_output * output.
type ExpOp struct{}

// Backward computes input gradient for exp.
func (ExpOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	dx, err := Mul(ctx.Runner, dys[0], ctx.Output(0))
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputX: dx}, nil
}

// NegOp is the gradient of negation: grad_input = -grad_output.
type NegOp struct{}

// Backward computes input gradient for negation.
func (NegOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	dx, err := Neg(ctx.Runner, dys[0])
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputX: dx}, nil
}

// SquareOp is the gradient of y = x²: grad_input = grad_output * 2x.
type SquareOp struct{}

// Backward computes input gradient for square.
func (SquareOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	x := ctx.Input(kernels.InputX)
	twoX, err := Add(ctx.Runner, x, x)
	if err != nil {
		return nil, err
	}
	dx, err := Mul(ctx.Runner, dys[0], twoX)
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputX: dx}, nil
}
