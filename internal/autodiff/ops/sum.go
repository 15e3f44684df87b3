package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// SumOp is the gradient of a sum over axes: every input element receives the gradient
// of the sum it contributed to.
//
// Backward pass:
//   - the output gradient is reshaped to keep the reduced axes as size 1,
//   - then broadcast to the input shape by multiplying with ones.
type SumOp struct{}

// Backward computes input gradient for sum.
func (SumOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	r := ctx.Runner
	inShape := ctx.InputShapes[kernels.InputX]
	rawAxes, err := ctx.Attrs.Ints(kernels.AttrAxes)
	if err != nil {
		return nil, err
	}
	axes, err := kernels.NormalizeAxes(rawAxes, inShape.Rank())
	if err != nil {
		return nil, err
	}

	grad, err := Reshape(r, dys[0], kernels.ReducedShape(inShape, axes, true))
	if err != nil {
		return nil, err
	}
	ones, err := Fill(r, inShape, dys[0].DType(), 1)
	if err != nil {
		return nil, err
	}
	dx, err := Mul(r, grad, ones)
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputX: dx}, nil
}
