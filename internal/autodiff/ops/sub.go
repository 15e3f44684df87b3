package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// SubOp is the gradient of element-wise subtraction: output = a - b.
//
// Backward pass:
//   - d(a-b)/da = 1, so grad_a = outputGrad
//   - d(a-b)/db = -1, so grad_b = -outputGrad
type SubOp struct{}

// Backward computes input gradients for subtraction.
func (SubOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	negGrad, err := Neg(ctx.Runner, dys[0])
	if err != nil {
		return nil, err
	}
	return binaryGrads(ctx, dys[0], negGrad)
}
