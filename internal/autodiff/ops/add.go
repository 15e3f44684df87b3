package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// AddOp is the gradient of element-wise addition: output = a + b.
//
// Backward pass:
//   - d(a+b)/da = 1, so grad_a = outputGrad
//   - d(a+b)/db = 1, so grad_b = outputGrad
//
// If broadcasting was used in the forward pass, gradients are reduced (summed) along
// the broadcast dimensions to match the input shapes.
type AddOp struct{}

// Backward computes input gradients for addition.
func (AddOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	return binaryGrads(ctx, dys[0], dys[0])
}
