package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// ReduceBroadcast reduces a gradient to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
//
//	Forward: a[3,4] + b[4] -> c[3,4]    (b was broadcast along dim 0)
//	Backward: grad_c[3,4] -> grad_b[4]   (sum along dim 0, then reshape)
func ReduceBroadcast(r kernels.Runner, grad *tensor.Tensor, targetShape tensor.Shape) (*tensor.Tensor, error) {
	if grad.Shape().Equal(targetShape) {
		return grad, nil
	}

	result := grad
	if axes := tensor.ReductionAxes(targetShape, grad.Shape()); len(axes) > 0 {
		summed, err := Sum(r, grad, axes, true)
		if err != nil {
			return nil, err
		}
		result = summed
	}

	// Drop the leading axes the broadcast introduced.
	if !result.Shape().Equal(targetShape) {
		return Reshape(r, result, targetShape)
	}
	return result, nil
}

// binaryGrads reduces the two gradients of a broadcasting binary op to its input shapes.
func binaryGrads(ctx *kernels.GradContext, gradA, gradB *tensor.Tensor) (kernels.Inputs, error) {
	reducedA, err := ReduceBroadcast(ctx.Runner, gradA, ctx.InputShapes[kernels.InputA])
	if err != nil {
		return nil, err
	}
	reducedB, err := ReduceBroadcast(ctx.Runner, gradB, ctx.InputShapes[kernels.InputB])
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputA: reducedA, kernels.InputB: reducedB}, nil
}
