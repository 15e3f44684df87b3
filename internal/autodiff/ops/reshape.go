package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// ReshapeOp is the gradient of a reshape: the output gradient reshaped back to the
// input shape.
type ReshapeOp struct{}

// Backward computes input gradient for reshape.
func (ReshapeOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	dx, err := Reshape(ctx.Runner, dys[0], ctx.InputShapes[kernels.InputX])
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputX: dx}, nil
}

// IdentityOp passes the gradient through.
type IdentityOp struct{}

// Backward computes input gradient for identity.
func (IdentityOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	dx, err := Identity(ctx.Runner, dys[0])
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputX: dx}, nil
}

// CastOp casts the gradient back to the input dtype.
type CastOp struct{}

// Backward computes input gradient for cast.
func (CastOp) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	dx, err := Cast(ctx.Runner, dys[0], ctx.InputDTypes[kernels.InputX])
	if err != nil {
		return nil, err
	}
	return kernels.Inputs{kernels.InputX: dx}, nil
}

// ConstantOp is the gradient of ops whose output does not depend on their input values
// (Fill, OnesLike, ZerosLike): zeros for every input.
type ConstantOp struct{}

// Backward returns zero gradients.
func (ConstantOp) Backward(ctx *kernels.GradContext, _ []*tensor.Tensor) (kernels.Inputs, error) {
	grads := make(kernels.Inputs, len(ctx.InputShapes))
	for name, shape := range ctx.InputShapes {
		zeros, err := Fill(ctx.Runner, shape, ctx.InputDTypes[name], 0)
		if err != nil {
			return nil, err
		}
		grads[name] = zeros
	}
	return grads, nil
}
