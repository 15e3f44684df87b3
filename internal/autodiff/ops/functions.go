package ops

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// Identity returns a new handle sharing x's buffer.
func Identity(r kernels.Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(r, kernels.OpIdentity, x)
}

// Add returns a + b, broadcasting.
func Add(r kernels.Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary(r, kernels.OpAdd, a, b)
}

// Sub returns a - b, broadcasting.
func Sub(r kernels.Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary(r, kernels.OpSub, a, b)
}

// Mul returns a * b, broadcasting.
func Mul(r kernels.Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary(r, kernels.OpMul, a, b)
}

// Div returns a / b, broadcasting.
func Div(r kernels.Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary(r, kernels.OpDiv, a, b)
}

// Neg returns -x.
func Neg(r kernels.Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(r, kernels.OpNeg, x)
}

// Exp returns e^x.
func Exp(r kernels.Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(r, kernels.OpExp, x)
}

// Square returns x².
func Square(r kernels.Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(r, kernels.OpSquare, x)
}

// Sum reduces x over axes (all axes if nil).
func Sum(r kernels.Runner, x *tensor.Tensor, axes []int, keepDims bool) (*tensor.Tensor, error) {
	return run1(r, kernels.OpSum, kernels.Inputs{kernels.InputX: x},
		kernels.Attrs{kernels.AttrAxes: axes, kernels.AttrKeepDims: keepDims})
}

// Reshape returns x with a new shape sharing its buffer. One dimension may be -1.
func Reshape(r kernels.Runner, x *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	return run1(r, kernels.OpReshape, kernels.Inputs{kernels.InputX: x}, kernels.Attrs{kernels.AttrShape: shape})
}

// Cast converts x to dtype.
func Cast(r kernels.Runner, x *tensor.Tensor, dtype tensor.DataType) (*tensor.Tensor, error) {
	return run1(r, kernels.OpCast, kernels.Inputs{kernels.InputX: x}, kernels.Attrs{kernels.AttrDType: dtype})
}

// Fill returns a tensor of shape and dtype with every element set to value.
func Fill(r kernels.Runner, shape tensor.Shape, dtype tensor.DataType, value any) (*tensor.Tensor, error) {
	return run1(r, kernels.OpFill, nil, kernels.Attrs{
		kernels.AttrShape: shape,
		kernels.AttrDType: dtype,
		kernels.AttrValue: value,
	})
}

// OnesLike returns ones shaped like x.
func OnesLike(r kernels.Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(r, kernels.OpOnesLike, x)
}

// ZerosLike returns zeros shaped like x.
func ZerosLike(r kernels.Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(r, kernels.OpZerosLike, x)
}
