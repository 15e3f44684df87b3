// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops provides the differentiable operations of the Born engine.
//
// Every op takes the Runner it dispatches through, normally an *engine.Engine, and
// returns a new tracked tensor. Binary ops broadcast NumPy style.
//
// Example:
//
//	e := engine.Default()
//	a, _ := engine.FromSlice(e, []float32{1, 2, 3})
//	b, _ := engine.FromSlice(e, []float32{10})
//	sum, _ := ops.Add(e, a, b) // [11 12 13]
package ops

import (
	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/tensor"
)

// Runner executes a kernel by op; *engine.Engine implements it.
type Runner = kernels.Runner

// Identity returns a new handle sharing x's buffer.
func Identity(r Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Identity(r, x)
}

// Add returns a + b.
func Add(r Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Add(r, a, b)
}

// Sub returns a - b.
func Sub(r Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Sub(r, a, b)
}

// Mul returns a * b.
func Mul(r Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Mul(r, a, b)
}

// Div returns a / b.
func Div(r Runner, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Div(r, a, b)
}

// Neg returns -x.
func Neg(r Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Neg(r, x)
}

// Exp returns e^x.
func Exp(r Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Exp(r, x)
}

// Square returns x².
func Square(r Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Square(r, x)
}

// Sum reduces x over axes, or over every axis if axes is nil.
func Sum(r Runner, x *tensor.Tensor, axes []int, keepDims bool) (*tensor.Tensor, error) {
	return ops.Sum(r, x, axes, keepDims)
}

// Reshape returns x with a new shape, sharing its buffer. One dimension may be -1.
func Reshape(r Runner, x *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	return ops.Reshape(r, x, shape)
}

// Cast converts x to dtype.
func Cast(r Runner, x *tensor.Tensor, dtype tensor.DataType) (*tensor.Tensor, error) {
	return ops.Cast(r, x, dtype)
}

// Fill returns a tensor with every element set to value.
func Fill(r Runner, shape tensor.Shape, dtype tensor.DataType, value any) (*tensor.Tensor, error) {
	return ops.Fill(r, shape, dtype, value)
}

// OnesLike returns ones with x's shape and dtype.
func OnesLike(r Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.OnesLike(r, x)
}

// ZerosLike returns zeros with x's shape and dtype.
func ZerosLike(r Runner, x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.ZerosLike(r, x)
}
