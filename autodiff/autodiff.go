// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff exposes the gradient registry of the Born engine.
//
// Gradients are computed by the engine (Engine.Gradients, Engine.Grad, ...) from the
// tape it records. This package lets programs register the gradient of an op,
// typically one they also registered kernels for:
//
//	err := autodiff.RegisterGradient(registry, autodiff.GradConfig{
//	    Op:           autodiff.OpSquare,
//	    InputsToSave: []string{autodiff.InputX},
//	    Rule:         squareRule{},
//	})
//
// For a one-off function with a hand-written gradient, Engine.CustomGrad is simpler.
package autodiff

import (
	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/tensor"
)

// GradientRule computes the gradients of a node's inputs from those of its outputs.
type GradientRule = kernels.GradientRule

// GradConfig registers a rule and declares the tensors the tape must save for it.
type GradConfig = kernels.GradConfig

// GradContext is what a GradientRule receives for one tape node.
type GradContext = kernels.GradContext

// Registry holds kernels and gradient configs.
type Registry = kernels.Registry

// OpID identifies an operation independently of the backend running it.
type OpID = kernels.OpID

// Inputs and Attrs are the named inputs and attributes of an op.
type (
	Inputs = kernels.Inputs
	Attrs  = kernels.Attrs
)

// Built-in ops.
const (
	OpIdentity  = kernels.OpIdentity
	OpAdd       = kernels.OpAdd
	OpSub       = kernels.OpSub
	OpMul       = kernels.OpMul
	OpDiv       = kernels.OpDiv
	OpNeg       = kernels.OpNeg
	OpExp       = kernels.OpExp
	OpSquare    = kernels.OpSquare
	OpSum       = kernels.OpSum
	OpReshape   = kernels.OpReshape
	OpCast      = kernels.OpCast
	OpFill      = kernels.OpFill
	OpOnesLike  = kernels.OpOnesLike
	OpZerosLike = kernels.OpZerosLike
)

// Input names used by the built-in ops.
const (
	InputA = kernels.InputA
	InputB = kernels.InputB
	InputX = kernels.InputX
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return kernels.NewRegistry()
}

// DefaultRegistry returns the registry used by engine.Default.
func DefaultRegistry() *Registry {
	return kernels.Default()
}

// RegisterGradient adds cfg to r. Registering an op twice fails.
func RegisterGradient(r *Registry, cfg GradConfig) error {
	return r.RegisterGradient(cfg)
}

// ReduceBroadcast sums grad down to targetShape, undoing a forward broadcast. Rules of
// broadcasting ops call it on each input gradient.
func ReduceBroadcast(r kernels.Runner, grad *tensor.Tensor, targetShape tensor.Shape) (*tensor.Tensor, error) {
	return ops.ReduceBroadcast(r, grad, targetShape)
}
