// Package optim implements optimizers that update engine variables from their
// gradients.
//
// Example usage:
//
//	sgd := optim.NewSGD(e, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
//	defer sgd.Dispose()
//	for step := range steps {
//	    cost, err := sgd.Minimize(loss, true)
//	    ...
//	}
package optim

import (
	"github.com/born-ml/engine/internal/engine"
	"github.com/born-ml/engine/internal/tensor"
)

// Optimizer updates variables to minimize a scalar loss.
type Optimizer interface {
	// ApplyGradients updates each variable with the gradient stored under its name.
	// Variables without a gradient are left unchanged.
	ApplyGradients(grads map[string]*tensor.Tensor) error

	// Minimize computes the gradients of the scalar returned by f with respect to vars,
	// or every trainable variable if none are given, and applies them. The loss is
	// returned if returnCost, nil otherwise.
	Minimize(f func() (*tensor.Tensor, error), returnCost bool, vars ...*engine.Variable) (*tensor.Tensor, error)

	// LR returns the current learning rate.
	LR() float32

	// Dispose releases the optimizer's state variables.
	Dispose() error
}

// Config is the configuration shared by all optimizers.
type Config struct {
	LR float32 // Learning rate
}
