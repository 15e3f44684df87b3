package optim

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/engine"
	"github.com/born-ml/engine/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Velocities are non-trainable engine variables, created on a variable's first update.
type SGD struct {
	e          *engine.Engine
	lr         float32
	momentum   float32
	velocities map[string]*engine.Variable
}

var _ Optimizer = (*SGD)(nil)

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer updating variables of e.
func NewSGD(e *engine.Engine, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		e:          e,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[string]*engine.Variable),
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}

// SetLR updates the learning rate, e.g. from a schedule.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// Minimize implements Optimizer.
func (s *SGD) Minimize(f func() (*tensor.Tensor, error), returnCost bool, vars ...*engine.Variable) (*tensor.Tensor, error) {
	return engine.Tidy(s.e, "sgd.minimize", func() (*tensor.Tensor, error) {
		cost, grads, err := s.e.VariableGrads(f, vars...)
		if err != nil {
			return nil, err
		}
		if err := s.ApplyGradients(grads); err != nil {
			return nil, err
		}
		if !returnCost {
			return nil, nil
		}
		return cost, nil
	})
}

// ApplyGradients implements Optimizer. Gradients name engine variables.
func (s *SGD) ApplyGradients(grads map[string]*tensor.Tensor) error {
	byName := make(map[string]*engine.Variable)
	for _, v := range s.e.Variables() {
		byName[v.Name()] = v
	}
	return s.e.Tidy("sgd.apply", func() error {
		for name, grad := range grads {
			v, found := byName[name]
			if !found {
				return errors.Errorf("sgd: gradient for unknown variable %q", name)
			}
			if grad == nil || !v.Trainable() {
				continue
			}
			if err := s.update(v, grad); err != nil {
				return errors.WithMessagef(err, "sgd: updating %q", name)
			}
		}
		return nil
	})
}

// update applies one step to v. Must run inside a scope.
func (s *SGD) update(v *engine.Variable, grad *tensor.Tensor) error {
	step := grad
	if s.momentum != 0 {
		velocity, err := s.velocity(v)
		if err != nil {
			return err
		}
		momentum, err := ops.Fill(s.e, tensor.Shape{}, v.DType(), s.momentum)
		if err != nil {
			return err
		}
		decayed, err := ops.Mul(s.e, velocity.Value(), momentum)
		if err != nil {
			return err
		}
		if step, err = ops.Add(s.e, decayed, grad); err != nil {
			return err
		}
		if err := velocity.Assign(step); err != nil {
			return err
		}
	}

	lr, err := ops.Fill(s.e, tensor.Shape{}, v.DType(), s.lr)
	if err != nil {
		return err
	}
	scaled, err := ops.Mul(s.e, step, lr)
	if err != nil {
		return err
	}
	updated, err := ops.Sub(s.e, v.Value(), scaled)
	if err != nil {
		return err
	}
	return v.Assign(updated)
}

func (s *SGD) velocity(v *engine.Variable) (*engine.Variable, error) {
	if velocity, found := s.velocities[v.Name()]; found {
		return velocity, nil
	}
	zeros, err := ops.ZerosLike(s.e, v.Value())
	if err != nil {
		return nil, err
	}
	velocity, err := s.e.Variable(zeros, false, fmt.Sprintf("%s/velocity", v.Name()))
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("sgd: created velocity for %q", v.Name())
	s.velocities[v.Name()] = velocity
	return velocity, nil
}

// StateDict returns the velocity of each updated variable, keyed by variable name.
// Without momentum it is empty.
func (s *SGD) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor, len(s.velocities))
	for name, velocity := range s.velocities {
		state[name] = velocity.Value()
	}
	return state
}

// LoadStateDict restores velocities saved by StateDict. Each must match its variable's
// shape and dtype. The tensors stay owned by the caller.
func (s *SGD) LoadStateDict(state map[string]*tensor.Tensor) error {
	if s.momentum == 0 {
		return nil
	}
	byName := make(map[string]*engine.Variable)
	for _, v := range s.e.Variables() {
		byName[v.Name()] = v
	}
	return s.e.Tidy("sgd.load", func() error {
		for name, t := range state {
			v, found := byName[name]
			if !found {
				return errors.Errorf("sgd: velocity for unknown variable %q", name)
			}
			if !t.Shape().Equal(v.Shape()) || t.DType() != v.DType() {
				return errors.Errorf("sgd: velocity shape mismatch for %q: expected %s%v, got %s%v",
					name, v.DType(), v.Shape(), t.DType(), t.Shape())
			}
			velocity, err := s.velocity(v)
			if err != nil {
				return err
			}
			if err := velocity.Assign(t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Dispose releases the velocity variables.
func (s *SGD) Dispose() error {
	var firstErr error
	for name, velocity := range s.velocities {
		if err := velocity.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.velocities, name)
	}
	return firstErr
}
