package engine

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/autodiff"
	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// Gradients runs f while recording, then returns f's output y and the gradient of y
// with respect to each of xs, seeded with dy (ones shaped like y if nil).
//
// Inputs y does not depend on get a nil gradient. The returned tensors are tracked by
// the enclosing scope; every other tensor created while computing them is disposed.
func (e *Engine) Gradients(f func() (*tensor.Tensor, error), xs []*tensor.Tensor, dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	if depth := e.tape.Depth(); depth > 0 {
		return nil, nil, &NestedGradientCallError{Depth: depth}
	}
	for i, x := range xs {
		if err := e.checkLive(x); err != nil {
			return nil, nil, errors.WithMessagef(err, "x[%d]", i)
		}
	}

	type valueAndGrads struct {
		Value *tensor.Tensor
		Grads []*tensor.Tensor
	}
	result, err := Tidy(e, "gradients", func() (valueAndGrads, error) {
		defer e.releaseTape()
		value, grads, err := e.gradients(f, xs, dy)
		return valueAndGrads{Value: value, Grads: grads}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return result.Value, result.Grads, nil
}

func (e *Engine) gradients(f func() (*tensor.Tensor, error), xs []*tensor.Tensor, dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	y, err := e.recordTape(f)
	if err != nil {
		return nil, nil, err
	}
	if err := e.checkLive(y); err != nil {
		return nil, nil, errors.WithMessage(err, "output of the gradient function")
	}
	if !y.DType().IsFloat() {
		return nil, nil, errors.Errorf("cannot differentiate a %s output, only float types", y.DType())
	}

	nodes := autodiff.FilterNodes(e.tape.Nodes(), xs, y)
	klog.V(2).Infof("gradients: %d of %d recorded nodes lead from xs to y", len(nodes), e.tape.Len())

	seed := dy
	if seed == nil {
		if seed, err = ops.OnesLike(e, y); err != nil {
			return nil, nil, err
		}
	} else {
		if err := e.checkLive(seed); err != nil {
			return nil, nil, errors.WithMessage(err, "dy")
		}
		if !seed.Shape().Equal(y.Shape()) {
			return nil, nil, errors.Errorf("dy has shape %s, but the output has shape %s", seed.Shape(), y.Shape())
		}
	}

	accumulated := map[int64]*tensor.Tensor{y.ID(): seed}
	if err := autodiff.Backprop(e, nodes, accumulated); err != nil {
		return nil, nil, err
	}

	// Every returned gradient gets its own handle, so the caller can dispose them
	// independently.
	grads := make([]*tensor.Tensor, len(xs))
	handedOut := make(map[*tensor.Tensor]bool, len(xs))
	for i, x := range xs {
		grad, found := accumulated[x.ID()]
		if !found {
			continue
		}
		if handedOut[grad] || grad == dy {
			if grad, err = ops.Identity(e, grad); err != nil {
				return nil, nil, err
			}
		}
		handedOut[grad] = true
		grads[i] = grad
	}
	return y, grads, nil
}

// recordTape runs f with the tape recording.
func (e *Engine) recordTape(f func() (*tensor.Tensor, error)) (*tensor.Tensor, error) {
	e.tape.Begin()
	defer e.tape.End()
	return f()
}

// releaseTape disposes every tensor the tape saved and drops the recorded nodes.
func (e *Engine) releaseTape() {
	for _, t := range e.tape.Saved() {
		if err := e.dispose(t); err != nil {
			klog.Warningf("disposing tape-saved %s: %v", t, err)
		}
	}
	e.tape.Clear()
}

// Grad returns a function computing the gradient of f at x, seeded with dy (may be nil).
// Everything but the gradient is disposed.
func (e *Engine) Grad(f func(x *tensor.Tensor) (*tensor.Tensor, error)) func(x, dy *tensor.Tensor) (*tensor.Tensor, error) {
	return func(x, dy *tensor.Tensor) (*tensor.Tensor, error) {
		return Tidy(e, "grad", func() (*tensor.Tensor, error) {
			_, grads, err := e.Gradients(func() (*tensor.Tensor, error) { return f(x) }, []*tensor.Tensor{x}, dy)
			if err != nil {
				return nil, err
			}
			return grads[0], nil
		})
	}
}

// Grads is Grad for functions of several tensors.
func (e *Engine) Grads(f func(xs []*tensor.Tensor) (*tensor.Tensor, error)) func(xs []*tensor.Tensor, dy *tensor.Tensor) ([]*tensor.Tensor, error) {
	return func(xs []*tensor.Tensor, dy *tensor.Tensor) ([]*tensor.Tensor, error) {
		return Tidy(e, "grads", func() ([]*tensor.Tensor, error) {
			_, grads, err := e.Gradients(func() (*tensor.Tensor, error) { return f(xs) }, xs, dy)
			return grads, err
		})
	}
}

// ValueAndGrad is like Grad, but also returns f's output.
func (e *Engine) ValueAndGrad(f func(x *tensor.Tensor) (*tensor.Tensor, error)) func(x, dy *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	return func(x, dy *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
		value, grads, err := e.Gradients(func() (*tensor.Tensor, error) { return f(x) }, []*tensor.Tensor{x}, dy)
		if err != nil {
			return nil, nil, err
		}
		return value, grads[0], nil
	}
}

// ValueAndGrads is like Grads, but also returns f's output.
func (e *Engine) ValueAndGrads(f func(xs []*tensor.Tensor) (*tensor.Tensor, error)) func(xs []*tensor.Tensor, dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	return func(xs []*tensor.Tensor, dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
		return e.Gradients(func() (*tensor.Tensor, error) { return f(xs) }, xs, dy)
	}
}

// VariableGrads computes the gradient of the scalar returned by f with respect to vars,
// or to every trainable variable if none are given. Gradients are keyed by variable
// name; variables f does not depend on are left out.
func (e *Engine) VariableGrads(f func() (*tensor.Tensor, error), vars ...*Variable) (*tensor.Tensor, map[string]*tensor.Tensor, error) {
	if len(vars) == 0 {
		vars = e.TrainableVariables()
	}
	if len(vars) == 0 {
		return nil, nil, errors.New("no variables to differentiate")
	}
	xs := make([]*tensor.Tensor, len(vars))
	for i, v := range vars {
		xs[i] = v.Value()
	}

	scalar := func() (*tensor.Tensor, error) {
		y, err := f()
		if err == nil && y != nil && y.Rank() != 0 {
			return nil, errors.Errorf("variable gradients need a scalar output, got shape %s", y.Shape())
		}
		return y, err
	}
	value, grads, err := e.Gradients(scalar, xs, nil)
	if err != nil {
		return nil, nil, err
	}
	named := make(map[string]*tensor.Tensor, len(vars))
	for i, v := range vars {
		if grads[i] != nil {
			named[v.Name()] = grads[i]
		}
	}
	return value, named, nil
}

// GradFunc computes the gradients of a custom operation's inputs from the gradient of
// its output and the tensors saved during the forward pass.
type GradFunc func(dy *tensor.Tensor, saved []*tensor.Tensor) ([]*tensor.Tensor, error)

// CustomFunc is the forward pass of a custom operation. It returns the output and the
// function computing its gradient; tensors passed to save are kept for that function.
type CustomFunc func(inputs []*tensor.Tensor, save func(...*tensor.Tensor)) (*tensor.Tensor, GradFunc, error)

// CustomGrad returns an operation whose gradient is given by f instead of being derived
// from the operations f runs. Those operations are not recorded on the tape.
func (e *Engine) CustomGrad(f CustomFunc) func(inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	return func(inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
		for i, in := range inputs {
			if err := e.checkLive(in); err != nil {
				return nil, errors.WithMessagef(err, "custom op input %d", i)
			}
		}
		var saved []*tensor.Tensor
		save := func(ts ...*tensor.Tensor) { saved = append(saved, ts...) }
		value, gradFn, err := e.forwardCustom(f, inputs, save)
		if err != nil {
			return nil, err
		}
		if !e.tape.IsRecording() || e.kernelDepth > 0 {
			return value, nil
		}

		named := make(kernels.Inputs, len(inputs))
		names := make([]string, len(inputs))
		for i, in := range inputs {
			names[i] = fmt.Sprintf("x%d", i)
			named[names[i]] = in
		}
		rule := &customRule{grad: gradFn, names: names, numSaved: len(saved)}
		node := autodiff.NewNode(kernels.OpCustom, named, []*tensor.Tensor{value}, nil, rule)
		e.tape.Record(node)
		for i, t := range saved {
			clone, err := e.clone(t, false)
			if err != nil {
				return nil, errors.WithMessagef(err, "saving tensor %d of custom op", i)
			}
			node.SavedInputs[savedName(i)] = clone
		}
		return value, nil
	}
}

// forwardCustom runs a custom forward pass with recording suppressed.
func (e *Engine) forwardCustom(f CustomFunc, inputs []*tensor.Tensor, save func(...*tensor.Tensor)) (value *tensor.Tensor, grad GradFunc, err error) {
	e.kernelDepth++
	defer func() { e.kernelDepth-- }()

	value, grad, err = f(inputs, save)
	if err != nil {
		return nil, nil, err
	}
	if value == nil {
		return nil, nil, errors.New("custom op returned no output")
	}
	if grad == nil {
		return nil, nil, errors.New("custom op returned no gradient function")
	}
	for _, in := range inputs {
		if value == in {
			// The output needs its own handle to be told apart from the input on the tape.
			value, err = ops.Identity(e, value)
			break
		}
	}
	return value, grad, err
}

func savedName(i int) string {
	return fmt.Sprintf("saved%d", i)
}

// customRule adapts a GradFunc to kernels.GradientRule.
type customRule struct {
	grad     GradFunc
	names    []string
	numSaved int
}

func (r *customRule) Backward(ctx *kernels.GradContext, dys []*tensor.Tensor) (kernels.Inputs, error) {
	saved := make([]*tensor.Tensor, r.numSaved)
	for i := range saved {
		saved[i] = ctx.Input(savedName(i))
	}
	grads, err := r.grad(dys[0], saved)
	if err != nil {
		return nil, err
	}
	if len(grads) != len(r.names) {
		return nil, errors.Errorf("custom gradient returned %d gradients for %d inputs", len(grads), len(r.names))
	}
	out := make(kernels.Inputs, len(grads))
	for i, name := range r.names {
		out[name] = grads[i]
	}
	return out, nil
}
