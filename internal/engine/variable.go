package engine

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/tensor"
)

// Variable is a long-lived, named tensor that scopes never dispose of. Assign replaces
// its value in place, which is how optimizers update parameters.
type Variable struct {
	e         *Engine
	name      string
	trainable bool
	value     *tensor.Tensor
}

// Variable creates a variable holding initial's buffer. An empty name generates one.
// The variable holds its own reference, so initial may be disposed afterwards.
func (e *Engine) Variable(initial *tensor.Tensor, trainable bool, name string) (*Variable, error) {
	if name == "" {
		e.nextVariableID++
		name = fmt.Sprintf("variable%d", e.nextVariableID)
	}
	if _, found := e.variables[name]; found {
		return nil, errors.Wrapf(ErrVariableExists, "variable %q", name)
	}
	value, err := e.clone(initial, false)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating variable %q", name)
	}
	v := &Variable{e: e, name: name, trainable: trainable, value: value}
	e.variables[name] = v
	return v, nil
}

// Name returns the variable's unique name.
func (v *Variable) Name() string { return v.name }

// Trainable reports whether VariableGrads differentiates the variable by default.
func (v *Variable) Trainable() bool { return v.trainable }

// SetTrainable changes whether the variable is trainable.
func (v *Variable) SetTrainable(trainable bool) { v.trainable = trainable }

// Value returns the handle of the variable's current buffer. The handle is owned by the
// variable: it becomes disposed when the variable is assigned or disposed.
func (v *Variable) Value() *tensor.Tensor { return v.value }

// Shape returns the variable's shape.
func (v *Variable) Shape() tensor.Shape { return v.value.Shape() }

// DType returns the variable's data type.
func (v *Variable) DType() tensor.DataType { return v.value.DType() }

// String implements fmt.Stringer.
func (v *Variable) String() string {
	return fmt.Sprintf("Variable(%q, %s)", v.name, v.value)
}

// Assign makes the variable hold t's buffer, releasing its previous one. t must have the
// variable's shape and dtype; it stays owned by the caller.
func (v *Variable) Assign(t *tensor.Tensor) error {
	if v.value == nil || v.value.IsDisposed() {
		return errors.Wrapf(ErrDisposedTensor, "variable %q", v.name)
	}
	if err := v.e.checkLive(t); err != nil {
		return err
	}
	if !t.Shape().Equal(v.value.Shape()) || t.DType() != v.value.DType() {
		return errors.Errorf("cannot assign %s%v to variable %q of %s%v",
			t.DType(), t.Shape(), v.name, v.value.DType(), v.value.Shape())
	}
	if t.Ref() == v.value.Ref() {
		return nil
	}
	value, err := v.e.clone(t, false)
	if err != nil {
		return err
	}
	old := v.value
	v.value = value
	return v.e.dispose(old)
}

// Dispose releases the variable's buffer and unregisters its name.
func (v *Variable) Dispose() error {
	if v.e.variables[v.name] == v {
		delete(v.e.variables, v.name)
	}
	if v.value == nil {
		return nil
	}
	return v.e.dispose(v.value)
}

// Variables returns the registered variables sorted by name.
func (e *Engine) Variables() []*Variable {
	vars := make([]*Variable, 0, len(e.variables))
	for _, v := range e.variables {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].name < vars[j].name })
	return vars
}

// TrainableVariables returns the trainable variables sorted by name.
func (e *Engine) TrainableVariables() []*Variable {
	var vars []*Variable
	for _, v := range e.Variables() {
		if v.trainable {
			vars = append(vars, v)
		}
	}
	return vars
}

// DisposeVariables disposes every registered variable.
func (e *Engine) DisposeVariables() error {
	var firstErr error
	for _, v := range e.Variables() {
		if err := v.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
