package kernels

import "github.com/born-ml/engine/internal/tensor"

// Runner dispatches ops. The engine implements it; op helpers and gradient rules only
// depend on this interface.
type Runner interface {
	RunKernel(op OpID, inputs Inputs, attrs Attrs) ([]*tensor.Tensor, error)
}

// GradContext is what a GradientRule receives for one tape node.
type GradContext struct {
	Runner Runner
	Attrs  Attrs

	// SavedInputs holds the inputs named by GradConfig.InputsToSave.
	SavedInputs map[string]*tensor.Tensor

	// SavedOutputs is indexed like the node's outputs; only entries flagged by
	// GradConfig.OutputsToSave are non-nil.
	SavedOutputs []*tensor.Tensor

	// InputShapes and InputDTypes describe every input, saved or not.
	InputShapes map[string]tensor.Shape
	InputDTypes map[string]tensor.DataType
}

// Input returns a saved input or panics: rules only ask for what their config saves.
func (c *GradContext) Input(name string) *tensor.Tensor {
	t, found := c.SavedInputs[name]
	if !found {
		panic("gradient rule asked for unsaved input " + name)
	}
	return t
}

// Output returns the i-th saved output or panics.
func (c *GradContext) Output(i int) *tensor.Tensor {
	if i >= len(c.SavedOutputs) || c.SavedOutputs[i] == nil {
		panic("gradient rule asked for an unsaved output")
	}
	return c.SavedOutputs[i]
}

// GradientRule computes the gradients of a node's inputs from the gradients of its
// outputs. dys has one entry per output. The result must hold one gradient per input,
// keyed like the node's inputs, each shaped like its input. Inputs that are not
// differentiable may be omitted.
type GradientRule interface {
	Backward(ctx *GradContext, dys []*tensor.Tensor) (Inputs, error)
}

// GradConfig registers the gradient of an op and declares the tensors the tape must keep
// alive for it. Saving only what the rule needs bounds tape memory.
type GradConfig struct {
	Op            OpID
	InputsToSave  []string
	OutputsToSave []bool
	Rule          GradientRule
}
