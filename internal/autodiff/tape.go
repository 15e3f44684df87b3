// Package autodiff implements the gradient tape: the log of operations recorded while
// gradients are being tracked, the pruning of that log down to the nodes connecting the
// requested inputs to the output, and the reverse walk computing gradients.
package autodiff

import (
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// Node is one recorded operation.
type Node struct {
	ID      int64
	Op      kernels.OpID
	Inputs  kernels.Inputs
	Outputs []*tensor.Tensor
	Attrs   kernels.Attrs
	Rule    kernels.GradientRule

	// InputShapes and InputDTypes describe every input at record time, saved or not.
	InputShapes map[string]tensor.Shape
	InputDTypes map[string]tensor.DataType

	// SavedInputs and SavedOutputs are the tape-owned clones the rule asked for.
	SavedInputs  map[string]*tensor.Tensor
	SavedOutputs []*tensor.Tensor
}

// NewNode creates a node, describing the shapes and dtypes of inputs.
func NewNode(op kernels.OpID, inputs kernels.Inputs, outputs []*tensor.Tensor, attrs kernels.Attrs, rule kernels.GradientRule) *Node {
	n := &Node{
		Op:          op,
		Inputs:      make(kernels.Inputs, len(inputs)),
		Outputs:     outputs,
		Attrs:       attrs,
		Rule:        rule,
		InputShapes: make(map[string]tensor.Shape, len(inputs)),
		InputDTypes: make(map[string]tensor.DataType, len(inputs)),
		SavedInputs: make(map[string]*tensor.Tensor),
	}
	for name, t := range inputs {
		n.Inputs[name] = t
		n.InputShapes[name] = t.Shape().Clone()
		n.InputDTypes[name] = t.DType()
	}
	return n
}

// Saved returns every tensor the node keeps alive for its rule.
func (n *Node) Saved() []*tensor.Tensor {
	saved := make([]*tensor.Tensor, 0, len(n.SavedInputs)+len(n.SavedOutputs))
	for _, t := range n.SavedInputs {
		saved = append(saved, t)
	}
	for _, t := range n.SavedOutputs {
		if t != nil {
			saved = append(saved, t)
		}
	}
	return saved
}

// GradContext returns the context the node's rule is invoked with.
func (n *Node) GradContext(r kernels.Runner) *kernels.GradContext {
	return &kernels.GradContext{
		Runner:       r,
		Attrs:        n.Attrs,
		SavedInputs:  n.SavedInputs,
		SavedOutputs: n.SavedOutputs,
		InputShapes:  n.InputShapes,
		InputDTypes:  n.InputDTypes,
	}
}

// Tape records nodes while gradient tracking is on.
//
// Recording is reference counted: Begin and End nest, and the tape records while at least
// one Begin is open.
type Tape struct {
	nodes  []*Node
	depth  int
	nextID int64
}

// NewTape creates an empty, non-recording tape.
func NewTape() *Tape {
	return &Tape{nodes: make([]*Node, 0, 64)}
}

// Begin starts (or nests) recording.
func (t *Tape) Begin() {
	t.depth++
}

// End closes the innermost Begin.
func (t *Tape) End() {
	if t.depth > 0 {
		t.depth--
	}
}

// Depth returns the number of open Begin calls.
func (t *Tape) Depth() int {
	return t.depth
}

// IsRecording returns true if the tape is currently recording operations.
func (t *Tape) IsRecording() bool {
	return t.depth > 0
}

// Record appends n and assigns its ID. Only records if the tape is recording.
func (t *Tape) Record(n *Node) bool {
	if !t.IsRecording() {
		return false
	}
	t.nextID++
	n.ID = t.nextID
	t.nodes = append(t.nodes, n)
	return true
}

// Nodes returns the recorded nodes in execution order.
func (t *Tape) Nodes() []*Node {
	return t.nodes
}

// Len returns the number of recorded nodes.
func (t *Tape) Len() int {
	return len(t.nodes)
}

// Saved returns every tensor saved by recorded nodes.
func (t *Tape) Saved() []*tensor.Tensor {
	var saved []*tensor.Tensor
	for _, n := range t.nodes {
		saved = append(saved, n.Saved()...)
	}
	return saved
}

// Clear drops every node. The caller disposes of the saved tensors first.
func (t *Tape) Clear() {
	clear(t.nodes)
	t.nodes = t.nodes[:0]
}
