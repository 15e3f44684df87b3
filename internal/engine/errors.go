package engine

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/autodiff"
	"github.com/born-ml/engine/internal/kernels"
)

// Errors reported by the engine itself. Backend failures are the sentinels of package
// backend, kernel registry failures the typed errors of package kernels.
var (
	// ErrVariableExists is returned when creating a variable under a name already in use.
	ErrVariableExists = errors.New("variable already exists")

	// ErrDisposedTensor is returned when a disposed handle is passed to an operation.
	ErrDisposedTensor = errors.New("tensor is disposed")

	// ErrNoScope is returned by EndScope when no scope is open.
	ErrNoScope = errors.New("no scope is open")
)

// MemoryLeakError reports a kernel that left the backend with more (or fewer) live
// buffers than the outputs it returned. Only checked in debug mode.
type MemoryLeakError struct {
	Op       kernels.OpID
	Backend  string
	Before   int
	After    int
	Expected int
}

func (e *MemoryLeakError) Error() string {
	return fmt.Sprintf("kernel %s on backend %q leaked buffers: %d live before, %d after, expected %d",
		e.Op, e.Backend, e.Before, e.After, e.Expected)
}

// NestedGradientCallError is returned when a gradient computation is started while
// another one is still recording.
type NestedGradientCallError struct {
	Depth int
}

func (e *NestedGradientCallError) Error() string {
	return fmt.Sprintf("gradients cannot be computed inside a gradient function (tape depth %d)", e.Depth)
}

// ShapeMismatchError is returned when a gradient rule produces a gradient whose shape
// differs from the input it belongs to.
type ShapeMismatchError = autodiff.ShapeMismatchError

// GradientNotFoundError is returned when the backward pass reaches an op without a
// registered gradient rule.
type GradientNotFoundError = autodiff.GradientNotFoundError
