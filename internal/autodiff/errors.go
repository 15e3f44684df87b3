package autodiff

import (
	"fmt"

	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// ShapeMismatchError is returned when a gradient rule produces a gradient whose shape
// differs from its input's. It indicates a buggy kernel/gradient pair.
type ShapeMismatchError struct {
	Op    kernels.OpID
	Input string
	Want  tensor.Shape
	Got   tensor.Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("gradient of %s for input %q has shape %s, want %s (broadcast axes must be reduced first)",
		e.Op, e.Input, e.Got, e.Want)
}

// GradientNotFoundError is returned when the backward walk reaches a node whose op has no
// registered gradient.
type GradientNotFoundError struct {
	Op kernels.OpID
}

func (e *GradientNotFoundError) Error() string {
	return fmt.Sprintf("no gradient registered for op %s", e.Op)
}
