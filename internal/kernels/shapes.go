package kernels

import (
	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/tensor"
)

// Input names of the reference ops.
const (
	InputA = "a"
	InputB = "b"
	InputX = "x"
)

// Input returns the input called name, failing if it is missing.
func (in Inputs) Input(name string) (*tensor.Tensor, error) {
	t, found := in[name]
	if !found || t == nil {
		return nil, errors.Errorf("missing input %q", name)
	}
	return t, nil
}

// BinaryShape infers the output of an elementwise op on inputs "a" and "b" with
// broadcasting.
func BinaryShape(inputs Inputs, _ Attrs) ([]OutputSpec, error) {
	a, err := inputs.Input(InputA)
	if err != nil {
		return nil, err
	}
	b, err := inputs.Input(InputB)
	if err != nil {
		return nil, err
	}
	if a.DType() != b.DType() {
		return nil, errors.Errorf("operands have different dtypes %s and %s", a.DType(), b.DType())
	}
	shape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	return []OutputSpec{{Shape: shape, DType: a.DType()}}, nil
}

// UnaryShape infers the output of an elementwise op on input "x".
func UnaryShape(inputs Inputs, _ Attrs) ([]OutputSpec, error) {
	x, err := inputs.Input(InputX)
	if err != nil {
		return nil, err
	}
	return []OutputSpec{{Shape: x.Shape().Clone(), DType: x.DType()}}, nil
}

// NormalizeAxes resolves negative axes against rank and checks bounds. Nil axes select
// every axis. The result is sorted and free of duplicates.
func NormalizeAxes(axes []int, rank int) ([]int, error) {
	if axes == nil {
		all := make([]int, rank)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	seen := make([]bool, rank)
	for _, axis := range axes {
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return nil, errors.Errorf("axis %d out of range for rank %d", axis, rank)
		}
		seen[axis] = true
	}
	var normalized []int
	for axis, ok := range seen {
		if ok {
			normalized = append(normalized, axis)
		}
	}
	return normalized, nil
}

// ReducedShape returns shape with axes removed, or set to 1 if keepDims.
func ReducedShape(shape tensor.Shape, axes []int, keepDims bool) tensor.Shape {
	reduced := make([]bool, len(shape))
	for _, axis := range axes {
		reduced[axis] = true
	}
	out := make(tensor.Shape, 0, len(shape))
	for i, dim := range shape {
		switch {
		case !reduced[i]:
			out = append(out, dim)
		case keepDims:
			out = append(out, 1)
		}
	}
	return out
}

// SumShape infers the output of Sum on input "x" with the "axes" and "keepDims" attrs.
func SumShape(inputs Inputs, attrs Attrs) ([]OutputSpec, error) {
	x, err := inputs.Input(InputX)
	if err != nil {
		return nil, err
	}
	rawAxes, err := attrs.Ints(AttrAxes)
	if err != nil {
		return nil, err
	}
	axes, err := NormalizeAxes(rawAxes, x.Rank())
	if err != nil {
		return nil, err
	}
	keepDims, err := attrs.Bool(AttrKeepDims)
	if err != nil {
		return nil, err
	}
	return []OutputSpec{{Shape: ReducedShape(x.Shape(), axes, keepDims), DType: x.DType()}}, nil
}

// ReshapeShape infers the output of Reshape on input "x" to the "shape" attr, which may
// hold one -1.
func ReshapeShape(inputs Inputs, attrs Attrs) ([]OutputSpec, error) {
	x, err := inputs.Input(InputX)
	if err != nil {
		return nil, err
	}
	target, err := attrs.Shape(AttrShape)
	if err != nil {
		return nil, err
	}
	shape, err := x.Shape().InferReshape(target)
	if err != nil {
		return nil, err
	}
	return []OutputSpec{{Shape: shape, DType: x.DType()}}, nil
}

// CastShape infers the output of Cast on input "x" to the "dtype" attr.
func CastShape(inputs Inputs, attrs Attrs) ([]OutputSpec, error) {
	x, err := inputs.Input(InputX)
	if err != nil {
		return nil, err
	}
	dtype, err := attrs.DType(AttrDType)
	if err != nil {
		return nil, err
	}
	return []OutputSpec{{Shape: x.Shape().Clone(), DType: dtype}}, nil
}

// FillShape infers the output of Fill from its "shape" and "dtype" attrs.
func FillShape(_ Inputs, attrs Attrs) ([]OutputSpec, error) {
	shape, err := attrs.Shape(AttrShape)
	if err != nil {
		return nil, err
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	dtype, err := attrs.DType(AttrDType)
	if err != nil {
		return nil, err
	}
	return []OutputSpec{{Shape: shape.Clone(), DType: dtype}}, nil
}
