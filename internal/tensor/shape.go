package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
// A scalar (empty shape) has one element; any zero dimension makes it empty.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Validate checks that no dimension is negative. Zero-sized dimensions are valid.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// String formats the shape as "[2, 3]".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// InferReshape resolves a single -1 entry of target against the element count of s.
func (s Shape) InferReshape(target Shape) (Shape, error) {
	out := target.Clone()
	unknown := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1:
			if unknown >= 0 {
				return nil, fmt.Errorf("reshape %v to %v: only one dimension can be -1", s, target)
			}
			unknown = i
		case d < 0:
			return nil, fmt.Errorf("reshape %v to %v: invalid dimension %d", s, target, d)
		default:
			known *= d
		}
	}
	size := s.NumElements()
	if unknown >= 0 {
		if known == 0 || size%known != 0 {
			return nil, fmt.Errorf("reshape %v to %v: cannot infer dimension", s, target)
		}
		out[unknown] = size / known
	}
	if out.NumElements() != size {
		return nil, fmt.Errorf("reshape %v (%d elements) to %v (%d elements)", s, size, target, out.NumElements())
	}
	return out, nil
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Rules:
// 1. Compare shapes element-wise from right to left
// 2. Dimensions are compatible if:
//   - They are equal, OR
//   - One of them is 1
//
// 3. Missing dimensions are treated as 1
//
// Returns the broadcasted shape, a flag indicating if broadcasting is needed, and an error if incompatible.
//
// Examples:
//
//	(3, 1) + (3, 5) → (3, 5), true, nil
//	(1, 5) + (3, 5) → (3, 5), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(3, 4) + (3, 5) → nil, false, Error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < maxLen; i++ {
		aIdx := len(a) - 1 - i
		bIdx := len(b) - 1 - i

		aDim := 1
		if aIdx >= 0 {
			aDim = a[aIdx]
		}

		bDim := 1
		if bIdx >= 0 {
			bDim = b[bIdx]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}

// ReductionAxes returns the axes of outShape that were introduced or stretched when
// broadcasting inShape to outShape. Summing over them maps a gradient of outShape back
// to inShape (after a reshape).
//
// Example:
//
//	ReductionAxes([4], [3, 4])    → [0]
//	ReductionAxes([3, 1], [3, 4]) → [1]
func ReductionAxes(inShape, outShape Shape) []int {
	var axes []int
	offset := len(outShape) - len(inShape)
	for i := range outShape {
		inIdx := i - offset
		if inIdx < 0 {
			axes = append(axes, i)
			continue
		}
		if inShape[inIdx] == 1 && outShape[i] != 1 {
			axes = append(axes, i)
		}
	}
	return axes
}
