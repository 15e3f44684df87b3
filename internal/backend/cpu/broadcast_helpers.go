package cpu

import (
	"github.com/x448/float16"

	"github.com/born-ml/engine/internal/parallel"
	"github.com/born-ml/engine/internal/tensor"
)

// computeBroadcastStridesForShape computes strides for broadcasting a shape to outShape.
// Returns strides where dimensions of size 1 have stride 0 (for broadcasting).
func computeBroadcastStridesForShape(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)

	// Pad input shape with 1s on the left.
	inDim := len(inShape)
	offset := outDim - inDim
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		switch {
		case inIdx < 0 || inIdx >= inDim:
			strides[i] = 0
		case inShape[inIdx] == 1:
			strides[i] = 0
		default:
			strides[i] = origStrides[inIdx]
		}
	}
	return strides
}

// computeFlatIndex maps the flat index of an element of the iterated shape (with strides
// outStrides) to a flat index using inStrides.
func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}

// broadcastBinary computes fn(a, b) elementwise over outShape.
func broadcastBinary[T any](par parallel.Config, a, b []T, aShape, bShape, outShape tensor.Shape, fn func(x, y T) T) []T {
	n := outShape.NumElements()
	dst := make([]T, n)
	if aShape.Equal(bShape) {
		parallel.ForRange(n, par, func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = fn(a[i], b[i])
			}
		})
		return dst
	}

	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(aShape, outShape)
	bStrides := computeBroadcastStridesForShape(bShape, outShape)
	parallel.ForRange(n, par, func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = fn(a[computeFlatIndex(i, outStrides, aStrides)], b[computeFlatIndex(i, outStrides, bStrides)])
		}
	})
	return dst
}

// sumAxes sums values of shape over the given (normalized) axes. The result is laid out
// like the reduced shape, with or without kept dimensions.
func sumAxes[T float32 | int32 | complex64](values []T, shape tensor.Shape, axes []int) []T {
	keptShape := shape.Clone()
	for _, axis := range axes {
		keptShape[axis] = 1
	}
	out := make([]T, keptShape.NumElements())
	if len(values) == 0 {
		return out
	}

	inStrides := shape.ComputeStrides()
	outStrides := computeBroadcastStridesForShape(keptShape, shape)
	for i, v := range values {
		out[computeFlatIndex(i, inStrides, outStrides)] += v
	}
	return out
}

func float16ToFloat32(values []float16.Float16) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = v.Float32()
	}
	return out
}

func float32ToFloat16(values []float32) []float16.Float16 {
	out := make([]float16.Float16, len(values))
	for i, v := range values {
		out[i] = float16.Fromfloat32(v)
	}
	return out
}
