package cpu

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/engine/internal/tensor"
)

// CastValues converts flat host values to dtype. Numeric and bool dtypes convert between each
// other through complex128; complex to real conversions keep the real part.
func CastValues(values any, dtype tensor.DataType) (any, error) {
	from, err := tensor.ValuesDataType(values)
	if err != nil {
		return nil, err
	}
	if from == dtype {
		return tensor.CloneValues(values), nil
	}
	if from == tensor.String || dtype == tensor.String {
		return nil, errors.Errorf("cannot cast between %s and %s", from, dtype)
	}

	wide := widen(values)
	switch dtype {
	case tensor.Float32:
		dst := make([]float32, len(wide))
		for i, v := range wide {
			dst[i] = float32(real(v))
		}
		return dst, nil
	case tensor.Float16:
		dst := make([]float16.Float16, len(wide))
		for i, v := range wide {
			dst[i] = float16.Fromfloat32(float32(real(v)))
		}
		return dst, nil
	case tensor.Int32:
		dst := make([]int32, len(wide))
		for i, v := range wide {
			dst[i] = int32(real(v))
		}
		return dst, nil
	case tensor.Bool:
		dst := make([]bool, len(wide))
		for i, v := range wide {
			dst[i] = v != 0
		}
		return dst, nil
	case tensor.Complex64:
		dst := make([]complex64, len(wide))
		for i, v := range wide {
			dst[i] = complex64(v)
		}
		return dst, nil
	default:
		return nil, errors.Errorf("unsupported cast target %s", dtype)
	}
}

func widen(values any) []complex128 {
	switch src := values.(type) {
	case []float32:
		return widenReal(src, func(v float32) float64 { return float64(v) })
	case []float16.Float16:
		return widenReal(src, func(v float16.Float16) float64 { return float64(v.Float32()) })
	case []int32:
		return widenReal(src, func(v int32) float64 { return float64(v) })
	case []bool:
		return widenReal(src, func(v bool) float64 {
			if v {
				return 1
			}
			return 0
		})
	case []complex64:
		out := make([]complex128, len(src))
		for i, v := range src {
			out[i] = complex128(v)
		}
		return out
	default:
		return nil
	}
}

func widenReal[T any](src []T, conv func(T) float64) []complex128 {
	out := make([]complex128, len(src))
	for i, v := range src {
		out[i] = complex(conv(v), 0)
	}
	return out
}
