package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// Flat values are always a Go slice of the element type matching the DataType:
// []float32, []int32, []bool, []complex64, []string or []float16.Float16.

// MakeValues allocates n zero values for dtype.
func MakeValues(dtype DataType, n int) any {
	switch dtype {
	case Float32:
		return make([]float32, n)
	case Int32:
		return make([]int32, n)
	case Bool:
		return make([]bool, n)
	case Complex64:
		return make([]complex64, n)
	case String:
		return make([]string, n)
	case Float16:
		return make([]float16.Float16, n)
	default:
		panic(fmt.Sprintf("MakeValues: unknown dtype %d", dtype))
	}
}

// ValuesDataType returns the DataType of a flat slice.
func ValuesDataType(values any) (DataType, error) {
	switch values.(type) {
	case []float32:
		return Float32, nil
	case []int32:
		return Int32, nil
	case []bool:
		return Bool, nil
	case []complex64:
		return Complex64, nil
	case []string:
		return String, nil
	case []float16.Float16:
		return Float16, nil
	default:
		return 0, fmt.Errorf("unsupported flat values type %T", values)
	}
}

// ValuesLen returns the number of elements of a flat slice, or -1 if values is not one.
func ValuesLen(values any) int {
	switch v := values.(type) {
	case []float32:
		return len(v)
	case []int32:
		return len(v)
	case []bool:
		return len(v)
	case []complex64:
		return len(v)
	case []string:
		return len(v)
	case []float16.Float16:
		return len(v)
	default:
		return -1
	}
}

// CloneValues returns a copy of a flat slice.
func CloneValues(values any) any {
	switch v := values.(type) {
	case []float32:
		return append([]float32(nil), v...)
	case []int32:
		return append([]int32(nil), v...)
	case []bool:
		return append([]bool(nil), v...)
	case []complex64:
		return append([]complex64(nil), v...)
	case []string:
		return append([]string(nil), v...)
	case []float16.Float16:
		return append([]float16.Float16(nil), v...)
	default:
		panic(fmt.Sprintf("CloneValues: unsupported flat values type %T", values))
	}
}

// ValuesBytes returns the memory held by a flat slice. Strings count their byte length.
func ValuesBytes(values any) int {
	if s, ok := values.([]string); ok {
		n := 0
		for _, v := range s {
			n += len(v)
		}
		return n
	}
	dtype, err := ValuesDataType(values)
	if err != nil {
		return 0
	}
	return ValuesLen(values) * dtype.Size()
}

// CheckValues validates that values is a flat slice of dtype holding shape.NumElements()
// elements.
func CheckValues(values any, shape Shape, dtype DataType) error {
	got, err := ValuesDataType(values)
	if err != nil {
		return err
	}
	if got != dtype {
		return fmt.Errorf("values of type %s given for a %s tensor", got, dtype)
	}
	if n := ValuesLen(values); n != shape.NumElements() {
		return fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), n)
	}
	return nil
}

// FillValues allocates n values of dtype all equal to value. Numeric values are converted
// from any Go number; bool and string dtypes require a value of that type.
func FillValues(dtype DataType, n int, value any) (any, error) {
	switch dtype {
	case String:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("fill: string tensor needs a string value, got %T", value)
		}
		out := make([]string, n)
		for i := range out {
			out[i] = s
		}
		return out, nil
	case Bool:
		b, ok := value.(bool)
		if !ok {
			f, err := toFloat64(value)
			if err != nil {
				return nil, fmt.Errorf("fill: %w", err)
			}
			b = f != 0
		}
		out := make([]bool, n)
		for i := range out {
			out[i] = b
		}
		return out, nil
	case Complex64:
		var c complex64
		if cv, ok := value.(complex64); ok {
			c = cv
		} else {
			f, err := toFloat64(value)
			if err != nil {
				return nil, fmt.Errorf("fill: %w", err)
			}
			c = complex(float32(f), 0)
		}
		out := make([]complex64, n)
		for i := range out {
			out[i] = c
		}
		return out, nil
	}

	f, err := toFloat64(value)
	if err != nil {
		return nil, fmt.Errorf("fill: %w", err)
	}
	switch dtype {
	case Float32:
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(f)
		}
		return out, nil
	case Int32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(f)
		}
		return out, nil
	case Float16:
		h := float16.Fromfloat32(float32(f))
		out := make([]float16.Float16, n)
		for i := range out {
			out[i] = h
		}
		return out, nil
	default:
		return nil, fmt.Errorf("fill: unsupported dtype %s", dtype)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float16.Float16:
		return float64(v.Float32()), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", value)
	}
}

// AsSlice type-asserts flat values to []T.
func AsSlice[T DType](values any) ([]T, error) {
	s, ok := values.([]T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("values are %T, not []%T", values, zero)
	}
	return s, nil
}
