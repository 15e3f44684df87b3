// Package tensor provides the tensor handle, shapes, data types and buffer ids
// shared by the engine, the kernels and every backend.
package tensor

import (
	"github.com/x448/float16"
)

// DType is a constraint for the Go element types a tensor can hold.
type DType interface {
	float32 | int32 | bool | complex64 | string | float16.Float16
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int32
	Bool
	Complex64
	String
	Float16
)

// Size returns the byte size of one element.
// String elements have no fixed size and report 0; see ValuesBytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Complex64:
		return 8
	case Float16:
		return 2
	case Bool:
		return 1
	case String:
		return 0
	default:
		panic("unknown data type")
	}
}

// IsFloat reports whether gradients can flow through values of this type.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float16 || dt == Complex64
}

// IsNumeric reports whether arithmetic kernels accept this type.
func (dt DataType) IsNumeric() bool {
	return dt == Float32 || dt == Float16 || dt == Complex64 || dt == Int32
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	case Complex64:
		return "complex64"
	case String:
		return "string"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// DataTypeOf infers the DataType for a generic element type T.
func DataTypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case int32:
		return Int32
	case bool:
		return Bool
	case complex64:
		return Complex64
	case string:
		return String
	case float16.Float16:
		return Float16
	default:
		panic("unsupported type")
	}
}
