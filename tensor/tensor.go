// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types of the Born engine.
//
// A Tensor is a lightweight handle: it carries a shape and a dtype and points at a
// logical buffer owned by a backend. Tensors are created and consumed through an
// engine.Engine, which also tracks and disposes them.
//
// Example:
//
//	e := engine.Default()
//	x, _ := engine.FromSlice(e, []float32{1, 2, 3, 4}, 2, 2)
//	fmt.Println(x.Shape(), x.DType()) // [2 2] float32
package tensor

import (
	"github.com/born-ml/engine/internal/tensor"
)

// Tensor is a handle onto a logical buffer held by a backend.
type Tensor = tensor.Tensor

// Shape lists the size of each dimension. The empty shape is a scalar.
type Shape = tensor.Shape

// DataType enumerates the element types a tensor can hold.
type DataType = tensor.DataType

// DType is the constraint over the Go element types with a matching DataType.
type DType = tensor.DType

// DataID identifies a buffer within its backend. The zero value is invalid.
type DataID = tensor.DataID

// DataRef is the engine's record of one logical buffer, shared by every handle
// pointing at it.
type DataRef = tensor.DataRef

// Data type constants.
const (
	Float32   DataType = tensor.Float32
	Int32     DataType = tensor.Int32
	Bool      DataType = tensor.Bool
	Complex64 DataType = tensor.Complex64
	String    DataType = tensor.String
	Float16   DataType = tensor.Float16
)

// DataTypeOf returns the DataType matching the Go type T.
func DataTypeOf[T DType]() DataType {
	return tensor.DataTypeOf[T]()
}

// BroadcastShapes returns the shape two operands broadcast to, and whether any
// broadcasting was needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
