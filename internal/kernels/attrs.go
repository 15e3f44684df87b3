package kernels

import (
	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/tensor"
)

// Attrs are the non-tensor parameters of an op invocation, e.g. the axes of a Sum.
type Attrs map[string]any

// Inputs are the named tensor inputs of an op invocation.
type Inputs map[string]*tensor.Tensor

// Attribute names shared by kernels and op helpers.
const (
	AttrAxes     = "axes"
	AttrKeepDims = "keepDims"
	AttrShape    = "shape"
	AttrDType    = "dtype"
	AttrValue    = "value"
)

// Ints returns the []int stored under key, or nil if absent.
func (a Attrs) Ints(key string) ([]int, error) {
	v, found := a[key]
	if !found || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []int:
		return x, nil
	case tensor.Shape:
		return []int(x), nil
	default:
		return nil, errors.Errorf("attribute %q is %T, not []int", key, v)
	}
}

// Bool returns the bool stored under key, false if absent.
func (a Attrs) Bool(key string) (bool, error) {
	v, found := a[key]
	if !found {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("attribute %q is %T, not bool", key, v)
	}
	return b, nil
}

// Shape returns the shape stored under key.
func (a Attrs) Shape(key string) (tensor.Shape, error) {
	if _, found := a[key]; !found {
		return nil, errors.Errorf("missing attribute %q", key)
	}
	ints, err := a.Ints(key)
	if err != nil {
		return nil, err
	}
	return tensor.Shape(ints), nil
}

// DType returns the dtype stored under key.
func (a Attrs) DType(key string) (tensor.DataType, error) {
	v, found := a[key]
	if !found {
		return 0, errors.Errorf("missing attribute %q", key)
	}
	dt, ok := v.(tensor.DataType)
	if !ok {
		return 0, errors.Errorf("attribute %q is %T, not DataType", key, v)
	}
	return dt, nil
}
