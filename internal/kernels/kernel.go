package kernels

import (
	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/tensor"
)

// Context is what a kernel receives: its inputs, attributes and the backend owning the
// input buffers.
type Context struct {
	Inputs  Inputs
	Attrs   Attrs
	Backend backend.Backend
}

// Output describes one buffer produced by a kernel. DataID is either a fresh id written
// through the backend or the id of one of the inputs (after IncRef) for metadata-only ops.
type Output struct {
	DataID tensor.DataID
	Shape  tensor.Shape
	DType  tensor.DataType
}

// OutputSpec is the shape and dtype of an output, known before running the kernel.
type OutputSpec struct {
	Shape tensor.Shape
	DType tensor.DataType
}

// KernelFunc executes an op. It must allocate outputs only through ctx.Backend, and
// for given input shapes, dtypes and attrs always produce the same output shapes.
type KernelFunc func(ctx *Context) ([]Output, error)

// ShapeFunc computes the outputs an op will produce. It lets the engine skip the kernel
// for zero-sized outputs.
type ShapeFunc func(inputs Inputs, attrs Attrs) ([]OutputSpec, error)

// SetupFunc runs once when a backend becomes active.
type SetupFunc func(b backend.Backend) error

// TeardownFunc runs once when a backend is removed or replaced as the active one.
type TeardownFunc func(b backend.Backend) error

// KernelConfig registers the kernel of one op on one backend.
type KernelConfig struct {
	Op       OpID
	Backend  BackendID
	Kernel   KernelFunc
	Setup    SetupFunc
	Teardown TeardownFunc

	// OutputShape is optional. Without it the kernel always runs, even for empty tensors.
	OutputShape ShapeFunc
}

// IdentityKernel returns its input's buffer with one more reference. It only uses the
// Backend interface, so every backend can register it.
func IdentityKernel(ctx *Context) ([]Output, error) {
	x, err := ctx.Inputs.Input(InputX)
	if err != nil {
		return nil, errors.Wrap(err, "Identity")
	}
	if err := ctx.Backend.IncRef(x.DataID()); err != nil {
		return nil, err
	}
	return []Output{{DataID: x.DataID(), Shape: x.Shape().Clone(), DType: x.DType()}}, nil
}

// ReshapeKernel is metadata only: the output shares the input's buffer.
func ReshapeKernel(ctx *Context) ([]Output, error) {
	specs, err := ReshapeShape(ctx.Inputs, ctx.Attrs)
	if err != nil {
		return nil, errors.Wrap(err, "Reshape")
	}
	x := ctx.Inputs[InputX]
	if err := ctx.Backend.IncRef(x.DataID()); err != nil {
		return nil, err
	}
	return []Output{{DataID: x.DataID(), Shape: specs[0].Shape, DType: x.DType()}}, nil
}
