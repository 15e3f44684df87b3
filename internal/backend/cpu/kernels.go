package cpu

import (
	"math/cmplx"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"gorgonia.org/vecf32"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/parallel"
	"github.com/born-ml/engine/internal/tensor"
)

// RegisterKernels registers the CPU kernels in r under backendID.
func RegisterKernels(r *kernels.Registry, backendID kernels.BackendID) error {
	cfgs := []kernels.KernelConfig{
		{Op: kernels.OpIdentity, Kernel: kernels.IdentityKernel, OutputShape: kernels.UnaryShape},
		{Op: kernels.OpAdd, Kernel: binaryKernel(kernels.OpAdd, addFns), OutputShape: kernels.BinaryShape},
		{Op: kernels.OpSub, Kernel: binaryKernel(kernels.OpSub, subFns), OutputShape: kernels.BinaryShape},
		{Op: kernels.OpMul, Kernel: binaryKernel(kernels.OpMul, mulFns), OutputShape: kernels.BinaryShape},
		{Op: kernels.OpDiv, Kernel: binaryKernel(kernels.OpDiv, divFns), OutputShape: kernels.BinaryShape},
		{Op: kernels.OpNeg, Kernel: unaryKernel(kernels.OpNeg, negFns), OutputShape: kernels.UnaryShape},
		{Op: kernels.OpExp, Kernel: unaryKernel(kernels.OpExp, expFns), OutputShape: kernels.UnaryShape},
		{Op: kernels.OpSquare, Kernel: unaryKernel(kernels.OpSquare, squareFns), OutputShape: kernels.UnaryShape},
		{Op: kernels.OpSum, Kernel: sumKernel, OutputShape: kernels.SumShape},
		{Op: kernels.OpReshape, Kernel: kernels.ReshapeKernel, OutputShape: kernels.ReshapeShape},
		{Op: kernels.OpCast, Kernel: castKernel, OutputShape: kernels.CastShape},
		{Op: kernels.OpFill, Kernel: fillKernel, OutputShape: kernels.FillShape},
		{Op: kernels.OpOnesLike, Kernel: likeKernel(1), OutputShape: kernels.UnaryShape},
		{Op: kernels.OpZerosLike, Kernel: likeKernel(0), OutputShape: kernels.UnaryShape},
	}
	for _, cfg := range cfgs {
		cfg.Backend = backendID
		if err := r.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

func cpuFrom(ctx *kernels.Context) (*CPUBackend, error) {
	cpu, ok := ctx.Backend.(*CPUBackend)
	if !ok {
		return nil, errors.Errorf("cpu kernel invoked on backend %T", ctx.Backend)
	}
	return cpu, nil
}

// values returns the stored values of t, without copying.
func (cpu *CPUBackend) values(t *tensor.Tensor) (any, error) {
	buf, err := cpu.buffer(t.DataID())
	if err != nil {
		return nil, err
	}
	return buf.values, nil
}

func single(id tensor.DataID, shape tensor.Shape, dtype tensor.DataType) []kernels.Output {
	return []kernels.Output{{DataID: id, Shape: shape, DType: dtype}}
}

func unsupported(op kernels.OpID, dtype tensor.DataType) error {
	return errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: %s does not support dtype %s", Name, op, dtype)
}

// binaryFns holds the per-dtype scalar functions of an elementwise binary op.
type binaryFns struct {
	f32 func(a, b float32) float32
	i32 func(a, b int32) int32
	c64 func(a, b complex64) complex64

	// vec computes a = a op b in place for same-shape float32 operands.
	vec func(a, b []float32)
}

var (
	addFns = binaryFns{
		f32: func(a, b float32) float32 { return a + b },
		i32: func(a, b int32) int32 { return a + b },
		c64: func(a, b complex64) complex64 { return a + b },
		vec: vecf32.Add,
	}
	subFns = binaryFns{
		f32: func(a, b float32) float32 { return a - b },
		i32: func(a, b int32) int32 { return a - b },
		c64: func(a, b complex64) complex64 { return a - b },
		vec: vecf32.Sub,
	}
	mulFns = binaryFns{
		f32: func(a, b float32) float32 { return a * b },
		i32: func(a, b int32) int32 { return a * b },
		c64: func(a, b complex64) complex64 { return a * b },
		vec: vecf32.Mul,
	}
	divFns = binaryFns{
		f32: func(a, b float32) float32 { return a / b },
		i32: func(a, b int32) int32 {
			if b == 0 {
				return 0
			}
			return a / b
		},
		c64: func(a, b complex64) complex64 { return a / b },
		vec: vecf32.Div,
	}
)

func binaryKernel(op kernels.OpID, fns binaryFns) kernels.KernelFunc {
	return func(ctx *kernels.Context) ([]kernels.Output, error) {
		cpu, err := cpuFrom(ctx)
		if err != nil {
			return nil, err
		}
		specs, err := kernels.BinaryShape(ctx.Inputs, ctx.Attrs)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", op)
		}
		outShape, dtype := specs[0].Shape, specs[0].DType
		a, b := ctx.Inputs[kernels.InputA], ctx.Inputs[kernels.InputB]
		av, err := cpu.values(a)
		if err != nil {
			return nil, err
		}
		bv, err := cpu.values(b)
		if err != nil {
			return nil, err
		}

		var out any
		switch x := av.(type) {
		case []float32:
			out = binaryFloat32(cpu.par, x, bv.([]float32), a.Shape(), b.Shape(), outShape, fns)
		case []float16.Float16:
			out = float32ToFloat16(binaryFloat32(cpu.par, float16ToFloat32(x), float16ToFloat32(bv.([]float16.Float16)),
				a.Shape(), b.Shape(), outShape, fns))
		case []int32:
			out = broadcastBinary(cpu.par, x, bv.([]int32), a.Shape(), b.Shape(), outShape, fns.i32)
		case []complex64:
			out = broadcastBinary(cpu.par, x, bv.([]complex64), a.Shape(), b.Shape(), outShape, fns.c64)
		default:
			return nil, unsupported(op, dtype)
		}

		id, err := cpu.put(out, outShape, dtype, 1)
		if err != nil {
			return nil, err
		}
		return single(id, outShape, dtype), nil
	}
}

func binaryFloat32(par parallel.Config, a, b []float32, aShape, bShape, outShape tensor.Shape, fns binaryFns) []float32 {
	if fns.vec == nil || !aShape.Equal(bShape) {
		return broadcastBinary(par, a, b, aShape, bShape, outShape, fns.f32)
	}
	dst := append([]float32(nil), a...)
	parallel.ForRange(len(dst), par, func(start, end int) {
		fns.vec(dst[start:end], b[start:end])
	})
	return dst
}

// unaryFns holds the per-dtype scalar functions of an elementwise unary op. A nil entry
// means the dtype is not supported.
type unaryFns struct {
	f32 func(x float32) float32
	i32 func(x int32) int32
	c64 func(x complex64) complex64
}

var (
	negFns = unaryFns{
		f32: func(x float32) float32 { return -x },
		i32: func(x int32) int32 { return -x },
		c64: func(x complex64) complex64 { return -x },
	}
	expFns = unaryFns{
		f32: math32.Exp,
		c64: func(x complex64) complex64 { return complex64(cmplx.Exp(complex128(x))) },
	}
	squareFns = unaryFns{
		f32: func(x float32) float32 { return x * x },
		i32: func(x int32) int32 { return x * x },
		c64: func(x complex64) complex64 { return x * x },
	}
)

func mapValues[T any](par parallel.Config, values []T, fn func(T) T) []T {
	out := make([]T, len(values))
	parallel.ForRange(len(values), par, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = fn(values[i])
		}
	})
	return out
}

func unaryKernel(op kernels.OpID, fns unaryFns) kernels.KernelFunc {
	return func(ctx *kernels.Context) ([]kernels.Output, error) {
		cpu, err := cpuFrom(ctx)
		if err != nil {
			return nil, err
		}
		x, err := ctx.Inputs.Input(kernels.InputX)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", op)
		}
		xv, err := cpu.values(x)
		if err != nil {
			return nil, err
		}

		var out any
		switch v := xv.(type) {
		case []float32:
			if fns.f32 != nil {
				out = mapValues(cpu.par, v, fns.f32)
			}
		case []float16.Float16:
			if fns.f32 != nil {
				out = float32ToFloat16(mapValues(cpu.par, float16ToFloat32(v), fns.f32))
			}
		case []int32:
			if fns.i32 != nil {
				out = mapValues(cpu.par, v, fns.i32)
			}
		case []complex64:
			if fns.c64 != nil {
				out = mapValues(cpu.par, v, fns.c64)
			}
		}
		if out == nil {
			return nil, unsupported(op, x.DType())
		}

		id, err := cpu.put(out, x.Shape(), x.DType(), 1)
		if err != nil {
			return nil, err
		}
		return single(id, x.Shape(), x.DType()), nil
	}
}

func sumKernel(ctx *kernels.Context) ([]kernels.Output, error) {
	cpu, err := cpuFrom(ctx)
	if err != nil {
		return nil, err
	}
	specs, err := kernels.SumShape(ctx.Inputs, ctx.Attrs)
	if err != nil {
		return nil, errors.Wrap(err, "Sum")
	}
	x := ctx.Inputs[kernels.InputX]
	rawAxes, _ := ctx.Attrs.Ints(kernels.AttrAxes)
	axes, _ := kernels.NormalizeAxes(rawAxes, x.Rank())
	xv, err := cpu.values(x)
	if err != nil {
		return nil, err
	}

	var out any
	switch v := xv.(type) {
	case []float32:
		out = sumAxes(v, x.Shape(), axes)
	case []float16.Float16:
		out = float32ToFloat16(sumAxes(float16ToFloat32(v), x.Shape(), axes))
	case []int32:
		out = sumAxes(v, x.Shape(), axes)
	case []complex64:
		out = sumAxes(v, x.Shape(), axes)
	default:
		return nil, unsupported(kernels.OpSum, x.DType())
	}

	outShape := specs[0].Shape
	id, err := cpu.put(out, outShape, x.DType(), 1)
	if err != nil {
		return nil, err
	}
	return single(id, outShape, x.DType()), nil
}

func castKernel(ctx *kernels.Context) ([]kernels.Output, error) {
	cpu, err := cpuFrom(ctx)
	if err != nil {
		return nil, err
	}
	specs, err := kernels.CastShape(ctx.Inputs, ctx.Attrs)
	if err != nil {
		return nil, errors.Wrap(err, "Cast")
	}
	x, dtype := ctx.Inputs[kernels.InputX], specs[0].DType
	xv, err := cpu.values(x)
	if err != nil {
		return nil, err
	}
	out, err := CastValues(xv, dtype)
	if err != nil {
		return nil, errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: Cast %s to %s: %v", Name, x.DType(), dtype, err)
	}
	id, err := cpu.put(out, x.Shape(), dtype, 1)
	if err != nil {
		return nil, err
	}
	return single(id, x.Shape(), dtype), nil
}

func fillKernel(ctx *kernels.Context) ([]kernels.Output, error) {
	cpu, err := cpuFrom(ctx)
	if err != nil {
		return nil, err
	}
	specs, err := kernels.FillShape(ctx.Inputs, ctx.Attrs)
	if err != nil {
		return nil, errors.Wrap(err, "Fill")
	}
	shape, dtype := specs[0].Shape, specs[0].DType
	values, err := tensor.FillValues(dtype, shape.NumElements(), ctx.Attrs[kernels.AttrValue])
	if err != nil {
		return nil, errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: %v", Name, err)
	}
	id, err := cpu.put(values, shape, dtype, 1)
	if err != nil {
		return nil, err
	}
	return single(id, shape, dtype), nil
}

// likeKernel fills a tensor shaped like input "x" with value.
func likeKernel(value int) kernels.KernelFunc {
	return func(ctx *kernels.Context) ([]kernels.Output, error) {
		cpu, err := cpuFrom(ctx)
		if err != nil {
			return nil, err
		}
		x, err := ctx.Inputs.Input(kernels.InputX)
		if err != nil {
			return nil, err
		}
		n := x.Size()
		var values any
		if value == 0 {
			values = tensor.MakeValues(x.DType(), n)
		} else if values, err = tensor.FillValues(x.DType(), n, value); err != nil {
			return nil, errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: %v", Name, err)
		}
		id, err := cpu.put(values, x.Shape(), x.DType(), 1)
		if err != nil {
			return nil, err
		}
		return single(id, x.Shape(), x.DType()), nil
	}
}
