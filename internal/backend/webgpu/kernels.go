//go:build windows

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// RegisterKernels registers the WebGPU kernels in r under backendID. Shader kernels
// compile their pipeline when the backend becomes active and release it on teardown.
func RegisterKernels(r *kernels.Registry, backendID kernels.BackendID) error {
	cfgs := []kernels.KernelConfig{
		{Op: kernels.OpIdentity, Kernel: kernels.IdentityKernel, OutputShape: kernels.UnaryShape},
		{Op: kernels.OpReshape, Kernel: kernels.ReshapeKernel, OutputShape: kernels.ReshapeShape},
		shaderConfig(kernels.OpAdd, "add", binaryKernel, kernels.BinaryShape),
		shaderConfig(kernels.OpSub, "sub", binaryKernel, kernels.BinaryShape),
		shaderConfig(kernels.OpMul, "mul", binaryKernel, kernels.BinaryShape),
		shaderConfig(kernels.OpDiv, "div", binaryKernel, kernels.BinaryShape),
		shaderConfig(kernels.OpNeg, "neg", unaryKernel, kernels.UnaryShape),
		shaderConfig(kernels.OpExp, "exp", unaryKernel, kernels.UnaryShape),
		shaderConfig(kernels.OpSquare, "square", unaryKernel, kernels.UnaryShape),
		shaderConfig(kernels.OpSum, "sum", func(kernels.OpID, string) kernels.KernelFunc { return sumKernel }, kernels.SumShape),
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

func shaderConfig(op kernels.OpID, pipeline string, kernel func(op kernels.OpID, name string) kernels.KernelFunc, shape kernels.ShapeFunc) kernels.KernelConfig {
	return kernels.KernelConfig{
		Op:     op,
		Kernel: kernel(op, pipeline),
		Setup: func(b backend.Backend) error {
			gpu, err := asWebGPU(b)
			if err != nil {
				return err
			}
			_, err = gpu.pipeline(pipeline)
			return err
		},
		Teardown: func(b backend.Backend) error {
			gpu, err := asWebGPU(b)
			if err != nil {
				return err
			}
			gpu.releasePipeline(pipeline)
			return nil
		},
		OutputShape: shape,
	}
}

func asWebGPU(b backend.Backend) (*Backend, error) {
	gpu, ok := b.(*Backend)
	if !ok {
		return nil, errors.Errorf("webgpu kernel invoked on backend %T", b)
	}
	return gpu, nil
}

// pipeline returns the compute pipeline called name, compiling it on first use.
func (b *Backend) pipeline(name string) (*wgpu.ComputePipeline, error) {
	b.pipelinesMu.Lock()
	defer b.pipelinesMu.Unlock()
	if p, found := b.pipelines[name]; found {
		return p, nil
	}
	code, found := shaderSources[name]
	if !found {
		return nil, errors.Errorf("backend %q: no shader %q", Name, name)
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	p := b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.shaders[name] = shader
	b.pipelines[name] = p
	return p, nil
}

func (b *Backend) releasePipeline(name string) {
	b.pipelinesMu.Lock()
	defer b.pipelinesMu.Unlock()
	if p, found := b.pipelines[name]; found {
		p.Release()
		delete(b.pipelines, name)
	}
	if s, found := b.shaders[name]; found {
		s.Release()
		delete(b.shaders, name)
	}
}

func (b *Backend) releasePipelines() {
	for name := range shaderSources {
		b.releasePipeline(name)
	}
}

func single(id tensor.DataID, shape tensor.Shape, dtype tensor.DataType) []kernels.Output {
	return []kernels.Output{{DataID: id, Shape: shape, DType: dtype}}
}

func unsupported(op kernels.OpID, dtype tensor.DataType) error {
	return errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: %s does not support dtype %s", Name, op, dtype)
}

// deviceRecord returns the record of a float32 input, which lives on the device.
func (b *Backend) deviceRecord(op kernels.OpID, t *tensor.Tensor) (*buffer, error) {
	if t.DType() != tensor.Float32 {
		return nil, unsupported(op, t.DType())
	}
	rec, err := b.record(t.DataID())
	if err != nil {
		return nil, err
	}
	if rec.gpu == nil {
		return nil, errors.Errorf("backend %q: %s input %s has no device buffer", Name, op, t)
	}
	return rec, nil
}

func binaryKernel(op kernels.OpID, name string) kernels.KernelFunc {
	return func(ctx *kernels.Context) ([]kernels.Output, error) {
		b, err := asWebGPU(ctx.Backend)
		if err != nil {
			return nil, err
		}
		specs, err := kernels.BinaryShape(ctx.Inputs, ctx.Attrs)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", op)
		}
		x, y := ctx.Inputs[kernels.InputA], ctx.Inputs[kernels.InputB]
		xr, err := b.deviceRecord(op, x)
		if err != nil {
			return nil, err
		}
		yr, err := b.deviceRecord(op, y)
		if err != nil {
			return nil, err
		}
		outShape := specs[0].Shape
		words, err := binaryParams(x.Shape(), y.Shape(), outShape)
		if err != nil {
			return nil, err
		}
		p, err := b.pipeline(name)
		if err != nil {
			return nil, err
		}
		id, out, err := b.alloc(outShape)
		if err != nil {
			return nil, err
		}
		params, paramsSize := b.paramsBuffer(words)
		b.dispatch(name, p, []wgpu.BindGroupEntry{
			wgpu.BufferBindingEntry(0, xr.gpu, 0, xr.size),
			wgpu.BufferBindingEntry(1, yr.gpu, 0, yr.size),
			wgpu.BufferBindingEntry(2, out.gpu, 0, out.size),
			wgpu.BufferBindingEntry(3, params, 0, paramsSize),
		}, params, outShape.NumElements())
		return single(id, outShape, tensor.Float32), nil
	}
}

func unaryKernel(op kernels.OpID, name string) kernels.KernelFunc {
	return func(ctx *kernels.Context) ([]kernels.Output, error) {
		b, err := asWebGPU(ctx.Backend)
		if err != nil {
			return nil, err
		}
		x, err := ctx.Inputs.Input(kernels.InputX)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", op)
		}
		xr, err := b.deviceRecord(op, x)
		if err != nil {
			return nil, err
		}
		p, err := b.pipeline(name)
		if err != nil {
			return nil, err
		}
		id, out, err := b.alloc(x.Shape())
		if err != nil {
			return nil, err
		}
		params, paramsSize := b.paramsBuffer(unaryParams(x.Size()))
		b.dispatch(name, p, []wgpu.BindGroupEntry{
			wgpu.BufferBindingEntry(0, xr.gpu, 0, xr.size),
			wgpu.BufferBindingEntry(1, out.gpu, 0, out.size),
			wgpu.BufferBindingEntry(2, params, 0, paramsSize),
		}, params, x.Size())
		return single(id, x.Shape().Clone(), tensor.Float32), nil
	}
}

func sumKernel(ctx *kernels.Context) ([]kernels.Output, error) {
	b, err := asWebGPU(ctx.Backend)
	if err != nil {
		return nil, err
	}
	specs, err := kernels.SumShape(ctx.Inputs, ctx.Attrs)
	if err != nil {
		return nil, errors.Wrap(err, "Sum")
	}
	x := ctx.Inputs[kernels.InputX]
	outShape := specs[0].Shape
	if x.DType() != tensor.Float32 {
		return nil, unsupported(kernels.OpSum, x.DType())
	}
	if x.Size() == 0 {
		// Sums over empty axes are zeros.
		id, err := b.put(make([]float32, outShape.NumElements()), outShape, tensor.Float32, 1)
		if err != nil {
			return nil, err
		}
		return single(id, outShape, tensor.Float32), nil
	}

	rawAxes, _ := ctx.Attrs.Ints(kernels.AttrAxes)
	axes, _ := kernels.NormalizeAxes(rawAxes, x.Rank())
	words, err := sumParams(x.Shape(), axes)
	if err != nil {
		return nil, err
	}
	xr, err := b.deviceRecord(kernels.OpSum, x)
	if err != nil {
		return nil, err
	}
	p, err := b.pipeline("sum")
	if err != nil {
		return nil, err
	}
	id, out, err := b.alloc(outShape)
	if err != nil {
		return nil, err
	}
	params, paramsSize := b.paramsBuffer(words)
	b.dispatch("sum", p, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, xr.gpu, 0, xr.size),
		wgpu.BufferBindingEntry(1, out.gpu, 0, out.size),
		wgpu.BufferBindingEntry(2, params, 0, paramsSize),
	}, params, outShape.NumElements())
	return single(id, outShape, tensor.Float32), nil
}

// castKernel converts on the host, reading device inputs back first.
func castKernel(ctx *kernels.Context) ([]kernels.Output, error) {
	b, err := asWebGPU(ctx.Backend)
	if err != nil {
		return nil, err
	}
	specs, err := kernels.CastShape(ctx.Inputs, ctx.Attrs)
	if err != nil {
		return nil, errors.Wrap(err, "Cast")
	}
	x, dtype := ctx.Inputs[kernels.InputX], specs[0].DType
	rec, err := b.record(x.DataID())
	if err != nil {
		return nil, err
	}
	values, err := b.materialize(rec)
	if err != nil {
		return nil, err
	}
	out, err := cpu.CastValues(values, dtype)
	if err != nil {
		return nil, errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: Cast %s to %s: %v", Name, x.DType(), dtype, err)
	}
	id, err := b.put(out, x.Shape(), dtype, 1)
	if err != nil {
		return nil, err
	}
	return single(id, x.Shape().Clone(), dtype), nil
}

func fillKernel(ctx *kernels.Context) ([]kernels.Output, error) {
	b, err := asWebGPU(ctx.Backend)
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
	id, err := b.put(values, shape, dtype, 1)
	if err != nil {
		return nil, err
	}
	return single(id, shape, dtype), nil
}

func likeKernel(value int) kernels.KernelFunc {
	return func(ctx *kernels.Context) ([]kernels.Output, error) {
		b, err := asWebGPU(ctx.Backend)
		if err != nil {
			return nil, err
		}
		x, err := ctx.Inputs.Input(kernels.InputX)
		if err != nil {
			return nil, err
		}
		values, err := tensor.FillValues(x.DType(), x.Size(), value)
		if err != nil {
			return nil, errors.Wrapf(backend.ErrDTypeMismatch, "backend %q: %v", Name, err)
		}
		id, err := b.put(values, x.Shape(), x.DType(), 1)
		if err != nil {
			return nil, err
		}
		return single(id, x.Shape().Clone(), x.DType()), nil
	}
}
