package engine

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/autodiff"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

var _ kernels.Runner = (*Engine)(nil)

// RunKernel executes op on the active backend and returns the new output handles,
// tracked by the open scope.
//
// Inputs living on another backend are moved to the active one first. While gradients
// are being recorded, a tape node is pushed with the inputs and outputs the op's
// gradient asks to save.
func (e *Engine) RunKernel(op kernels.OpID, inputs kernels.Inputs, attrs kernels.Attrs) ([]*tensor.Tensor, error) {
	name, b, err := e.activeBackend(context.Background())
	if err != nil {
		return nil, err
	}
	cfg, found := e.kernels.Lookup(op, kernels.BackendID(name))
	if !found {
		return nil, &kernels.KernelNotFoundError{Op: op, Backend: kernels.BackendID(name)}
	}
	for inputName, in := range inputs {
		if err := e.checkLive(in); err != nil {
			return nil, errors.WithMessagef(err, "input %q of %s", inputName, op)
		}
		if in.Backend() != name {
			if err := e.moveData(in.Ref(), name, b); err != nil {
				return nil, errors.WithMessagef(err, "input %q of %s", inputName, op)
			}
		}
	}

	before := 0
	if e.cfg.Debug {
		before = b.NumDataIDs()
	}
	bytesBefore, tensorsBefore := e.numBytes, e.numTensors

	specs, empty, err := e.emptyOutputs(cfg, inputs, attrs)
	if err != nil {
		return nil, err
	}
	var outs []kernels.Output
	var timing backend.TimingInfo
	if empty {
		outs, err = e.writeEmpty(b, specs)
	} else {
		outs, timing, err = e.invoke(cfg, b, inputs, attrs)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "kernel %s on backend %q", op, name)
	}

	handles := e.wrapOutputs(name, inputs, outs)
	if e.cfg.Debug {
		if err := e.checkLeak(op, name, b, inputs, outs, before); err != nil {
			return nil, err
		}
	}
	if e.tape.IsRecording() && e.kernelDepth == 0 {
		gradCfg, _ := e.kernels.Gradient(op)
		if err := e.record(op, inputs, handles, attrs, gradCfg); err != nil {
			return nil, err
		}
	}
	if e.profiling != nil {
		e.profileKernel(op, inputs, handles, bytesBefore, tensorsBefore, timing)
	}
	klog.V(2).Infof("dispatched %s on %q: %d outputs", op, name, len(handles))
	return handles, nil
}

// invoke runs the kernel with the kernel depth raised, so operations issued inside it
// are not recorded on the tape.
func (e *Engine) invoke(cfg kernels.KernelConfig, b backend.Backend, inputs kernels.Inputs, attrs kernels.Attrs) (outs []kernels.Output, timing backend.TimingInfo, err error) {
	e.kernelDepth++
	defer func() { e.kernelDepth-- }()

	ctx := &kernels.Context{Inputs: inputs, Attrs: attrs, Backend: b}
	if e.profiling == nil {
		outs, err = cfg.Kernel(ctx)
		return outs, timing, err
	}
	timing, err = b.Time(func() error {
		var kernelErr error
		outs, kernelErr = cfg.Kernel(ctx)
		return kernelErr
	})
	return outs, timing, err
}

// emptyOutputs reports whether every output of the kernel has zero elements, in which
// case the kernel is not invoked.
func (e *Engine) emptyOutputs(cfg kernels.KernelConfig, inputs kernels.Inputs, attrs kernels.Attrs) ([]kernels.OutputSpec, bool, error) {
	if cfg.OutputShape == nil {
		return nil, false, nil
	}
	specs, err := cfg.OutputShape(inputs, attrs)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "kernel %s on backend %q", cfg.Op, cfg.Backend)
	}
	if len(specs) == 0 {
		return nil, false, nil
	}
	for _, spec := range specs {
		if spec.Shape.NumElements() != 0 {
			return nil, false, nil
		}
	}
	return specs, true, nil
}

// writeEmpty allocates an empty record for each output spec.
func (e *Engine) writeEmpty(b backend.Backend, specs []kernels.OutputSpec) ([]kernels.Output, error) {
	outs := make([]kernels.Output, len(specs))
	for i, spec := range specs {
		id, err := b.Write(nil, spec.Shape, spec.DType)
		if err != nil {
			return nil, err
		}
		outs[i] = kernels.Output{DataID: id, Shape: spec.Shape, DType: spec.DType}
	}
	return outs, nil
}

// wrapOutputs turns kernel outputs into handles. An output reusing an input's buffer
// shares that input's DataRef.
func (e *Engine) wrapOutputs(name string, inputs kernels.Inputs, outs []kernels.Output) []*tensor.Tensor {
	handles := make([]*tensor.Tensor, len(outs))
	for i, out := range outs {
		ref := sharedRef(inputs, out.DataID, name)
		if ref == nil {
			ref = e.newRef(out.DataID, name, out.Shape, out.DType)
		}
		handles[i] = e.newHandle(out.Shape, out.DType, ref)
	}
	return handles
}

func sharedRef(inputs kernels.Inputs, id tensor.DataID, name string) *tensor.DataRef {
	for _, in := range inputs {
		if ref := in.Ref(); ref.ID == id && ref.Backend == name {
			return ref
		}
	}
	return nil
}

// checkLeak compares the backend's live buffer count with the count before the kernel
// plus the fresh buffers it returned.
func (e *Engine) checkLeak(op kernels.OpID, name string, b backend.Backend, inputs kernels.Inputs, outs []kernels.Output, before int) error {
	fresh := make(map[tensor.DataID]bool, len(outs))
	for _, out := range outs {
		if sharedRef(inputs, out.DataID, name) == nil {
			fresh[out.DataID] = true
		}
	}
	expected := before + len(fresh)
	if after := b.NumDataIDs(); after != expected {
		return &MemoryLeakError{Op: op, Backend: name, Before: before, After: after, Expected: expected}
	}
	return nil
}

// record pushes a tape node for op, saving tape-owned clones of what cfg asks for.
func (e *Engine) record(op kernels.OpID, inputs kernels.Inputs, outputs []*tensor.Tensor, attrs kernels.Attrs, cfg kernels.GradConfig) error {
	node := autodiff.NewNode(op, inputs, outputs, attrs, cfg.Rule)
	e.tape.Record(node)

	for _, name := range cfg.InputsToSave {
		in, found := inputs[name]
		if !found {
			continue
		}
		saved, err := e.clone(in, false)
		if err != nil {
			return errors.WithMessagef(err, "saving input %q of %s", name, op)
		}
		node.SavedInputs[name] = saved
	}
	if len(cfg.OutputsToSave) > 0 {
		node.SavedOutputs = make([]*tensor.Tensor, len(outputs))
		for i, save := range cfg.OutputsToSave {
			if !save || i >= len(outputs) {
				continue
			}
			saved, err := e.clone(outputs[i], false)
			if err != nil {
				return errors.WithMessagef(err, "saving output %d of %s", i, op)
			}
			node.SavedOutputs[i] = saved
		}
	}
	return nil
}
