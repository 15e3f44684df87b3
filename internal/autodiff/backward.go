package autodiff

import (
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// Backprop walks nodes (already filtered) in reverse and accumulates the gradient of
// every input into grads, keyed by tensor ID. grads must hold the seed gradient of the
// output on entry.
//
// Outputs without a gradient yet get zeros. When a tensor feeds several nodes, the
// contributions are added. New tensors are created through r, so they are tracked by
// the caller's scope.
func Backprop(r kernels.Runner, nodes []*Node, grads map[int64]*tensor.Tensor) error {
	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]

		dys := make([]*tensor.Tensor, len(node.Outputs))
		hasGrad := false
		for j, out := range node.Outputs {
			if dy, found := grads[out.ID()]; found {
				dys[j] = dy
				hasGrad = true
			}
		}
		if !hasGrad {
			continue
		}
		for j, out := range node.Outputs {
			if dys[j] != nil {
				continue
			}
			zeros, err := zerosLike(r, out.Shape(), out.DType())
			if err != nil {
				return errors.Wrapf(err, "zero gradient for output %d of %s", j, node.Op)
			}
			dys[j] = zeros
		}

		if node.Rule == nil {
			return &GradientNotFoundError{Op: node.Op}
		}
		inputGrads, err := node.Rule.Backward(node.GradContext(r), dys)
		if err != nil {
			return errors.WithMessagef(err, "backward of %s", node.Op)
		}

		names := make([]string, 0, len(node.Inputs))
		for name := range node.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			input := node.Inputs[name]
			dx, found := inputGrads[name]
			if !found || dx == nil {
				return errors.Errorf("gradient of %s returned no gradient for input %q", node.Op, name)
			}
			if !dx.Shape().Equal(input.Shape()) {
				return &ShapeMismatchError{Op: node.Op, Input: name, Want: input.Shape(), Got: dx.Shape()}
			}

			prev, found := grads[input.ID()]
			if !found {
				grads[input.ID()] = dx
				continue
			}
			sum, err := r.RunKernel(kernels.OpAdd, kernels.Inputs{kernels.InputA: prev, kernels.InputB: dx}, nil)
			if err != nil {
				return errors.WithMessagef(err, "accumulating gradient of %s input %q", node.Op, name)
			}
			grads[input.ID()] = sum[0]
		}
		klog.V(2).Infof("backprop: node %d (%s) done", node.ID, node.Op)
	}
	return nil
}

func zerosLike(r kernels.Runner, shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	outs, err := r.RunKernel(kernels.OpFill, nil, kernels.Attrs{
		kernels.AttrShape: shape,
		kernels.AttrDType: dtype,
		kernels.AttrValue: 0,
	})
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}
