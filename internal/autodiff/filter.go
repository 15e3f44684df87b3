package autodiff

import "github.com/born-ml/engine/internal/tensor"

// FilterNodes returns the nodes lying on a path from any of xs to y, in execution order.
//
// A node is kept if one of its inputs depends on xs (forward reachability) and one of its
// outputs leads to y (backward reachability). The returned nodes are copies whose Inputs
// only hold the inputs depending on xs, so gradients are only computed for those.
func FilterNodes(nodes []*Node, xs []*tensor.Tensor, y *tensor.Tensor) []*Node {
	fromX := make(map[int64]bool, len(xs))
	for _, x := range xs {
		fromX[x.ID()] = true
	}
	nodeFromX := make(map[int64]bool)
	for _, n := range nodes {
		for _, in := range n.Inputs {
			if fromX[in.ID()] {
				for _, out := range n.Outputs {
					fromX[out.ID()] = true
				}
				nodeFromX[n.ID] = true
				break
			}
		}
	}

	leadsToY := map[int64]bool{y.ID(): true}
	nodeToY := make(map[int64]bool)
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		for _, out := range n.Outputs {
			if leadsToY[out.ID()] {
				for _, in := range n.Inputs {
					leadsToY[in.ID()] = true
				}
				nodeToY[n.ID] = true
				break
			}
		}
	}

	var filtered []*Node
	for _, n := range nodes {
		if !nodeFromX[n.ID] || !nodeToY[n.ID] {
			continue
		}
		pruned := *n
		pruned.Inputs = make(map[string]*tensor.Tensor, len(n.Inputs))
		for name, in := range n.Inputs {
			if fromX[in.ID()] {
				pruned.Inputs[name] = in
			}
		}
		filtered = append(filtered, &pruned)
	}
	return filtered
}
