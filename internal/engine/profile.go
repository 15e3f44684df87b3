package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// MemoryInfo is the engine's view of memory: the handles and buffers it tracks, plus
// the active backend's own report.
type MemoryInfo struct {
	NumTensors     int
	NumDataBuffers int
	NumBytes       int
	Reliable       bool
	Reasons        []string
	Backend        backend.MemoryInfo
}

// String implements fmt.Stringer.
func (m MemoryInfo) String() string {
	s := fmt.Sprintf("%d tensors, %d buffers, %s", m.NumTensors, m.NumDataBuffers, humanize.IBytes(uint64(m.NumBytes))) //nolint:gosec // G115: byte counts are never negative
	if !m.Reliable {
		s += " (unreliable: " + strings.Join(m.Reasons, "; ") + ")"
	}
	return s
}

// Memory reports the live tensors and buffers. Without an initialized backend only the
// engine's counters are filled in.
func (e *Engine) Memory() MemoryInfo {
	info := MemoryInfo{
		NumTensors:     e.numTensors,
		NumDataBuffers: len(e.refs),
		NumBytes:       e.numBytes,
		Reliable:       true,
	}
	if e.backend != nil {
		info.Backend = e.backend.Memory()
		info.Reliable = info.Backend.Reliable
		info.Reasons = info.Backend.Reasons
	}
	return info
}

// Time runs f and reports the time the active backend spent on it.
func (e *Engine) Time(f func() error) (backend.TimingInfo, error) {
	_, b, err := e.activeBackend(context.Background())
	if err != nil {
		return backend.TimingInfo{}, err
	}
	return b.Time(f)
}

// KernelProfile describes one kernel executed during Profile.
type KernelProfile struct {
	Name          string
	KernelBackend string
	BytesAdded    int
	TotalBytes    int
	TensorsAdded  int
	TotalTensors  int
	InputShapes   map[string]tensor.Shape
	OutputShapes  []tensor.Shape
	KernelTime    time.Duration
}

// ProfileInfo is the result of Profile.
type ProfileInfo struct {
	NewBytes   int
	NewTensors int
	PeakBytes  int
	Kernels    []KernelProfile
}

// String implements fmt.Stringer.
func (p *ProfileInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d kernels, %s new (peak %s), %d new tensors\n", len(p.Kernels),
		humanize.IBytes(uint64(max(p.NewBytes, 0))), humanize.IBytes(uint64(p.PeakBytes)), p.NewTensors) //nolint:gosec // G115: clamped
	for _, k := range p.Kernels {
		fmt.Fprintf(&sb, "  %-10s %-8s %10s %+d tensors %v -> %v\n", k.Name, k.KernelBackend, k.KernelTime,
			k.TensorsAdded, k.InputShapes, k.OutputShapes)
	}
	return sb.String()
}

// Profile runs f and reports every kernel it executed together with the memory it
// allocated. Profiles do not nest.
func (e *Engine) Profile(f func() error) (*ProfileInfo, error) {
	if e.profiling != nil {
		return nil, errors.New("a profile is already running")
	}
	startBytes, startTensors := e.numBytes, e.numTensors
	p := &ProfileInfo{PeakBytes: e.numBytes}
	e.profiling = p
	defer func() { e.profiling = nil }()

	err := f()
	p.NewBytes = e.numBytes - startBytes
	p.NewTensors = e.numTensors - startTensors
	return p, err
}

func (e *Engine) profileKernel(op kernels.OpID, inputs kernels.Inputs, outputs []*tensor.Tensor, bytesBefore, tensorsBefore int, timing backend.TimingInfo) {
	k := KernelProfile{
		Name:          op.String(),
		BytesAdded:    e.numBytes - bytesBefore,
		TotalBytes:    e.numBytes,
		TensorsAdded:  e.numTensors - tensorsBefore,
		TotalTensors:  e.numTensors,
		InputShapes:   make(map[string]tensor.Shape, len(inputs)),
		OutputShapes:  make([]tensor.Shape, len(outputs)),
		KernelTime:    timing.KernelTime,
		KernelBackend: e.backendName,
	}
	for name, in := range inputs {
		k.InputShapes[name] = in.Shape()
	}
	for i, out := range outputs {
		k.OutputShapes[i] = out.Shape()
	}
	e.profiling.Kernels = append(e.profiling.Kernels, k)
}
