//go:build windows

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"
)

type releaser interface {
	Release()
}

// commandBatch accumulates compute passes in one command encoder, so a chain of kernels
// costs a single queue submission instead of one per kernel.
type commandBatch struct {
	encoder    *wgpu.CommandEncoder
	dispatches int

	// transient objects referenced by the recorded passes, released after submission.
	transient []releaser
}

// dispatch records one compute pass running pipeline over n invocations. params is the
// shader's parameter buffer, released with the batch.
func (b *Backend) dispatch(name string, pipeline *wgpu.ComputePipeline, entries []wgpu.BindGroupEntry, params *wgpu.Buffer, n int) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batch == nil {
		b.batch = &commandBatch{encoder: b.device.CreateCommandEncoder(nil)}
	}
	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)

	pass := b.batch.encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workgroups(n), 1, 1)
	pass.End()

	b.batch.transient = append(b.batch.transient, bindGroup, params)
	b.batch.dispatches++
	klog.V(3).Infof("webgpu: recorded %s over %d elements (%d in batch)", name, n, b.batch.dispatches)

	if b.opts.BatchSize <= 1 || b.batch.dispatches >= b.opts.BatchSize {
		b.flushLocked()
	}
}

// flush submits the recorded passes, if any.
func (b *Backend) flush() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	b.flushLocked()
}

// flushLocked submits the current batch. Must hold b.batchMu.
func (b *Backend) flushLocked() {
	batch := b.batch
	if batch == nil {
		return
	}
	b.batch = nil
	b.queue.Submit(batch.encoder.Finish(nil))
	for _, r := range batch.transient {
		r.Release()
	}
	b.submissions.Add(1)
}
