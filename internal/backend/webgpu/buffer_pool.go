//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

const (
	// maxPooled is the number of released buffers kept per size class.
	maxPooled = 64

	// storageUsage is the usage of every tensor buffer.
	storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
)

// bufferPool recycles device buffers by power-of-two size class, so repeated kernels
// with the same output sizes stop allocating.
type bufferPool struct {
	device *wgpu.Device

	mu      sync.Mutex
	free    map[uint64][]*wgpu.Buffer
	hits    uint64
	misses  uint64
	pooled  int
	devSize uint64 // bytes of device buffers alive, pooled or in use
}

func newBufferPool(device *wgpu.Device) *bufferPool {
	return &bufferPool{device: device, free: make(map[uint64][]*wgpu.Buffer)}
}

// acquire returns a storage buffer of at least size bytes and its capacity.
func (p *bufferPool) acquire(size uint64) (*wgpu.Buffer, uint64) {
	class := sizeClass(size)

	p.mu.Lock()
	defer p.mu.Unlock()
	if free := p.free[class]; len(free) > 0 {
		buf := free[len(free)-1]
		p.free[class] = free[:len(free)-1]
		p.pooled--
		p.hits++
		return buf, class
	}
	p.misses++
	p.devSize += class
	buf := p.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: class})
	return buf, class
}

// release returns a buffer acquired with capacity class. Buffers beyond the per-class
// limit are destroyed.
func (p *bufferPool) release(buf *wgpu.Buffer, class uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[class]) >= maxPooled {
		p.devSize -= class
		buf.Release()
		return
	}
	p.free[class] = append(p.free[class], buf)
	p.pooled++
}

// clear destroys every pooled buffer.
func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for class, free := range p.free {
		for _, buf := range free {
			buf.Release()
			p.devSize -= class
		}
	}
	p.free = make(map[uint64][]*wgpu.Buffer)
	p.pooled = 0
}

type poolStats struct {
	hits, misses uint64
	pooled       int
	deviceBytes  uint64
}

func (p *bufferPool) stats() poolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return poolStats{hits: p.hits, misses: p.misses, pooled: p.pooled, deviceBytes: p.devSize}
}
