// Package webgpu implements the WebGPU backend: float32 buffers live on the device and
// elementwise kernels run as WGSL compute shaders, submitted in batches.
//
// Uses go-webgpu (github.com/go-webgpu/webgpu), zero-CGO bindings that are only built on
// Windows. On other platforms the backend reports backend.ErrBackendUnavailable.
package webgpu

import (
	"github.com/born-ml/engine/internal/envconfig"
)

const (
	// Name is the name the WebGPU backend registers under.
	Name = "webgpu"

	// Priority is above the CPU backend, so the engine prefers WebGPU when it initializes.
	Priority = 2

	// maxRank is the highest tensor rank the strided shaders address.
	maxRank = 6
)

// Options configure a WebGPU backend.
type Options struct {
	// BatchSize is the number of kernel dispatches recorded before the command buffer is
	// submitted. 0 or 1 submits every dispatch immediately.
	BatchSize int
}

// OptionsFromEnv reads BORN_WEBGPU_BATCH.
func OptionsFromEnv() Options {
	return Options{BatchSize: int(envconfig.WebGPUBatch())}
}
