// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend of the Born engine.
//
// Float32 tensors live in device buffers and the elementwise and reduction kernels run
// as WGSL compute shaders. Results stay on the device until read, so reads go through
// Engine.Read. The backend is built on Windows only; elsewhere its factory fails with
// engine.ErrBackendUnavailable and the engine falls back to the CPU.
//
// Example:
//
//	backends := engine.NewBackendRegistry()
//	_ = backends.Register(webgpu.Name, webgpu.Factory(webgpu.Options{BatchSize: 16}), webgpu.Priority)
//	_ = webgpu.RegisterKernels(registry)
package webgpu

import (
	"github.com/born-ml/engine/internal/backend"
	internalwebgpu "github.com/born-ml/engine/internal/backend/webgpu"
	"github.com/born-ml/engine/internal/kernels"
)

// Options configure a WebGPU backend.
type Options = internalwebgpu.Options

const (
	// Name is the name the WebGPU backend registers under.
	Name = internalwebgpu.Name

	// Priority is above the CPU backend's.
	Priority = internalwebgpu.Priority
)

// OptionsFromEnv reads BORN_WEBGPU_BATCH.
func OptionsFromEnv() Options {
	return internalwebgpu.OptionsFromEnv()
}

// Factory returns a factory creating WebGPU backends with opts.
func Factory(opts Options) backend.Factory {
	return internalwebgpu.Factory(opts)
}

// RegisterKernels registers every WebGPU kernel in r under Name. It registers nothing
// where the backend is not built.
func RegisterKernels(r *kernels.Registry) error {
	return internalwebgpu.RegisterKernels(r, Name)
}
