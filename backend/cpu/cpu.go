// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the CPU backend of the Born engine.
//
// The CPU backend keeps tensors as Go slices and runs the reference kernels
// synchronously, optionally spreading elementwise work over several goroutines.
// engine.Default registers it; a custom engine registers it by hand:
//
//	backends := engine.NewBackendRegistry()
//	_ = backends.Register(cpu.Name, cpu.Factory(cpu.Options{NumThreads: 4}), cpu.Priority)
//	_ = cpu.RegisterKernels(registry)
package cpu

import (
	"github.com/born-ml/engine/internal/backend"
	internalcpu "github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/kernels"
)

// Backend is the CPU backend.
type Backend = internalcpu.CPUBackend

// Options configure a CPU backend.
type Options = internalcpu.Options

const (
	// Name is the name the CPU backend registers under.
	Name = internalcpu.Name

	// Priority is the CPU backend's registration priority.
	Priority = internalcpu.Priority
)

// New creates a CPU backend.
func New(opts Options) *Backend {
	return internalcpu.New(opts)
}

// OptionsFromEnv reads BORN_CPU_MAX_BYTES and BORN_NUM_THREADS.
func OptionsFromEnv() Options {
	return internalcpu.OptionsFromEnv()
}

// Factory returns a factory creating CPU backends with opts.
func Factory(opts Options) backend.Factory {
	return internalcpu.Factory(opts)
}

// RegisterKernels registers every CPU kernel in r under Name.
func RegisterKernels(r *kernels.Registry) error {
	return internalcpu.RegisterKernels(r, Name)
}
