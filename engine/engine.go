// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine provides the public API of the Born tensor runtime.
//
// An Engine dispatches operations to kernels of the active backend, tracks every
// tensor handle it creates, frees intermediates at the end of Tidy scopes and
// records a gradient tape when gradients are requested.
//
// Most programs use the process engine returned by Default, which has the CPU and
// WebGPU backends and every built-in kernel and gradient registered:
//
//	e := engine.Default()
//	a, _ := engine.FromSlice(e, []float32{1, 2, 3})
//	y, _ := engine.Tidy(e, "square", func() (*tensor.Tensor, error) {
//	    return ops.Square(e, a)
//	})
//	values, _ := engine.ReadSlice[float32](ctx, e, y) // [1 4 9]
//
// Programs that need isolated state build their own with New.
package engine

import (
	"context"
	"sync"

	"github.com/janpfeifer/must"

	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/backend/webgpu"
	"github.com/born-ml/engine/internal/engine"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

// Engine executes operations on the registered backends.
type Engine = engine.Engine

// Config configures an Engine.
type Config = engine.Config

// Variable is a named, persistent tensor that survives Tidy scopes.
type Variable = engine.Variable

// MemoryInfo reports the tensors and bytes held by an engine.
type MemoryInfo = engine.MemoryInfo

// ProfileInfo reports the kernels run during a Profile call.
type ProfileInfo = engine.ProfileInfo

// KernelProfile describes one kernel invocation within a profile.
type KernelProfile = engine.KernelProfile

// GradFunc and CustomFunc define operations with a user-supplied gradient; see
// Engine.CustomGrad.
type (
	GradFunc   = engine.GradFunc
	CustomFunc = engine.CustomFunc
)

// Errors returned by engine operations.
type (
	MemoryLeakError         = engine.MemoryLeakError
	NestedGradientCallError = engine.NestedGradientCallError
	ShapeMismatchError      = engine.ShapeMismatchError
	GradientNotFoundError   = engine.GradientNotFoundError
	KernelNotFoundError     = kernels.KernelNotFoundError
	DuplicateKernelError    = kernels.DuplicateKernelError
)

// Sentinel errors, to be matched with errors.Is.
var (
	ErrVariableExists     = engine.ErrVariableExists
	ErrDisposedTensor     = engine.ErrDisposedTensor
	ErrNoScope            = engine.ErrNoScope
	ErrNoBackend          = backend.ErrNoBackend
	ErrDuplicateBackend   = backend.ErrDuplicateBackend
	ErrBackendUnavailable = backend.ErrBackendUnavailable
	ErrAsyncOnly          = backend.ErrAsyncOnly
	ErrOutOfMemory        = backend.ErrOutOfMemory
	ErrAlreadyDisposed    = backend.ErrAlreadyDisposed
)

// Backend is the interface every compute backend implements.
type Backend = backend.Backend

// BackendFactory creates a backend on first use.
type BackendFactory = backend.Factory

// BackendRegistry holds the backends an engine can run on, by name and priority.
type BackendRegistry = backend.Registry

// ProbeResult reports whether one backend initializes; see BackendRegistry.Probe.
type ProbeResult = backend.ProbeResult

// NewBackendRegistry creates an empty backend registry.
func NewBackendRegistry() *BackendRegistry {
	return backend.NewRegistry()
}

// New creates an Engine from cfg. Nil registries in cfg get empty ones for backends
// and the default registry for kernels.
func New(cfg Config) *Engine {
	return engine.New(cfg)
}

// DefaultConfig returns the configuration read from the BORN_* environment variables.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process engine, created on first use. It registers the CPU and
// WebGPU backends along with their kernels and the built-in gradients.
func Default() *Engine {
	defaultOnce.Do(func() {
		cfg := DefaultConfig()
		must.M(RegisterBuiltins(cfg.Kernels))
		cfg.Backends = backend.NewRegistry()
		must.M(cfg.Backends.Register(cpu.Name, cpu.Factory(cpu.OptionsFromEnv()), cpu.Priority))
		must.M(cfg.Backends.Register(webgpu.Name, webgpu.Factory(webgpu.OptionsFromEnv()), webgpu.Priority))
		defaultEngine = engine.New(cfg)
	})
	return defaultEngine
}

// RegisterBuiltins registers the CPU and WebGPU kernels and the gradient of every
// built-in op in r.
func RegisterBuiltins(r *kernels.Registry) error {
	if err := cpu.RegisterKernels(r, cpu.Name); err != nil {
		return err
	}
	if err := webgpu.RegisterKernels(r, webgpu.Name); err != nil {
		return err
	}
	return ops.Register(r)
}

// Tidy runs fn in a new scope and returns its result. Tensors created inside fn are
// disposed when it returns, except those reachable from the result or kept with
// Engine.Keep.
func Tidy[T any](e *Engine, name string, fn func() (T, error)) (T, error) {
	return engine.Tidy(e, name, fn)
}

// FromSlice creates a tensor from values. Dims default to a vector of len(values).
func FromSlice[T tensor.DType](e *Engine, values []T, dims ...int) (*tensor.Tensor, error) {
	return engine.FromSlice(e, values, dims...)
}

// Scalar creates a rank-0 tensor.
func Scalar[T tensor.DType](e *Engine, value T) (*tensor.Tensor, error) {
	return engine.Scalar(e, value)
}

// ReadSlice reads the values of t as a []T, waiting for pending work.
func ReadSlice[T tensor.DType](ctx context.Context, e *Engine, t *tensor.Tensor) ([]T, error) {
	return engine.ReadSlice[T](ctx, e, t)
}
