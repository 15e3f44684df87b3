//go:build !windows

package webgpu

import (
	"context"
	"runtime"

	"github.com/pkg/errors"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/kernels"
)

// Factory returns a backend.Factory that always fails: the WebGPU bindings are only
// built on Windows.
func Factory(Options) backend.Factory {
	return func(context.Context) (backend.Backend, error) {
		return nil, errors.Wrapf(backend.ErrBackendUnavailable, "backend %q is not supported on %s", Name, runtime.GOOS)
	}
}

// RegisterKernels registers nothing: the backend never initializes on this platform.
func RegisterKernels(*kernels.Registry, kernels.BackendID) error {
	return nil
}
