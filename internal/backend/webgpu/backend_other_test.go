//go:build !windows

package webgpu

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/kernels"
)

func TestFactory_Unavailable(t *testing.T) {
	b, err := Factory(OptionsFromEnv())(context.Background())
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, backend.ErrBackendUnavailable), "got %v", err)

	reg := backend.NewRegistry()
	require.NoError(t, reg.Register(Name, Factory(Options{}), Priority))
	_, _, err = reg.Best(context.Background(), "")
	assert.True(t, errors.Is(err, backend.ErrNoBackend), "got %v", err)
}

func TestRegisterKernels_Empty(t *testing.T) {
	r := kernels.NewRegistry()
	require.NoError(t, RegisterKernels(r, Name))
	assert.Empty(t, r.KernelsForBackend(Name))
}
