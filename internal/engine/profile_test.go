package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/tensor"
)

func TestProfile(t *testing.T) {
	e := newTestEngine(t)
	a := floats(t, e, []float32{1, 2, 3})
	b := floats(t, e, []float32{4, 5, 6})

	p, err := e.Profile(func() error {
		return e.Tidy("profiled", func() error {
			sum, err := ops.Add(e, a, b)
			if err != nil {
				return err
			}
			_, err = ops.Exp(e, sum)
			return err
		})
	})
	require.NoError(t, err)
	require.Len(t, p.Kernels, 2)

	add := p.Kernels[0]
	assert.Equal(t, "Add", add.Name)
	assert.Equal(t, "cpu", add.KernelBackend)
	assert.Equal(t, 12, add.BytesAdded)
	assert.Equal(t, 1, add.TensorsAdded)
	assert.Equal(t, map[string]tensor.Shape{"a": {3}, "b": {3}}, add.InputShapes)
	assert.Equal(t, []tensor.Shape{{3}}, add.OutputShapes)
	assert.Equal(t, "Exp", p.Kernels[1].Name)

	assert.Equal(t, 0, p.NewBytes, "the scope disposed everything it created")
	assert.Equal(t, 0, p.NewTensors)
	assert.Equal(t, 48, p.PeakBytes)
	assert.Contains(t, p.String(), "2 kernels")

	_, err = e.Profile(func() error {
		_, err := e.Profile(func() error { return nil })
		return err
	})
	assert.Error(t, err, "profiles do not nest")
}

func TestMemoryAndTime(t *testing.T) {
	e := newTestEngine(t)
	floats(t, e, []float32{1, 2})

	m := e.Memory()
	assert.Equal(t, 1, m.NumTensors)
	assert.Equal(t, 1, m.NumDataBuffers)
	assert.Equal(t, 8, m.NumBytes)
	assert.True(t, m.Reliable)
	assert.Equal(t, 1, m.Backend.NumBuffers)
	assert.Equal(t, "1 tensors, 1 buffers, 8 B", m.String())

	ran := false
	timing, err := e.Time(func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.GreaterOrEqual(t, timing.WallTime.Nanoseconds(), int64(0))
}
