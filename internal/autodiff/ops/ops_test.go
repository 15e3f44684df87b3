package ops_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/engine/internal/autodiff/ops"
	"github.com/born-ml/engine/internal/backend"
	"github.com/born-ml/engine/internal/backend/cpu"
	"github.com/born-ml/engine/internal/engine"
	"github.com/born-ml/engine/internal/kernels"
	"github.com/born-ml/engine/internal/tensor"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg := kernels.NewRegistry()
	require.NoError(t, cpu.RegisterKernels(reg, cpu.Name))
	require.NoError(t, ops.Register(reg))
	backends := backend.NewRegistry()
	require.NoError(t, backends.Register(cpu.Name, cpu.Factory(cpu.Options{}), cpu.Priority))
	e := engine.New(engine.Config{Backends: backends, Kernels: reg, Debug: true})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func fromValues(t *testing.T, e *engine.Engine, values []float32, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	x, err := e.FromValues(values, shape)
	require.NoError(t, err)
	return x
}

func read(t *testing.T, e *engine.Engine, x *tensor.Tensor) []float32 {
	t.Helper()
	values, err := engine.ReadSlice[float32](context.Background(), e, x)
	require.NoError(t, err)
	return values
}

func TestReduceBroadcast(t *testing.T) {
	tests := []struct {
		name      string
		grad      tensor.Shape
		target    tensor.Shape
		want      []float32
		wantShape tensor.Shape
	}{
		{"same shape", tensor.Shape{2, 3}, tensor.Shape{2, 3}, []float32{1, 1, 1, 1, 1, 1}, tensor.Shape{2, 3}},
		{"leading axis", tensor.Shape{3, 4}, tensor.Shape{4}, []float32{3, 3, 3, 3}, tensor.Shape{4}},
		{"inner size-1 axis", tensor.Shape{3, 4}, tensor.Shape{3, 1}, []float32{4, 4, 4}, tensor.Shape{3, 1}},
		{"to scalar", tensor.Shape{2, 3}, tensor.Shape{}, []float32{6}, tensor.Shape{}},
		{"both", tensor.Shape{2, 3, 4}, tensor.Shape{3, 1}, []float32{8, 8, 8}, tensor.Shape{3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			ones, err := ops.Fill(e, tt.grad, tensor.Float32, 1)
			require.NoError(t, err)

			reduced, err := ops.ReduceBroadcast(e, ones, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.wantShape, reduced.Shape())
			assert.Equal(t, tt.want, read(t, e, reduced))
		})
	}
}

func TestReduceBroadcast_SameShapeReturnsInput(t *testing.T) {
	e := newEngine(t)
	g := fromValues(t, e, []float32{1, 2}, tensor.Shape{2})
	reduced, err := ops.ReduceBroadcast(e, g, tensor.Shape{2})
	require.NoError(t, err)
	assert.Same(t, g, reduced)
}

// numericGrads estimates d(sum(f(xs)))/dxs by central differences.
func numericGrads(t *testing.T, e *engine.Engine, f func(xs []*tensor.Tensor) (*tensor.Tensor, error), values [][]float32, shapes []tensor.Shape) [][]float32 {
	t.Helper()
	const eps = 1e-2
	loss := func(vals [][]float32) float32 {
		out, err := engine.Tidy(e, "numeric", func() (float32, error) {
			xs := make([]*tensor.Tensor, len(vals))
			for i := range vals {
				xs[i] = fromValues(t, e, vals[i], shapes[i])
			}
			y, err := f(xs)
			if err != nil {
				return 0, err
			}
			sum, err := ops.Sum(e, y, nil, false)
			if err != nil {
				return 0, err
			}
			return read(t, e, sum)[0], nil
		})
		require.NoError(t, err)
		return out
	}

	grads := make([][]float32, len(values))
	for i := range values {
		grads[i] = make([]float32, len(values[i]))
		for j := range values[i] {
			plus, minus := cloneAll(values), cloneAll(values)
			plus[i][j] += eps
			minus[i][j] -= eps
			grads[i][j] = (loss(plus) - loss(minus)) / (2 * eps)
		}
	}
	return grads
}

func cloneAll(values [][]float32) [][]float32 {
	out := make([][]float32, len(values))
	for i := range values {
		out[i] = append([]float32(nil), values[i]...)
	}
	return out
}

func TestGradients_MatchNumeric(t *testing.T) {
	tests := []struct {
		name   string
		f      func(e *engine.Engine) func(xs []*tensor.Tensor) (*tensor.Tensor, error)
		values [][]float32
		shapes []tensor.Shape
	}{
		{
			name: "add broadcast",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) { return ops.Add(e, xs[0], xs[1]) }
			},
			values: [][]float32{{1, 2, 3, 4, 5, 6}, {1, 2, 3}},
			shapes: []tensor.Shape{{2, 3}, {3}},
		},
		{
			name: "sub",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) { return ops.Sub(e, xs[0], xs[1]) }
			},
			values: [][]float32{{1, 2}, {3, 4}},
			shapes: []tensor.Shape{{2}, {2}},
		},
		{
			name: "mul broadcast column",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) { return ops.Mul(e, xs[0], xs[1]) }
			},
			values: [][]float32{{1, -2, 3, 0.5, 2, -1}, {2, 3}},
			shapes: []tensor.Shape{{2, 3}, {2, 1}},
		},
		{
			name: "div",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) { return ops.Div(e, xs[0], xs[1]) }
			},
			values: [][]float32{{1, 2, 3}, {2, 4, 5}},
			shapes: []tensor.Shape{{3}, {3}},
		},
		{
			name: "exp of neg",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) {
					n, err := ops.Neg(e, xs[0])
					if err != nil {
						return nil, err
					}
					return ops.Exp(e, n)
				}
			},
			values: [][]float32{{0, 0.5, 1}},
			shapes: []tensor.Shape{{3}},
		},
		{
			name: "square of sum over axis",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) {
					s, err := ops.Sum(e, xs[0], []int{1}, false)
					if err != nil {
						return nil, err
					}
					return ops.Square(e, s)
				}
			},
			values: [][]float32{{1, 2, 3, -1, 0, 1}},
			shapes: []tensor.Shape{{2, 3}},
		},
		{
			name: "reshape then mul",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) {
					r, err := ops.Reshape(e, xs[0], tensor.Shape{3, 2})
					if err != nil {
						return nil, err
					}
					return ops.Mul(e, r, r)
				}
			},
			values: [][]float32{{1, 2, 3, 4, 5, 6}},
			shapes: []tensor.Shape{{2, 3}},
		},
		{
			name: "cast round trip",
			f: func(e *engine.Engine) func([]*tensor.Tensor) (*tensor.Tensor, error) {
				return func(xs []*tensor.Tensor) (*tensor.Tensor, error) {
					c, err := ops.Cast(e, xs[0], tensor.Complex64)
					if err != nil {
						return nil, err
					}
					back, err := ops.Cast(e, c, tensor.Float32)
					if err != nil {
						return nil, err
					}
					return ops.Square(e, back)
				}
			},
			values: [][]float32{{1, -2}},
			shapes: []tensor.Shape{{2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			f := tt.f(e)
			xs := make([]*tensor.Tensor, len(tt.values))
			for i := range tt.values {
				xs[i] = fromValues(t, e, tt.values[i], tt.shapes[i])
			}

			grads, err := e.Grads(func(xs []*tensor.Tensor) (*tensor.Tensor, error) {
				y, err := f(xs)
				if err != nil {
					return nil, err
				}
				return ops.Sum(e, y, nil, false)
			})(xs, nil)
			require.NoError(t, err)

			want := numericGrads(t, e, f, tt.values, tt.shapes)
			for i := range xs {
				require.NotNil(t, grads[i], "gradient %d", i)
				assert.Equal(t, tt.shapes[i], grads[i].Shape())
				assert.InDeltaSlice(t, want[i], read(t, e, grads[i]), 5e-2, "gradient %d", i)
			}
		})
	}
}

func TestConstantOps_HaveZeroGradient(t *testing.T) {
	e := newEngine(t)
	x := fromValues(t, e, []float32{1, 2}, tensor.Shape{2})

	grad, err := e.Grad(func(x *tensor.Tensor) (*tensor.Tensor, error) {
		ones, err := ops.OnesLike(e, x)
		if err != nil {
			return nil, err
		}
		zeros, err := ops.ZerosLike(e, x)
		if err != nil {
			return nil, err
		}
		return ops.Add(e, ones, zeros)
	})(x, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, read(t, e, grad))
}

func TestGradConfigs_CoverEveryOp(t *testing.T) {
	reg := kernels.NewRegistry()
	require.NoError(t, ops.Register(reg))
	for op := kernels.OpIdentity; op < kernels.OpCustom; op++ {
		cfg, found := reg.Gradient(op)
		require.True(t, found, "no gradient for %s", op)
		assert.NotNil(t, cfg.Rule)
	}
	assert.Error(t, ops.Register(reg), "registering twice fails")
}
