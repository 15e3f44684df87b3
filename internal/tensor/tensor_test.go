package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
	}{
		{Float32, 4},
		{Int32, 4},
		{Bool, 1},
		{Complex64, 8},
		{String, 0},
		{Float16, 2},
	}

	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.size {
			t.Errorf("%s.Size() = %d, want %d", tt.dtype, got, tt.size)
		}
	}
}

func TestDataTypeOf(t *testing.T) {
	assert.Equal(t, Float32, DataTypeOf[float32]())
	assert.Equal(t, Int32, DataTypeOf[int32]())
	assert.Equal(t, Bool, DataTypeOf[bool]())
	assert.Equal(t, Complex64, DataTypeOf[complex64]())
	assert.Equal(t, String, DataTypeOf[string]())
	assert.Equal(t, Float16, DataTypeOf[float16.Float16]())
}

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{3}, 3},
		{Shape{2, 3, 4}, 24},
		{Shape{2, 0, 4}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.shape.NumElements(), "shape %v", tt.shape)
	}
}

func TestShapeValidate(t *testing.T) {
	require.NoError(t, Shape{0, 2}.Validate())
	require.Error(t, Shape{2, -1}.Validate())
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "[]", Shape{}.String())
	assert.Equal(t, "[2, 3]", Shape{2, 3}.String())
}

func TestInferReshape(t *testing.T) {
	got, err := Shape{2, 6}.InferReshape(Shape{3, -1})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 4}, got)

	_, err = Shape{2, 6}.InferReshape(Shape{5, -1})
	require.Error(t, err)

	_, err = Shape{2, 6}.InferReshape(Shape{-1, -1})
	require.Error(t, err)

	_, err = Shape{2, 6}.InferReshape(Shape{4, 4})
	require.Error(t, err)
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{Shape{3, 4}, Shape{4}, Shape{3, 4}, true, false},
		{Shape{}, Shape{2}, Shape{2}, true, false},
		{Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		got, broadcast, err := BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			assert.Error(t, err, "%v vs %v", tt.a, tt.b)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.broadcast, broadcast, "%v vs %v", tt.a, tt.b)
	}
}

func TestReductionAxes(t *testing.T) {
	assert.Equal(t, []int{0}, ReductionAxes(Shape{4}, Shape{3, 4}))
	assert.Equal(t, []int{1}, ReductionAxes(Shape{3, 1}, Shape{3, 4}))
	assert.Equal(t, []int{0, 1}, ReductionAxes(Shape{}, Shape{3, 4}))
	assert.Nil(t, ReductionAxes(Shape{3, 4}, Shape{3, 4}))
}

func TestFillValues(t *testing.T) {
	v, err := FillValues(Float32, 3, 1.5)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 1.5, 1.5}, v)

	v, err = FillValues(Int32, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 7}, v)

	v, err = FillValues(Float16, 1, 2.0)
	require.NoError(t, err)
	assert.Equal(t, float32(2), v.([]float16.Float16)[0].Float32())

	_, err = FillValues(String, 1, 3)
	require.Error(t, err)
}

func TestCheckValues(t *testing.T) {
	require.NoError(t, CheckValues([]float32{1, 2}, Shape{2}, Float32))
	require.Error(t, CheckValues([]float32{1, 2}, Shape{3}, Float32))
	require.Error(t, CheckValues([]int32{1, 2}, Shape{2}, Float32))
	require.Error(t, CheckValues([]float64{1, 2}, Shape{2}, Float32))
}

func TestValuesBytes(t *testing.T) {
	assert.Equal(t, 8, ValuesBytes([]float32{1, 2}))
	assert.Equal(t, 5, ValuesBytes([]string{"ab", "cde"}))
	assert.Equal(t, 16, ValuesBytes([]complex64{1, 2}))
}

func TestTensorHandle(t *testing.T) {
	ref := NewDataRef(DataID{Index: 3, Generation: 1}, "cpu", Shape{2}, Float32, 8)
	h := New(7, Shape{2}, Float32, ref)

	assert.Equal(t, int64(7), h.ID())
	assert.Equal(t, 2, h.Size())
	assert.Equal(t, "cpu", h.Backend())
	assert.Equal(t, "d3.1", h.DataID().String())
	assert.False(t, h.IsDisposed())

	assert.True(t, h.MarkDisposed())
	assert.False(t, h.MarkDisposed(), "second dispose must be a no-op")
	assert.Contains(t, h.String(), "disposed")
}

func TestDataIDZero(t *testing.T) {
	assert.True(t, DataID{}.IsZero())
	assert.False(t, DataID{Index: 0, Generation: 1}.IsZero())
}
