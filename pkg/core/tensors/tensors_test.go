package tensors

import (
	"testing"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cmpShapes(t *testing.T, shape, wantShape shapes.Shape, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Failed to get shape (wanted %q) from value: %v", wantShape, err)
	}
	if !wantShape.Equal(shape) {
		t.Fatalf("Invalid shape %q, wanted %q", shape, wantShape)
	}
}

func TestShapeForValue(t *testing.T) {
	shape, err := shapeForValue([][]float32{{0, 0}, {1, 1}, {2, 2}})
	cmpShapes(t, shape, shapes.Make(dtypes.Float32, 3, 2), err)

	shape, err = shapeForValue([][][]float64{{{1}}})
	cmpShapes(t, shape, shapes.Make(dtypes.Float64, 1, 1, 1), err)

	shape, err = shapeForValue(5)
	cmpShapes(t, shape, shapes.Make(dtypes.Int64), err)

	shape, err = shapeForValue([]string{"a", "b"})
	cmpShapes(t, shape, shapes.Make(dtypes.String, 2), err)

	_, err = shapeForValue([][]int32{{1, 2}, {3}})
	require.Error(t, err)
	_, err = shapeForValue([]bool{true})
	require.Error(t, err)
	_, err = shapeForValue([]float32{})
	require.Error(t, err)
	_, err = shapeForValue(nil)
	require.Error(t, err)
}

func TestFromValue(t *testing.T) {
	tensor := FromValue([][]float64{{1, 2}, {3, 4}})
	require.True(t, tensor.Shape().Equal(shapes.Make(dtypes.Float64, 2, 2)))
	require.Equal(t, []float64{1, 2, 3, 4}, tensor.Flat())
	require.Equal(t, [][]float64{{1, 2}, {3, 4}}, tensor.Value())

	// Go int is stored as int64.
	tensor = FromValue([]int{0, 0, 0})
	require.Equal(t, dtypes.Int64, tensor.DType())
	require.Equal(t, []int64{0, 0, 0}, tensor.Flat())

	scalar := FromValue(7)
	require.True(t, scalar.IsScalar())
	require.Equal(t, int64(7), ToScalar[int64](scalar))
	require.Equal(t, int64(7), scalar.Value())

	require.Same(t, tensor, FromAnyValue(tensor))
	require.Panics(t, func() { _ = FromAnyValue([]complex64{1}) })
}

func TestFromFlatDataAndDimensions(t *testing.T) {
	data := []int32{1, 2, 3, 4, 5, 6}
	tensor := FromFlatDataAndDimensions(data, 2, 3)
	data[0] = 100
	require.Equal(t, []int32{1, 2, 3, 4, 5, 6}, CopyFlatData[int32](tensor), "data must be copied")
	require.Equal(t, [][]int32{{1, 2, 3}, {4, 5, 6}}, tensor.Value())
	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]int32{1, 2}, 3) })
	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]string{"a"}, shapes.RaggedDim) })
	require.Panics(t, func() { _ = CopyFlatData[float32](tensor) })

	zero := FromShape(shapes.Make(dtypes.Float64, 3, 0))
	require.Equal(t, 0, zero.Size())
	require.Equal(t, [][]float64{{}, {}, {}}, zero.Value())
}

func TestFromFlat(t *testing.T) {
	tensor, err := FromFlat(shapes.Make(dtypes.String, 2), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, tensor.Value())

	_, err = FromFlat(shapes.Make(dtypes.String, 3), []string{"a", "b"})
	require.Error(t, err)
	_, err = FromFlat(shapes.Make(dtypes.Float32, 2), []float64{1, 2})
	require.Error(t, err)
	_, err = FromFlat(shapes.Make(dtypes.String, shapes.RaggedDim), []string{"a"})
	require.Error(t, err)
}

func TestInts(t *testing.T) {
	ints, err := FromValue([]int32{1, 2, 3}).Ints()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, ints)
	ints, err = FromScalar(int64(-1)).Ints()
	require.NoError(t, err)
	require.Equal(t, []int{-1}, ints)
	_, err = FromScalar(1.0).Ints()
	require.Error(t, err)
}

func TestReshape(t *testing.T) {
	tensor := FromValue([]string{"a", "b", "c", "d"})
	reshaped, err := tensor.Reshape(2, 2)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, reshaped.Value())
	_, err = tensor.Reshape(3)
	require.Error(t, err)

	// Dimensions that are ragged, negative, or whose product wraps around to 4.
	for _, dims := range [][]int{{shapes.RaggedDim, 4}, {-2, -2}, {1<<62 + 1, 4}} {
		_, err = tensor.Reshape(dims...)
		require.Errorf(t, err, "Reshape(%v) should have failed", dims)
	}
}

func TestEqualAndInDelta(t *testing.T) {
	a := FromValue([][]float64{{1, 2}, {3, 4}})
	b := FromValue([][]float64{{1, 2}, {3, 4.0001}})
	require.True(t, a.Equal(a))
	require.False(t, a.Equal(b))
	require.True(t, a.InDelta(b, 1e-3))
	require.False(t, a.InDelta(b, 1e-6))
	require.False(t, a.Equal(FromValue([]float64{1, 2, 3, 4})))
	require.False(t, a.Equal(nil))
	require.True(t, FromValue([]string{"x"}).InDelta(FromValue([]string{"x"}), 0))
}

func TestParse(t *testing.T) {
	tensor, err := Parse(shapes.Make(dtypes.Int32, 2, 2), []string{"1", " 2", "3", "4"})
	require.NoError(t, err)
	require.True(t, tensor.Equal(FromValue([][]int32{{1, 2}, {3, 4}})))

	tensor, err = Parse(shapes.Make(dtypes.Float64), []string{"0.5"})
	require.NoError(t, err)
	require.Equal(t, 0.5, ToScalar[float64](tensor))

	tensor, err = Parse(shapes.Make(dtypes.String, 0), nil)
	require.NoError(t, err)
	require.Equal(t, 0, tensor.Size())

	_, err = Parse(shapes.Make(dtypes.Int32, 2), []string{"1", "x"})
	require.Error(t, err)
	_, err = Parse(shapes.Make(dtypes.Int32, 2), []string{"1"})
	require.Error(t, err)
	_, err = Parse(shapes.Make(dtypes.String, shapes.RaggedDim), []string{"a"})
	require.Error(t, err)
	_, err = Parse(shapes.Make(dtypes.Int32, 1<<32, 1<<32), []string{"1"})
	require.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "float64(3.5)", FromScalar(3.5).String())
	assert.Equal(t, "[2][2]float64{\n {1, 2},\n {3, 4}}", FromValue([][]float64{{1, 2}, {3, 4}}).String())
	assert.Equal(t, "[2]string{\"a\", \"b\"}", FromValue([]string{"a", "b"}).String())
	assert.Equal(t, "[8]int32{0, 1, 2, ..., 5, 6, 7}",
		FromValue([]int32{0, 1, 2, 3, 4, 5, 6, 7}).String())
	assert.Equal(t, "(float64)[3 0]", FromShape(shapes.Make(dtypes.Float64, 3, 0)).String())
}
