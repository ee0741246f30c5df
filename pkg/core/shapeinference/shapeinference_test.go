package shapeinference

import (
	"math"
	"testing"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	MS = shapes.Make

	F32 = dtypes.Float32
	F64 = dtypes.Float64
	I32 = dtypes.Int32
	I64 = dtypes.Int64
	S   = dtypes.String

	Ragged = shapes.RaggedDim
)

// must1 panics if there is an error.
func must1[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

// requireShapeError checks err is a *Error for the given op.
func requireShapeError(t *testing.T, op optypes.OpType, err error) {
	t.Helper()
	require.Error(t, err)
	var shapeErr *Error
	require.True(t, errors.As(err, &shapeErr), "expected *shapeinference.Error, got %T: %v", err, err)
	require.Equal(t, op, shapeErr.Op)
}

func TestInvertOp(t *testing.T) {
	require.True(t, MS(F64, 2, 2).Equal(must1(InvertOp(MS(F64, 2, 2)))))
	require.True(t, MS(F32, 0, 0).Equal(must1(InvertOp(MS(F32, 0, 0)))))

	_, err := InvertOp(MS(F64, 2, 3))
	requireShapeError(t, optypes.Invert, err)
	assert.Contains(t, err.Error(), "not square")

	_, err = InvertOp(MS(F64, 2, 2, 2))
	requireShapeError(t, optypes.Invert, err)
	_, err = InvertOp(MS(I32, 2, 2))
	requireShapeError(t, optypes.Invert, err)
	_, err = InvertOp(MS(F64, Ragged, 2))
	requireShapeError(t, optypes.Invert, err)
	_, err = InvertOp(shapes.Invalid())
	requireShapeError(t, optypes.Invert, err)
}

func TestTransposeOp(t *testing.T) {
	operand := MS(F32, 2, 3, 4, 5)
	require.True(t, MS(F32, 4, 2, 3, 5).Equal(must1(TransposeOp(operand, []int{2, 0, 1, 3}))))
	require.True(t, MS(F32, 5, 4, 3, 2).Equal(must1(TransposeOp(operand, ReversedAxes(4)))))

	// Scalar transposes to itself.
	require.True(t, MS(F64).Equal(must1(TransposeOp(MS(F64), ReversedAxes(0)))))
	require.Empty(t, ReversedAxes(0))

	// Ragged axes move with the permutation.
	require.True(t, MS(S, 3, Ragged).Equal(must1(TransposeOp(MS(S, Ragged, 3), []int{1, 0}))))

	_, err := TransposeOp(operand, []int{0, 1})
	requireShapeError(t, optypes.Transpose, err)
	_, err = TransposeOp(operand, []int{0, 1, 1, 2})
	requireShapeError(t, optypes.Transpose, err)
	_, err = TransposeOp(operand, []int{0, 1, 2, 4})
	requireShapeError(t, optypes.Transpose, err)
}

func TestMultiplyOp(t *testing.T) {
	require.True(t, MS(I32, 2, 2).Equal(must1(MultiplyOp(MS(I32, 2, 2), MS(I32, 2, 2)))))
	require.True(t, MS(F32, 3, 4).Equal(must1(MultiplyOp(MS(F32, 3, 1), MS(F32, 1, 4)))))
	require.True(t, MS(F64, 2, 3).Equal(must1(MultiplyOp(MS(F64), MS(F64, 2, 3)))))
	require.True(t, MS(F64, 5, 2, 3).Equal(must1(MultiplyOp(MS(F64, 5, 1, 3), MS(F64, 2, 1)))))
	require.True(t, MS(I64, 0, 3).Equal(must1(MultiplyOp(MS(I64, 0, 1), MS(I64, 3)))))

	_, err := MultiplyOp(MS(F32, 3, 2), MS(F32, 4, 2))
	requireShapeError(t, optypes.Multiply, err)
	assert.Contains(t, err.Error(), "broadcast")

	_, err = MultiplyOp(MS(F32, 2), MS(F64, 2))
	requireShapeError(t, optypes.Multiply, err)
	_, err = MultiplyOp(MS(S, 2), MS(S, 2))
	requireShapeError(t, optypes.Multiply, err)
	_, err = MultiplyOp(MS(F32, Ragged), MS(F32, 1))
	requireShapeError(t, optypes.Multiply, err)

	// Broadcasting yields more elements than fit in an int.
	_, err = MultiplyOp(MS(F32, 1<<32, 1), MS(F32, 1, 1<<32))
	requireShapeError(t, optypes.Multiply, err)
}

func TestRepeatOp(t *testing.T) {
	operand := MS(F64, 3, 3)
	repeats := MS(I64, 3)
	require.True(t, MS(F64, 6, 3).Equal(must1(RepeatOp(operand, repeats, 0, []int{1, 2, 3}))))
	require.True(t, MS(F64, 3, 0).Equal(must1(RepeatOp(operand, repeats, 1, []int{0, 0, 0}))))
	require.True(t, MS(F64, 3, 4).Equal(must1(RepeatOp(operand, repeats, -1, []int{2, 1, 1}))))

	// Unknown counts yield a ragged axis.
	require.True(t, MS(F64, Ragged, 3).Equal(must1(RepeatOp(operand, repeats, 0, nil))))

	// Ragged repeats length is fixed by the counts.
	require.True(t, MS(F64, 3, 5).Equal(must1(RepeatOp(operand, MS(I32, Ragged), 1, []int{1, 1, 3}))))

	// Wrong number of counts.
	_, err := RepeatOp(operand, MS(I64, 2), 0, []int{1, 2})
	requireShapeError(t, optypes.Repeat, err)
	_, err = RepeatOp(operand, repeats, 0, []int{1, 2})
	requireShapeError(t, optypes.Repeat, err)

	_, err = RepeatOp(operand, repeats, 0, []int{1, -2, 3})
	requireShapeError(t, optypes.Repeat, err)
	_, err = RepeatOp(operand, repeats, 2, nil)
	requireShapeError(t, optypes.Repeat, err)
	_, err = RepeatOp(operand, MS(F32, 3), 0, nil)
	requireShapeError(t, optypes.Repeat, err)
	_, err = RepeatOp(operand, MS(I64, 3, 1), 0, nil)
	requireShapeError(t, optypes.Repeat, err)
	_, err = RepeatOp(MS(F64), MS(I64, 1), 0, nil)
	requireShapeError(t, optypes.Repeat, err)

	// Counts whose sum overflows int, including a sum that would wrap to exactly RaggedDim.
	_, err = RepeatOp(MS(F32, 2), MS(I64, 2), 0, []int{math.MaxInt64, 2})
	requireShapeError(t, optypes.Repeat, err)
	_, err = RepeatOp(MS(F32, 3), MS(I64, 3), 0, []int{math.MaxInt64, math.MaxInt64, 1})
	requireShapeError(t, optypes.Repeat, err)
	// The sum fits, but not the number of elements of the output.
	_, err = RepeatOp(MS(F32, 2, 4), MS(I64, 2), 0, []int{1 << 61, 1})
	requireShapeError(t, optypes.Repeat, err)
}

func TestReshapeOp(t *testing.T) {
	require.True(t, MS(F32, 2, 8).Equal(must1(ReshapeOp(MS(F32, 4, 4), []int{2, 8}))))
	require.True(t, MS(F32).Equal(must1(ReshapeOp(MS(F32, 1, 1), nil))))

	_, err := ReshapeOp(MS(F32, 4, 4), []int{2, 7})
	requireShapeError(t, optypes.Reshape, err)
	_, err = ReshapeOp(MS(F32, 4, 4), []int{-1, 8})
	requireShapeError(t, optypes.Reshape, err)

	// Ragged operand: check is deferred, any target accepted.
	require.True(t, MS(S, 2, 2).Equal(must1(ReshapeOp(MS(S, Ragged), []int{2, 2}))))
	// ... and checked again with the concrete shape.
	require.True(t, MS(S, 2, 2).Equal(must1(ReshapeOp(MS(S, 4), []int{2, 2}))))
	_, err = ReshapeOp(MS(S, 3), []int{2, 2})
	requireShapeError(t, optypes.Reshape, err)

	// Target dimensions whose product wraps around to the operand size.
	_, err = ReshapeOp(MS(F32, 4), []int{1<<62 + 1, 4})
	requireShapeError(t, optypes.Reshape, err)
	_, err = ReshapeOp(MS(S, Ragged), []int{1 << 32, 1 << 32})
	requireShapeError(t, optypes.Reshape, err)
	// A zero dimension makes the product 0, whatever the others.
	require.True(t, MS(F32, 0, math.MaxInt64).Equal(must1(ReshapeOp(MS(F32, 2, 0), []int{0, math.MaxInt64}))))
}

func TestBroadcastDimensions(t *testing.T) {
	require.Equal(t, []int{4, 3}, must1(BroadcastDimensions([]int{4, 1}, []int{3})))
	require.Equal(t, []int{}, must1(BroadcastDimensions(nil, nil)))
	_, err := BroadcastDimensions([]int{2}, []int{3})
	require.Error(t, err)
}
