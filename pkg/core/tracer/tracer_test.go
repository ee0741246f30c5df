package tracer

import (
	"fmt"
	"testing"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapeinference"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var MS = shapes.Make

// requireShapeError checks err is a *shapeinference.Error for op.
func requireShapeError(t *testing.T, op optypes.OpType, err error) {
	t.Helper()
	require.Error(t, err)
	var shapeErr *shapeinference.Error
	require.Truef(t, errors.As(err, &shapeErr), "expected *shapeinference.Error, got %T: %v", err, err)
	require.Equal(t, op, shapeErr.Op)
}

// outputShape specializes and returns the shape of the single output.
func outputShape(t *testing.T, op optypes.OpType, examples ...Example) shapes.Shape {
	t.Helper()
	g, err := Specialize(op, examples...)
	require.NoError(t, err)
	require.Len(t, g.Outputs(), 1)
	return g.OutputShapes()[0]
}

func TestCatalogClosure(t *testing.T) {
	for _, op := range []optypes.OpType{optypes.Invalid, optypes.Last, optypes.OpType(42), optypes.OpType(-1)} {
		_, err := Specialize(op, Spec(MS(dtypes.Float64, 2, 2)))
		var unsupported *UnsupportedOperationError
		require.Truef(t, errors.As(err, &unsupported), "op=%s: got %v", op, err)
		require.Equal(t, op, unsupported.Op)
		require.False(t, unsupported.ByName)
		require.Contains(t, err.Error(), op.String())
	}
	for _, name := range []string{"Add", "Conv2D", "", "MatMul"} {
		_, err := SpecializeByName(name, Spec(MS(dtypes.Float64, 2, 2)))
		var unsupported *UnsupportedOperationError
		require.Truef(t, errors.As(err, &unsupported), "name=%q: got %v", name, err)
		require.Equal(t, name, unsupported.Name)
		require.True(t, unsupported.ByName)
		require.Contains(t, err.Error(), fmt.Sprintf("%q", name))
	}

	// Every op of the catalog is reachable by name.
	g, err := SpecializeByName("MatrixInverse", Spec(MS(dtypes.Float64, 2, 2)))
	require.NoError(t, err)
	require.Equal(t, []optypes.OpType{optypes.Invert}, g.Ops())
}

func TestInvert(t *testing.T) {
	require.True(t, MS(dtypes.Float64, 2, 2).Equal(outputShape(t, optypes.Invert, Spec(MS(dtypes.Float64, 2, 2)))))
	require.True(t, MS(dtypes.Float32, 5, 5).Equal(outputShape(t, optypes.Invert, Spec(MS(dtypes.Float32, 5, 5)))))

	_, err := Specialize(optypes.Invert, Spec(MS(dtypes.Float64, 2, 3)))
	requireShapeError(t, optypes.Invert, err)
	_, err = Specialize(optypes.Invert, Spec(MS(dtypes.Float64, 2)))
	requireShapeError(t, optypes.Invert, err)
	_, err = Specialize(optypes.Invert)
	requireShapeError(t, optypes.Invert, err)
	_, err = Specialize(optypes.Invert, Spec(MS(dtypes.Float64, 2, 2)), Spec(MS(dtypes.Float64, 2, 2)))
	requireShapeError(t, optypes.Invert, err)
}

func TestTranspose(t *testing.T) {
	// Scalar, as in the transpose fixture.
	g, err := Specialize(optypes.Transpose, Spec(MS(dtypes.Float64)))
	require.NoError(t, err)
	require.True(t, MS(dtypes.Float64).Equal(g.OutputShapes()[0]))
	node := g.Node(0)
	perm, found := node.Attr(graph.AttrPermutation)
	require.True(t, found)
	require.Empty(t, perm)

	require.True(t, MS(dtypes.Int32, 4, 3, 2).Equal(outputShape(t, optypes.Transpose, Spec(MS(dtypes.Int32, 2, 3, 4)))))
	require.True(t, MS(dtypes.Int32, 2, 4, 3).Equal(
		outputShape(t, optypes.Transpose, Spec(MS(dtypes.Int32, 2, 3, 4)), Ints(0, 2, 1))))

	// The permutation is an attribute, not a graph input.
	g, err = Specialize(optypes.Transpose, Spec(MS(dtypes.Int32, 2, 3, 4)), Ints(0, 2, 1))
	require.NoError(t, err)
	require.Equal(t, 1, g.NumInputs())

	_, err = Specialize(optypes.Transpose, Spec(MS(dtypes.Int32, 2, 3, 4)), Spec(MS(dtypes.Int64, 3)))
	requireShapeError(t, optypes.Transpose, err)
	_, err = Specialize(optypes.Transpose, Spec(MS(dtypes.Int32, 2, 3, 4)), Ints(0, 0, 1))
	requireShapeError(t, optypes.Transpose, err)
}

func TestMultiply(t *testing.T) {
	require.True(t, MS(dtypes.Float32, 3, 4).Equal(outputShape(t, optypes.Multiply,
		Spec(MS(dtypes.Float32, 3, 1)), Spec(MS(dtypes.Float32, 1, 4)))))
	require.True(t, MS(dtypes.Int32, 2, 2).Equal(outputShape(t, optypes.Multiply,
		Value(tensors.FromValue([][]int32{{1, 2}, {3, 4}})), Value(tensors.FromValue([][]int32{{5, 6}, {7, 8}})))))

	_, err := Specialize(optypes.Multiply, Spec(MS(dtypes.Float32, 3, 2)), Spec(MS(dtypes.Float32, 4, 2)))
	requireShapeError(t, optypes.Multiply, err)
	_, err = Specialize(optypes.Multiply, Spec(MS(dtypes.Float32, 3)), Spec(MS(dtypes.Float64, 3)))
	requireShapeError(t, optypes.Multiply, err)
	_, err = Specialize(optypes.Multiply, Spec(MS(dtypes.Float32, 3)))
	requireShapeError(t, optypes.Multiply, err)
}

func TestRepeat(t *testing.T) {
	x := Spec(MS(dtypes.Float64, 3, 3))
	g, err := Specialize(optypes.Repeat, x, Ints(1, 2, 3), Int(0))
	require.NoError(t, err)
	require.True(t, MS(dtypes.Float64, 6, 3).Equal(g.OutputShapes()[0]))
	require.Equal(t, 2, g.NumInputs(), "x and repeats are graph inputs, the axis is not")
	require.False(t, g.HasRuntimeShapeChecks())
	node := g.Node(0)
	counts, found := node.Attr(graph.AttrRepeats)
	require.True(t, found)
	require.Equal(t, []int{1, 2, 3}, counts)

	// As in the repeat fixture.
	require.True(t, MS(dtypes.Float64, 3, 0).Equal(outputShape(t, optypes.Repeat, x, Ints(0, 0, 0), Int(1))))
	require.True(t, MS(dtypes.Float64, 3, 7).Equal(outputShape(t, optypes.Repeat, x, Ints(1, 2, 4), Int(-1))))

	// Unknown counts: ragged output, checked at execution time.
	g, err = Specialize(optypes.Repeat, x, Spec(MS(dtypes.Int32, 3)), Int(0))
	require.NoError(t, err)
	require.True(t, MS(dtypes.Float64, shapes.RaggedDim, 3).Equal(g.OutputShapes()[0]))
	require.True(t, g.Node(0).RuntimeShapeCheck)

	_, err = Specialize(optypes.Repeat, x, Ints(1, 2), Int(0))
	requireShapeError(t, optypes.Repeat, err)
	_, err = Specialize(optypes.Repeat, x, Ints(1, 2, 3), Spec(MS(dtypes.Int64)))
	requireShapeError(t, optypes.Repeat, err)
	_, err = Specialize(optypes.Repeat, x, Ints(1, 2, 3), Ints(0))
	requireShapeError(t, optypes.Repeat, err)
	_, err = Specialize(optypes.Repeat, x, Ints(1, 2, 3), Int(2))
	requireShapeError(t, optypes.Repeat, err)
	_, err = Specialize(optypes.Repeat, x, Ints(1, 2, 3))
	requireShapeError(t, optypes.Repeat, err)
}

func TestReshape(t *testing.T) {
	x := Spec(MS(dtypes.Float32, 4, 4))
	require.True(t, MS(dtypes.Float32, 2, 8).Equal(outputShape(t, optypes.Reshape, x, Ints(2, 8))))
	_, err := Specialize(optypes.Reshape, x, Ints(2, 7))
	requireShapeError(t, optypes.Reshape, err)
	_, err = Specialize(optypes.Reshape, x, Spec(MS(dtypes.Int64, 2)))
	requireShapeError(t, optypes.Reshape, err)

	// Ragged string input: check deferred.
	g, err := Specialize(optypes.Reshape, Spec(MS(dtypes.String, shapes.RaggedDim)), Ints(2, 2))
	require.NoError(t, err)
	require.True(t, MS(dtypes.String, 2, 2).Equal(g.OutputShapes()[0]))
	require.True(t, g.Node(0).RuntimeShapeCheck)
	node := g.Node(0)
	target, found := node.Attr(graph.AttrTargetShape)
	require.True(t, found)
	require.Equal(t, []int{2, 2}, target)
}

func TestExampleValidation(t *testing.T) {
	_, err := Specialize(optypes.Invert, Example{
		Spec:  MS(dtypes.Float64, 2, 2),
		Value: tensors.FromValue([]float64{1, 2}),
	})
	requireShapeError(t, optypes.Invert, err)

	// A ragged specification accepts a concrete value.
	g, err := Specialize(optypes.Reshape, Example{
		Spec:  MS(dtypes.String, shapes.RaggedDim),
		Value: tensors.FromValue([]string{"a", "b", "c", "d"}),
	}, Ints(2, 2))
	require.NoError(t, err)
	require.True(t, MS(dtypes.String, shapes.RaggedDim).Equal(g.Input(0)))

	_, err = Specialize(optypes.Invert, Example{})
	requireShapeError(t, optypes.Invert, err)
	require.Equal(t, "(int64)[2]=[1 2]", Ints(1, 2).String())
}

func TestConcurrentSpecialization(t *testing.T) {
	var eg errgroup.Group
	graphs := make([]*graph.Graph, 16)
	for ii := range graphs {
		eg.Go(func() error {
			var err error
			graphs[ii], err = Specialize(optypes.Repeat, Spec(MS(dtypes.Float64, 3, 3)), Ints(1, 2, 3), Int(0))
			return err
		})
	}
	require.NoError(t, eg.Wait())
	for _, g := range graphs[1:] {
		require.True(t, graphs[0].Equal(g))
	}
}
