package graph

import (
	"testing"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	b := NewBuilder()
	x := b.Input(MS(dtypes.Float64, 2, 2))
	inverse := b.Op(optypes.Invert, []Ref{x})
	b.Output(b.Op(optypes.Multiply, []Ref{inverse, x}))
	invertGraph := must1(b.Build())
	repeatGraph := buildRepeat(t)

	merged, err := Merge(invertGraph, repeatGraph)
	require.NoError(t, err)
	require.Equal(t, 3, merged.NumInputs())
	require.Equal(t, 3, merged.NumNodes())
	require.Equal(t, []Ref{NodeRef(1), NodeRef(2)}, merged.Outputs())
	require.Equal(t, []optypes.OpType{optypes.Invert, optypes.Multiply, optypes.Repeat}, merged.Ops())

	// References of the second graph are shifted past the first one.
	node := merged.Node(2)
	require.Equal(t, []Ref{InputRef(1), InputRef(2)}, node.Inputs)
	node = merged.Node(1)
	require.Equal(t, []Ref{NodeRef(0), InputRef(0)}, node.Inputs)
	require.True(t, repeatGraph.OutputShapes()[0].Equal(merged.OutputShapes()[1]))

	// Parts are copied: merging doesn't change the originals.
	node = repeatGraph.Node(0)
	require.Equal(t, []Ref{InputRef(0), InputRef(1)}, node.Inputs)

	// Merging a single graph yields an equal graph.
	require.True(t, repeatGraph.Equal(must1(Merge(repeatGraph))))

	_, err = Merge()
	require.Error(t, err)
	_, err = Merge(repeatGraph, nil)
	require.Error(t, err)
}
