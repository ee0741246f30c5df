package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/tracefreeze/pkg/core/artifact"
	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/graph/graphtest"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wantOutputs holds the expected output of each fixture when executed with its sample inputs.
var wantOutputs = map[string]any{
	"matrix-inverse":        [][]float64{{0.6, -0.7}, {-0.2, 0.4}},
	"transpose":             2.5,
	"mul":                   [][]int32{{5, 12}, {21, 32}},
	"repeat":                shapes.Make(dtypes.Float64, 3, 0),
	"reshape-string-tensor": [][]string{{"a", "b"}, {"c", "d"}},
}

func TestFixtures(t *testing.T) {
	all := All()
	require.Len(t, all, len(wantOutputs))
	seenOps := make(map[optypes.OpType]bool)
	for _, f := range all {
		g, err := f.Specialize()
		require.NoError(t, err)
		require.Len(t, f.SampleInputs, g.NumInputs())
		seenOps[f.Op] = true
		graphtest.RunTestGraph(t, f.Name, g, f.SampleInputs, []any{wantOutputs[f.Name]}, 1e-9)
	}
	require.Len(t, seenOps, len(optypes.Catalog()), "every operation of the catalog must have a fixture")

	f, err := ByName("reshape-string-tensor")
	require.NoError(t, err)
	g, err := f.Specialize()
	require.NoError(t, err)
	assert.True(t, g.HasRuntimeShapeChecks())
	_, err = ByName("unknown")
	require.ErrorContains(t, err, "matrix-inverse")
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	paths, err := Generate(context.Background(), dir, 2)
	require.NoError(t, err)
	all := All()
	require.Len(t, paths, len(all))
	for ii, f := range all {
		require.Equal(t, filepath.Join(dir, f.Name+".tfz"), paths[ii])
		g, err := artifact.ReadFile(paths[ii])
		require.NoError(t, err)
		want, err := f.Specialize()
		require.NoError(t, err)
		require.True(t, want.Equal(g))
	}

	// Regenerating produces byte-identical artifacts.
	first, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	paths, err = Generate(context.Background(), dir, 0)
	require.NoError(t, err)
	second, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Canceled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Generate(ctx, t.TempDir(), 1)
	require.ErrorIs(t, err, context.Canceled)

	// Missing directory.
	_, err = Generate(context.Background(), filepath.Join(dir, "missing"), 1)
	require.Error(t, err)
}
