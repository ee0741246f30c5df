// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that depend on the graph package.
package graphtest

import (
	"fmt"
	"testing"

	"github.com/gomlx/tracefreeze/pkg/core/artifact"
	"github.com/gomlx/tracefreeze/pkg/core/executor"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/gomlx/tracefreeze/pkg/core/tracer"
	"github.com/gomlx/tracefreeze/pkg/support/xslices"
	"github.com/stretchr/testify/require"
)

// RoundTrip serializes g, loads it back and checks the loaded graph is structurally equal to g and
// that serializing it again yields the same bytes. It returns the loaded graph.
func RoundTrip(t *testing.T, g *graph.Graph) *graph.Graph {
	t.Helper()
	data, err := artifact.Serialize(g)
	require.NoError(t, err)
	loaded, err := artifact.Deserialize(data)
	require.NoErrorf(t, err, "failed to load serialized graph:\n%s", g)
	require.Truef(t, g.Equal(loaded), "loaded graph differs:\n%s\nvs\n%s", g, loaded)
	data2, err := artifact.Serialize(loaded)
	require.NoError(t, err)
	require.Equal(t, data, data2, "serialization of the loaded graph is not byte-identical")
	return loaded
}

// RunTestGraph executes g, and its serialized and reloaded version, with inputs and compares its
// outputs to the values in want, reporting back any errors in t.
//
// Values in want can be anything accepted by tensors.FromAnyValue, or a shapes.Shape for zero-sized
// outputs.
//
// delta is the margin of value on the difference of output and want values that are acceptable.
// Values of delta <= 0 means only exact equality is accepted.
func RunTestGraph(t *testing.T, testName string, g *graph.Graph, inputs []*tensors.Tensor, want []any, delta float64) {
	t.Run(testName, func(t *testing.T) {
		wantTensors := xslices.Map(want, func(value any) *tensors.Tensor {
			if s, ok := value.(shapes.Shape); ok {
				return tensors.FromShape(s)
			}
			return tensors.FromAnyValue(value)
		})
		loaded := RoundTrip(t, g)
		for _, frozen := range []*graph.Graph{g, loaded} {
			outputs, err := executor.Exec(frozen, inputs...)
			require.NoErrorf(t, err, "%s: failed to execute graph", testName)
			require.Equalf(t, len(want), len(outputs), "%s: number of wanted results different from number of outputs", testName)

			if testing.Verbose() {
				fmt.Printf("\n%s:\n", testName)
				for ii, input := range inputs {
					fmt.Printf("\tInput %d: %s\n", ii, input)
				}
				if len(inputs) > 0 {
					fmt.Printf("\t======\n")
				}
				for ii, output := range outputs {
					fmt.Printf("\tOutput %d: %s\n", ii, output)
				}
			}
			for ii, output := range outputs {
				require.Truef(t, wantTensors[ii].InDelta(output, delta), "%s: output #%d %s doesn't match wanted value %v",
					testName, ii, output, want[ii])
			}
		}
	})
}

// RunTestOp specializes op with examples and runs it with RunTestGraph.
func RunTestOp(t *testing.T, testName string, op optypes.OpType, examples []tracer.Example,
	inputs []*tensors.Tensor, want []any, delta float64) {
	g, err := tracer.Specialize(op, examples...)
	require.NoErrorf(t, err, "%s: failed to specialize %s", testName, op)
	RunTestGraph(t, testName, g, inputs, want, delta)
}
