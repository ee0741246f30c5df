package graph

import (
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Merge composes graphs side by side into one graph: the inputs, nodes and outputs of each graph are
// appended, in order, to those of the previous ones, and references are shifted accordingly.
//
// The merged graph has no connections between the parts: executing it with the concatenated inputs
// of all graphs yields the concatenated outputs.
func Merge(graphs ...*Graph) (*Graph, error) {
	if len(graphs) == 0 {
		return nil, errors.New("no graphs to merge")
	}
	var (
		inputs  []shapes.Shape
		nodes   []Node
		outputs []Ref
	)
	for ii, g := range graphs {
		if g == nil {
			return nil, errors.Errorf("graph #%d to merge is nil", ii)
		}
		inputOffset, nodeOffset := len(inputs), len(nodes)
		shift := func(ref Ref) Ref {
			if ref.Kind == RefInput {
				ref.Index += inputOffset
			} else {
				ref.Index += nodeOffset
			}
			return ref
		}
		inputs = append(inputs, g.Inputs()...)
		for _, node := range g.Nodes() {
			for jj, ref := range node.Inputs {
				node.Inputs[jj] = shift(ref)
			}
			nodes = append(nodes, node)
		}
		for _, ref := range g.outputs {
			outputs = append(outputs, shift(ref))
		}
	}
	merged, err := New(inputs, nodes, outputs)
	if err != nil {
		return nil, errors.WithMessagef(err, "merging %d graphs", len(graphs))
	}
	return merged, nil
}
