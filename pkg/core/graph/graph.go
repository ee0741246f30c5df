// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph defines Graph, a specialized ("frozen") computation: a list of graph inputs, each
// with a TensorSpec (a shapes.Shape that may have ragged dimensions), a list of nodes applying
// operations of the catalog, and a list of outputs.
//
// Nodes and inputs live in two arenas (slices) and refer to each other by index (see Ref). Nodes
// are stored in topological order: a node may only refer to graph inputs or to earlier nodes, so
// there are no cycles and no forward references.
//
// A Graph is immutable once built: accessors return copies. It is created by a Builder (used by
// the tracer) or with New (used by the artifact loader), both of which validate it.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Graph is a frozen computation. See package documentation.
type Graph struct {
	inputs  []shapes.Shape
	nodes   []Node
	outputs []Ref
}

// New creates a Graph from its parts, validating it: refs must point to existing inputs or earlier
// nodes, operations must be in the catalog, and each node's output and runtime-check flag must be
// the ones inferred from its operands and attributes.
//
// The parts are copied.
func New(inputs []shapes.Shape, nodes []Node, outputs []Ref) (*Graph, error) {
	g := &Graph{
		inputs:  make([]shapes.Shape, len(inputs)),
		nodes:   make([]Node, len(nodes)),
		outputs: slices.Clone(outputs),
	}
	for ii, input := range inputs {
		g.inputs[ii] = input.Clone()
	}
	for ii := range nodes {
		g.nodes[ii] = nodes[ii].Clone()
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// validate checks all the invariants of the graph.
func (g *Graph) validate() error {
	for ii, input := range g.inputs {
		if !input.Ok() {
			return errors.Errorf("graph input #%d has invalid shape %s", ii, input)
		}
		if _, err := input.CheckedSize(); err != nil {
			return errors.WithMessagef(err, "graph input #%d", ii)
		}
	}
	for nodeIdx := range g.nodes {
		node := &g.nodes[nodeIdx]
		operands := make([]shapes.Shape, len(node.Inputs))
		for ii, ref := range node.Inputs {
			if err := g.checkRef(ref, nodeIdx); err != nil {
				return errors.WithMessagef(err, "node #%d (%s) operand #%d", nodeIdx, node.Op, ii)
			}
			operands[ii] = g.RefShape(ref)
		}
		output, runtimeCheck, err := InferOutput(node.Op, operands, node.Attributes)
		if err != nil {
			return errors.WithMessagef(err, "node #%d", nodeIdx)
		}
		if !output.Equal(node.Output) {
			return errors.Errorf("node #%d (%s) output is declared as %s, but operands yield %s",
				nodeIdx, node.Op, node.Output, output)
		}
		if runtimeCheck != node.RuntimeShapeCheck {
			return errors.Errorf("node #%d (%s) runtime shape check flag is %v, expected %v",
				nodeIdx, node.Op, node.RuntimeShapeCheck, runtimeCheck)
		}
	}
	for ii, ref := range g.outputs {
		if err := g.checkRef(ref, len(g.nodes)); err != nil {
			return errors.WithMessagef(err, "graph output #%d", ii)
		}
	}
	return nil
}

// checkRef checks that ref points to a graph input or to a node before numNodes.
func (g *Graph) checkRef(ref Ref, numNodes int) error {
	switch ref.Kind {
	case RefInput:
		if ref.Index < 0 || ref.Index >= len(g.inputs) {
			return errors.Errorf("reference %s out of range, there are %d graph inputs", ref, len(g.inputs))
		}
	case RefNode:
		if ref.Index < 0 || ref.Index >= numNodes {
			return errors.Errorf("reference %s must point to one of the %d previous nodes", ref, numNodes)
		}
	default:
		return errors.Errorf("reference %s has invalid kind", ref)
	}
	return nil
}

// NumInputs returns the number of graph inputs.
func (g *Graph) NumInputs() int { return len(g.inputs) }

// Input returns the specification of graph input #index.
func (g *Graph) Input(index int) shapes.Shape { return g.inputs[index].Clone() }

// Inputs returns the specifications of all graph inputs.
func (g *Graph) Inputs() []shapes.Shape {
	inputs := make([]shapes.Shape, len(g.inputs))
	for ii, input := range g.inputs {
		inputs[ii] = input.Clone()
	}
	return inputs
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Node returns a copy of node #index.
func (g *Graph) Node(index int) Node { return g.nodes[index].Clone() }

// Nodes returns a copy of all nodes, in topological order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, len(g.nodes))
	for ii := range g.nodes {
		nodes[ii] = g.nodes[ii].Clone()
	}
	return nodes
}

// Outputs returns the references to the graph outputs.
func (g *Graph) Outputs() []Ref { return slices.Clone(g.outputs) }

// OutputShapes returns the specifications of the graph outputs.
func (g *Graph) OutputShapes() []shapes.Shape {
	outputShapes := make([]shapes.Shape, len(g.outputs))
	for ii, ref := range g.outputs {
		outputShapes[ii] = g.RefShape(ref)
	}
	return outputShapes
}

// RefShape returns the specification of the value referred by ref.
// It panics if ref is out of range.
func (g *Graph) RefShape(ref Ref) shapes.Shape {
	if ref.Kind == RefInput {
		return g.inputs[ref.Index].Clone()
	}
	return g.nodes[ref.Index].Output.Clone()
}

// Ops returns the set of operations used by the graph, sorted.
func (g *Graph) Ops() []optypes.OpType {
	var ops []optypes.OpType
	for ii := range g.nodes {
		if !slices.Contains(ops, g.nodes[ii].Op) {
			ops = append(ops, g.nodes[ii].Op)
		}
	}
	slices.Sort(ops)
	return ops
}

// HasRuntimeShapeChecks returns whether any node requires a shape check at execution time.
func (g *Graph) HasRuntimeShapeChecks() bool {
	return slices.ContainsFunc(g.nodes, func(n Node) bool { return n.RuntimeShapeCheck })
}

// Equal returns whether both graphs are structurally identical.
func (g *Graph) Equal(other *Graph) bool {
	if g == other {
		return true
	}
	if g == nil || other == nil {
		return false
	}
	if !slices.EqualFunc(g.inputs, other.inputs, shapes.Shape.Equal) ||
		!slices.Equal(g.outputs, other.outputs) || len(g.nodes) != len(other.nodes) {
		return false
	}
	for ii := range g.nodes {
		if !g.nodes[ii].Equal(&other.nodes[ii]) {
			return false
		}
	}
	return true
}

// String returns a multi-line description of the graph.
func (g *Graph) String() string {
	var sb strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&sb, format, args...) }
	w("Graph: %d input(s), %d node(s), %d output(s)\n", len(g.inputs), len(g.nodes), len(g.outputs))
	for ii, input := range g.inputs {
		w("  %s: %s\n", InputRef(ii), input)
	}
	for ii := range g.nodes {
		w("  %s: %s\n", NodeRef(ii), &g.nodes[ii])
	}
	outputs := make([]string, len(g.outputs))
	for ii, ref := range g.outputs {
		outputs[ii] = ref.String()
	}
	w("  outputs: %s\n", strings.Join(outputs, ", "))
	return sb.String()
}
