// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
)

// RefKind tells whether a Ref points to a graph input or to a node.
// The numeric values are written to artifacts.
type RefKind int32

const (
	RefInput RefKind = 0
	RefNode  RefKind = 1
)

// String implements fmt.Stringer.
func (k RefKind) String() string {
	switch k {
	case RefInput:
		return "input"
	case RefNode:
		return "node"
	}
	return fmt.Sprintf("RefKind(%d)", int32(k))
}

// Ref is a reference to a value of the graph: either the graph input #Index or the output of
// node #Index. Refs are plain indices into the graph arenas.
type Ref struct {
	Kind  RefKind
	Index int
}

// InputRef returns a reference to the graph input #index.
func InputRef(index int) Ref { return Ref{Kind: RefInput, Index: index} }

// NodeRef returns a reference to the output of node #index.
func NodeRef(index int) Ref { return Ref{Kind: RefNode, Index: index} }

// String implements fmt.Stringer: "in#0" for inputs and "n#3" for nodes.
func (r Ref) String() string {
	switch r.Kind {
	case RefInput:
		return fmt.Sprintf("in#%d", r.Index)
	case RefNode:
		return fmt.Sprintf("n#%d", r.Index)
	}
	return fmt.Sprintf("%s#%d", r.Kind, r.Index)
}

// AttrKey identifies a frozen compile-time attribute of a node.
// The numeric values are written to artifacts.
type AttrKey int32

const (
	AttrInvalid AttrKey = iota

	// AttrPermutation of the axes for Transpose.
	AttrPermutation

	// AttrAxis along which Repeat operates. Negative values count from the end.
	AttrAxis

	// AttrRepeats holds the repeat counts of Repeat, when they were known when specializing.
	AttrRepeats

	// AttrTargetShape holds the output dimensions of Reshape.
	AttrTargetShape

	// lastAttrKey must be kept last.
	lastAttrKey
)

var attrKeyNames = [...]string{
	AttrInvalid:     "invalid",
	AttrPermutation: "perm",
	AttrAxis:        "axis",
	AttrRepeats:     "repeats",
	AttrTargetShape: "shape",
}

// String implements fmt.Stringer.
func (k AttrKey) String() string {
	if k < AttrInvalid || k >= lastAttrKey {
		return fmt.Sprintf("AttrKey(%d)", int32(k))
	}
	return attrKeyNames[k]
}

// IsValid returns whether k is a known attribute key.
func (k AttrKey) IsValid() bool { return k > AttrInvalid && k < lastAttrKey }

// Attribute is a compile-time value of a node, a key and a list of integers.
// Scalar attributes (AttrAxis) hold one value.
type Attribute struct {
	Key    AttrKey
	Values []int
}

// String implements fmt.Stringer.
func (a Attribute) String() string {
	if a.Key == AttrAxis && len(a.Values) == 1 {
		return fmt.Sprintf("%s=%d", a.Key, a.Values[0])
	}
	return fmt.Sprintf("%s=%v", a.Key, a.Values)
}

// Node is one operation of a Graph.
type Node struct {
	// Op is the operation from the catalog.
	Op optypes.OpType

	// Inputs are the operands, each referring to a graph input or to an earlier node.
	Inputs []Ref

	// Attributes are the frozen compile-time values, sorted by key.
	Attributes []Attribute

	// Output is the inferred output specification. It may have ragged dimensions.
	Output shapes.Shape

	// RuntimeShapeCheck marks nodes whose shape preconditions could not be fully verified
	// when specializing (ragged operands or outputs). The executor re-checks them with the
	// concrete shapes.
	RuntimeShapeCheck bool
}

// Attr returns the values of the attribute with the given key, and whether it was found.
func (n *Node) Attr(key AttrKey) ([]int, bool) {
	for _, attr := range n.Attributes {
		if attr.Key == key {
			return attr.Values, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() Node {
	clone := Node{
		Op:                n.Op,
		Inputs:            slices.Clone(n.Inputs),
		Attributes:        make([]Attribute, len(n.Attributes)),
		Output:            n.Output.Clone(),
		RuntimeShapeCheck: n.RuntimeShapeCheck,
	}
	for ii, attr := range n.Attributes {
		clone.Attributes[ii] = Attribute{Key: attr.Key, Values: slices.Clone(attr.Values)}
	}
	return clone
}

// Equal returns whether both nodes are identical.
func (n *Node) Equal(other *Node) bool {
	if n.Op != other.Op || n.RuntimeShapeCheck != other.RuntimeShapeCheck ||
		!n.Output.Equal(other.Output) || !slices.Equal(n.Inputs, other.Inputs) ||
		len(n.Attributes) != len(other.Attributes) {
		return false
	}
	for ii, attr := range n.Attributes {
		if attr.Key != other.Attributes[ii].Key || !slices.Equal(attr.Values, other.Attributes[ii].Values) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer, e.g.: "Repeat(in#0, in#1) {axis=1, repeats=[0 0 0]} -> (float64)[3 0]".
func (n *Node) String() string {
	var sb strings.Builder
	sb.WriteString(n.Op.String())
	sb.WriteString("(")
	for ii, input := range n.Inputs {
		if ii > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(input.String())
	}
	sb.WriteString(")")
	if len(n.Attributes) > 0 {
		sb.WriteString(" {")
		for ii, attr := range n.Attributes {
			if ii > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(attr.String())
		}
		sb.WriteString("}")
	}
	_, _ = fmt.Fprintf(&sb, " -> %s", n.Output)
	if n.RuntimeShapeCheck {
		sb.WriteString(" [runtime check]")
	}
	return sb.String()
}
