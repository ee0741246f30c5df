package graph

import (
	"slices"

	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Builder incrementally builds a Graph, inferring the output shape of each node as it is added.
//
// Errors are deferred: the first error is recorded, later calls become no-ops returning an invalid
// Ref, and Build (or Err) returns it. This keeps tracing code linear.
type Builder struct {
	inputs  []shapes.Shape
	nodes   []Node
	outputs []Ref
	err     error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// invalidRef is returned by the Builder after an error.
var invalidRef = Ref{Kind: RefNode, Index: -1}

// Err returns the first error that happened while building, or nil.
func (b *Builder) Err() error { return b.err }

// Input declares a new graph input with the given specification, and returns its reference.
func (b *Builder) Input(spec shapes.Shape) Ref {
	if b.err != nil {
		return invalidRef
	}
	if !spec.Ok() {
		b.err = errors.Errorf("graph input #%d has invalid shape %s", len(b.inputs), spec)
		return invalidRef
	}
	if _, err := spec.CheckedSize(); err != nil {
		b.err = errors.WithMessagef(err, "graph input #%d", len(b.inputs))
		return invalidRef
	}
	b.inputs = append(b.inputs, spec.Clone())
	return InputRef(len(b.inputs) - 1)
}

// Shape returns the specification of the value referred by ref, or an invalid shape if ref is not valid.
func (b *Builder) Shape(ref Ref) shapes.Shape {
	switch {
	case ref.Kind == RefInput && ref.Index >= 0 && ref.Index < len(b.inputs):
		return b.inputs[ref.Index].Clone()
	case ref.Kind == RefNode && ref.Index >= 0 && ref.Index < len(b.nodes):
		return b.nodes[ref.Index].Output.Clone()
	}
	return shapes.Invalid()
}

// Op adds a node applying op to the given operands, with the given attributes (in any order),
// and returns a reference to its output.
//
// The output shape and the runtime shape check flag are inferred with InferOutput.
func (b *Builder) Op(op optypes.OpType, operands []Ref, attrs ...Attribute) Ref {
	if b.err != nil {
		return invalidRef
	}
	operandShapes := make([]shapes.Shape, len(operands))
	for ii, ref := range operands {
		operandShapes[ii] = b.Shape(ref)
		if !operandShapes[ii].Ok() {
			b.err = errors.Errorf("%s operand #%d refers to unknown value %s", op, ii, ref)
			return invalidRef
		}
	}
	node := Node{
		Op:         op,
		Inputs:     slices.Clone(operands),
		Attributes: make([]Attribute, len(attrs)),
	}
	for ii, attr := range attrs {
		node.Attributes[ii] = Attribute{Key: attr.Key, Values: slices.Clone(attr.Values)}
	}
	SortAttributes(node.Attributes)
	var err error
	node.Output, node.RuntimeShapeCheck, err = InferOutput(op, operandShapes, node.Attributes)
	if err != nil {
		b.err = err
		return invalidRef
	}
	b.nodes = append(b.nodes, node)
	ref := NodeRef(len(b.nodes) - 1)
	if klog.V(2).Enabled() {
		klog.Infof("graph.Builder: %s = %s", ref, &b.nodes[ref.Index])
	}
	return ref
}

// Output sets the outputs of the graph. It can be called more than once, outputs are appended.
func (b *Builder) Output(refs ...Ref) {
	if b.err != nil {
		return
	}
	for _, ref := range refs {
		if !b.Shape(ref).Ok() {
			b.err = errors.Errorf("graph output refers to unknown value %s", ref)
			return
		}
	}
	b.outputs = append(b.outputs, refs...)
}

// Build returns the built Graph, or the first error that happened while building.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.inputs, b.nodes, b.outputs)
}
