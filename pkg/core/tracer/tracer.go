// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tracer specializes ("traces and freezes") one operation of the catalog to a concrete
// signature: given the operation and example inputs, it returns an immutable graph.Graph where
// every shape is resolved ahead of time, so the graph carries no generic dispatch logic.
//
// Example inputs are TensorSpecs (shapes.Shape, possibly with ragged dimensions) with an optional
// concrete value. Values are only read where the output shape depends on them or where a
// compile-time attribute must be frozen: the Transpose permutation, the Repeat axis and counts and
// the Reshape target shape.
//
// Specializations don't share any state and can be run concurrently.
package tracer

import (
	"fmt"
	"strings"

	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapeinference"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// UnsupportedOperationError is returned when specializing an operation outside the catalog.
type UnsupportedOperationError struct {
	// Op is the requested operation, or optypes.Invalid if it was requested by an unknown name.
	Op optypes.OpType

	// Name is the requested name, if the operation was requested by name.
	Name string

	// ByName is set when the operation was requested by name, even an empty one.
	ByName bool
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	requested := e.Op.String()
	if e.ByName {
		requested = fmt.Sprintf("%q", e.Name)
	}
	return fmt.Sprintf("unsupported operation %s, the catalog is %v", requested, optypes.Catalog())
}

// Example input used to specialize an operation: a specification and an optional concrete value.
type Example struct {
	Spec  shapes.Shape
	Value *tensors.Tensor
}

// Spec returns an example with only a specification: its values are unknown when specializing.
func Spec(shape shapes.Shape) Example {
	return Example{Spec: shape}
}

// Value returns an example with a concrete value, its specification is the value's shape.
func Value(t *tensors.Tensor) Example {
	return Example{Spec: t.Shape(), Value: t}
}

// Int returns an example with a concrete int64 scalar, e.g. the Repeat axis.
func Int(v int) Example {
	return Value(tensors.FromScalar(int64(v)))
}

// Ints returns an example with a concrete int64 vector, e.g. the Repeat counts or the Reshape target shape.
func Ints(values ...int) Example {
	flat := make([]int64, len(values))
	for ii, v := range values {
		flat[ii] = int64(v)
	}
	return Value(tensors.FromFlatDataAndDimensions(flat, len(flat)))
}

// String implements fmt.Stringer.
func (e Example) String() string {
	if e.Value == nil {
		return e.Spec.String()
	}
	return fmt.Sprintf("%s=%v", e.Spec, e.Value.Value())
}

// SpecializeByName is like Specialize, but takes the operation name (see optypes.FromString).
func SpecializeByName(name string, examples ...Example) (*graph.Graph, error) {
	op, err := optypes.FromString(name)
	if err != nil {
		return nil, errors.WithStack(&UnsupportedOperationError{Name: name, ByName: true})
	}
	return Specialize(op, examples...)
}

// Specialize op to the signature given by examples, and return the frozen graph.
//
// The graph declares one input per tensor operand of op (the Repeat axis is not an operand, it is
// frozen as an attribute) and has one output.
//
// It fails with *UnsupportedOperationError if op is not in the catalog, and with
// *shapeinference.Error if the examples are inconsistent with the op's arity, rank or dtype
// requirements.
func Specialize(op optypes.OpType, examples ...Example) (*graph.Graph, error) {
	if !op.IsValid() {
		return nil, errors.WithStack(&UnsupportedOperationError{Op: op})
	}
	specs := make([]shapes.Shape, len(examples))
	for ii, example := range examples {
		specs[ii] = example.Spec
		if !example.Spec.Ok() {
			return nil, shapeinference.Errorf(op, specs, "valid example specifications",
				"example #%d has an invalid specification", ii)
		}
		if example.Value != nil && !example.Spec.Matches(example.Value.Shape()) {
			return nil, shapeinference.Errorf(op, specs, "example values matching their specifications",
				"example #%d value of shape %s doesn't match its specification %s", ii, example.Value.Shape(), example.Spec)
		}
	}

	s := &specializer{op: op, examples: examples, specs: specs, builder: graph.NewBuilder()}
	var output graph.Ref
	var err error
	switch op {
	case optypes.Invert:
		output, err = s.invert()
	case optypes.Transpose:
		output, err = s.transpose()
	case optypes.Multiply:
		output, err = s.multiply()
	case optypes.Repeat:
		output, err = s.repeat()
	case optypes.Reshape:
		output, err = s.reshape()
	}
	if err != nil {
		return nil, err
	}
	s.builder.Output(output)
	g, err := s.builder.Build()
	if err != nil {
		return nil, err
	}
	if klog.V(1).Enabled() {
		klog.Infof("tracer: specialized %s(%s) -> %v (runtime shape checks: %v)",
			op, formatExamples(examples), g.OutputShapes(), g.HasRuntimeShapeChecks())
	}
	return g, nil
}

func formatExamples(examples []Example) string {
	parts := make([]string, len(examples))
	for ii, example := range examples {
		parts[ii] = example.String()
	}
	return strings.Join(parts, ", ")
}

// specializer holds the state of one specialization.
type specializer struct {
	op       optypes.OpType
	examples []Example
	specs    []shapes.Shape
	builder  *graph.Builder
}

// checkArity returns a *shapeinference.Error if the number of examples is not within [minArity, maxArity].
func (s *specializer) checkArity(minArity, maxArity int, expected string) error {
	if len(s.examples) < minArity || len(s.examples) > maxArity {
		return shapeinference.Errorf(s.op, s.specs, expected, "%d example inputs given", len(s.examples))
	}
	return nil
}

// concreteInts reads the concrete integer value of example #index, which must have the given rank.
func (s *specializer) concreteInts(index, rank int, what string) ([]int, error) {
	example := s.examples[index]
	if example.Value == nil {
		return nil, shapeinference.Errorf(s.op, s.specs, fmt.Sprintf("concrete %s", what),
			"example #%d (%s) must have a concrete value", index, what)
	}
	if !example.Value.DType().IsInt() || example.Value.Rank() != rank {
		return nil, shapeinference.Errorf(s.op, s.specs, fmt.Sprintf("integer rank-%d %s", rank, what),
			"example #%d (%s) has shape %s", index, what, example.Value.Shape())
	}
	return example.Value.Ints()
}

// inputs declares one graph input for each of the given examples.
func (s *specializer) inputs(indices ...int) []graph.Ref {
	refs := make([]graph.Ref, len(indices))
	for ii, index := range indices {
		refs[ii] = s.builder.Input(s.specs[index])
	}
	return refs
}

// invert: Invert(x).
func (s *specializer) invert() (graph.Ref, error) {
	if err := s.checkArity(1, 1, "a single square matrix"); err != nil {
		return graph.Ref{}, err
	}
	return s.builder.Op(s.op, s.inputs(0)), nil
}

// transpose: Transpose(x [, permutation]). The permutation defaults to the reversed axes.
func (s *specializer) transpose() (graph.Ref, error) {
	if err := s.checkArity(1, 2, "a tensor and an optional permutation"); err != nil {
		return graph.Ref{}, err
	}
	permutation := shapeinference.ReversedAxes(s.specs[0].Rank())
	if len(s.examples) == 2 {
		var err error
		permutation, err = s.concreteInts(1, 1, "permutation")
		if err != nil {
			return graph.Ref{}, err
		}
	}
	return s.builder.Op(s.op, s.inputs(0), graph.Attribute{Key: graph.AttrPermutation, Values: permutation}), nil
}

// multiply: Multiply(x, y).
func (s *specializer) multiply() (graph.Ref, error) {
	if err := s.checkArity(2, 2, "two numeric tensors"); err != nil {
		return graph.Ref{}, err
	}
	return s.builder.Op(s.op, s.inputs(0, 1)), nil
}

// repeat: Repeat(x, repeats, axis). The axis is frozen, and so are the repeats if they have a concrete value.
func (s *specializer) repeat() (graph.Ref, error) {
	if err := s.checkArity(3, 3, "a tensor, an integer vector of repeats and a scalar axis"); err != nil {
		return graph.Ref{}, err
	}
	axis, err := s.concreteInts(2, 0, "axis")
	if err != nil {
		return graph.Ref{}, err
	}
	attrs := []graph.Attribute{{Key: graph.AttrAxis, Values: axis}}
	if s.examples[1].Value != nil {
		counts, err := s.concreteInts(1, 1, "repeats")
		if err != nil {
			return graph.Ref{}, err
		}
		attrs = append(attrs, graph.Attribute{Key: graph.AttrRepeats, Values: counts})
	}
	return s.builder.Op(s.op, s.inputs(0, 1), attrs...), nil
}

// reshape: Reshape(x, shape). The target shape must be concrete and is frozen.
func (s *specializer) reshape() (graph.Ref, error) {
	if err := s.checkArity(2, 2, "a tensor and an integer vector with the target shape"); err != nil {
		return graph.Ref{}, err
	}
	target, err := s.concreteInts(1, 1, "target shape")
	if err != nil {
		return graph.Ref{}, err
	}
	return s.builder.Op(s.op, s.inputs(0, 1), graph.Attribute{Key: graph.AttrTargetShape, Values: target}), nil
}
