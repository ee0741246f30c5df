// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package executor is a pure Go reference runtime for frozen graphs: it binds concrete tensors to
// the graph inputs, evaluates the nodes in order and returns the graph outputs.
//
// It's not optimized: its purpose is to demonstrate that artifacts carry everything needed to
// execute them, and to exercise the shape checks deferred to execution time (nodes marked with
// RuntimeShapeCheck, e.g. reshaping a ragged string tensor).
//
// The graph is never modified, so a failed execution can be retried with corrected inputs, and a
// graph can be executed concurrently.
package executor

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapeinference"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InputMismatchError is returned when a bound input tensor doesn't match its declared specification,
// or when its values differ from the ones frozen in the graph when it was specialized.
type InputMismatchError struct {
	// Index of the graph input, or -1 if the number of inputs is wrong.
	Index int

	// Expected specification of the input.
	Expected shapes.Shape

	// Actual shape of the bound tensor.
	Actual shapes.Shape

	// Reason describes the mismatch.
	Reason string
}

// Error implements the error interface.
func (e *InputMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("input mismatch: %s", e.Reason)
	}
	return fmt.Sprintf("input mismatch for graph input #%d (expected %s, got %s): %s",
		e.Index, e.Expected, e.Actual, e.Reason)
}

// Exec executes the graph g with the given inputs, one per graph input, and returns its outputs.
//
// It fails with *InputMismatchError if the inputs don't match the graph input specifications,
// with *shapeinference.Error if a shape check deferred to execution time fails, or with a plain
// error if an operation fails (e.g. inverting a singular matrix).
func Exec(g *graph.Graph, inputs ...*tensors.Tensor) ([]*tensors.Tensor, error) {
	if len(inputs) != g.NumInputs() {
		return nil, errors.WithStack(&InputMismatchError{
			Index:  -1,
			Reason: fmt.Sprintf("graph takes %d inputs, %d given", g.NumInputs(), len(inputs)),
		})
	}
	for ii, input := range inputs {
		spec := g.Input(ii)
		if input == nil {
			return nil, errors.WithStack(&InputMismatchError{Index: ii, Expected: spec, Actual: shapes.Invalid(),
				Reason: "nil tensor"})
		}
		if !spec.Matches(input.Shape()) {
			return nil, errors.WithStack(&InputMismatchError{Index: ii, Expected: spec, Actual: input.Shape(),
				Reason: "shape or dtype doesn't match"})
		}
	}

	e := &execution{graph: g, inputs: inputs, values: make([]*tensors.Tensor, g.NumNodes())}
	for nodeIdx := range g.NumNodes() {
		node := g.Node(nodeIdx)
		value, err := e.execNode(&node)
		if err != nil {
			return nil, errors.WithMessagef(err, "executing node #%d (%s)", nodeIdx, node.Op)
		}
		e.values[nodeIdx] = value
	}
	outputs := make([]*tensors.Tensor, 0, len(g.Outputs()))
	for _, ref := range g.Outputs() {
		outputs = append(outputs, e.value(ref))
	}
	return outputs, nil
}

// execution holds the state of one execution.
type execution struct {
	graph  *graph.Graph
	inputs []*tensors.Tensor
	values []*tensors.Tensor
}

func (e *execution) value(ref graph.Ref) *tensors.Tensor {
	if ref.Kind == graph.RefInput {
		return e.inputs[ref.Index]
	}
	return e.values[ref.Index]
}

// mismatch returns an *InputMismatchError for the value referred by ref.
func (e *execution) mismatch(ref graph.Ref, format string, args ...any) error {
	index := -1
	var expected, actual shapes.Shape
	if ref.Kind == graph.RefInput {
		index = ref.Index
		expected = e.graph.Input(ref.Index)
		actual = e.inputs[ref.Index].Shape()
	}
	return errors.WithStack(&InputMismatchError{Index: index, Expected: expected, Actual: actual,
		Reason: fmt.Sprintf(format, args...)})
}

// execNode checks the node's frozen attributes and deferred shape checks, and evaluates it.
func (e *execution) execNode(node *graph.Node) (*tensors.Tensor, error) {
	operands := make([]*tensors.Tensor, len(node.Inputs))
	operandShapes := make([]shapes.Shape, len(node.Inputs))
	for ii, ref := range node.Inputs {
		operands[ii] = e.value(ref)
		operandShapes[ii] = operands[ii].Shape()
	}

	// Integer vectors whose values were frozen must still hold the same values.
	attrs := slices.Clone(node.Attributes)
	var counts []int
	switch node.Op {
	case optypes.Repeat:
		var err error
		counts, err = operands[1].Ints()
		if err != nil {
			return nil, err
		}
		if frozen, found := node.Attr(graph.AttrRepeats); found {
			if !slices.Equal(frozen, counts) {
				return nil, e.mismatch(node.Inputs[1], "repeat counts %v differ from the ones frozen in the graph %v",
					counts, frozen)
			}
		} else {
			attrs = append(attrs, graph.Attribute{Key: graph.AttrRepeats, Values: counts})
			graph.SortAttributes(attrs)
		}
	case optypes.Reshape:
		target, err := operands[1].Ints()
		if err != nil {
			return nil, err
		}
		frozen, _ := node.Attr(graph.AttrTargetShape)
		if !slices.Equal(frozen, target) {
			return nil, e.mismatch(node.Inputs[1], "target shape %v differs from the one frozen in the graph %v",
				target, frozen)
		}
	}

	outputShape := node.Output
	if node.RuntimeShapeCheck {
		var err error
		outputShape, _, err = graph.InferOutput(node.Op, operandShapes, attrs)
		if err != nil {
			return nil, err
		}
		if !node.Output.Matches(outputShape) {
			return nil, shapeinference.Errorf(node.Op, operandShapes, node.Output.String(),
				"concrete output shape %s doesn't match the specialized output", outputShape)
		}
		klog.V(2).Infof("executor: runtime shape check of %s passed: %v -> %s", node.Op, operandShapes, outputShape)
	}

	var output *tensors.Tensor
	var err error
	if exception := exceptions.TryCatch[error](func() {
		output, err = evalOp(node, outputShape, operands, counts)
	}); exception != nil {
		return nil, exception
	}
	if err != nil {
		return nil, err
	}
	if !outputShape.Equal(output.Shape()) {
		return nil, errors.Errorf("%s produced shape %s, expected %s", node.Op, output.Shape(), outputShape)
	}
	return output, nil
}

// evalOp evaluates the operation. The output shape is already known and fully concrete.
func evalOp(node *graph.Node, outputShape shapes.Shape, operands []*tensors.Tensor, counts []int) (*tensors.Tensor, error) {
	switch node.Op {
	case optypes.Invert:
		return invert(operands[0])
	case optypes.Transpose:
		permutation, _ := node.Attr(graph.AttrPermutation)
		return transpose(operands[0], permutation, outputShape)
	case optypes.Multiply:
		return multiply(operands[0], operands[1], outputShape)
	case optypes.Repeat:
		axis, _ := node.Attr(graph.AttrAxis)
		adjustedAxis, err := shapeinference.AdjustAxisToRank(axis[0], operands[0].Rank())
		if err != nil {
			return nil, err
		}
		return repeat(operands[0], adjustedAxis, counts, outputShape)
	case optypes.Reshape:
		return operands[0].Reshape(outputShape.Dimensions...)
	}
	return nil, errors.Errorf("operation %s not supported by the executor", node.Op)
}
