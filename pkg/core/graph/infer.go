package graph

import (
	"slices"

	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapeinference"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
)

// opAttributes lists the attributes accepted by each op, and whether they are required.
var opAttributes = map[optypes.OpType]map[AttrKey]bool{
	optypes.Invert:    {},
	optypes.Transpose: {AttrPermutation: true},
	optypes.Multiply:  {},
	optypes.Repeat:    {AttrAxis: true, AttrRepeats: false},
	optypes.Reshape:   {AttrTargetShape: true},
}

// InferOutput returns the output shape of op applied to operands with the given attributes, and whether
// the node requires a shape check at execution time (ragged operands or output).
//
// Shape precondition failures are returned as *shapeinference.Error. Malformed attributes (unknown,
// duplicate, unsorted or missing keys) are returned as plain errors.
//
// It is used when building graphs, when validating loaded graphs and, with concrete operand shapes,
// by the executor to re-check nodes marked with RuntimeShapeCheck.
func InferOutput(op optypes.OpType, operands []shapes.Shape, attrs []Attribute) (output shapes.Shape, runtimeCheck bool, err error) {
	if !op.IsValid() {
		return shapes.Invalid(), false, errors.Errorf("operation %s is not in the catalog", op)
	}
	if len(operands) != op.NumOperands() {
		return shapes.Invalid(), false, shapeinference.Errorf(op, operands,
			"", "%s takes %d operands, %d given", op, op.NumOperands(), len(operands))
	}
	if err = checkAttributes(op, attrs); err != nil {
		return shapes.Invalid(), false, err
	}
	attr := func(key AttrKey) []int {
		for _, a := range attrs {
			if a.Key == key {
				return a.Values
			}
		}
		return nil
	}

	switch op {
	case optypes.Invert:
		output, err = shapeinference.InvertOp(operands[0])
	case optypes.Transpose:
		output, err = shapeinference.TransposeOp(operands[0], attr(AttrPermutation))
	case optypes.Multiply:
		output, err = shapeinference.MultiplyOp(operands[0], operands[1])
	case optypes.Repeat:
		axis := attr(AttrAxis)
		if len(axis) != 1 {
			return shapes.Invalid(), false, errors.Errorf("%s attribute %s must have exactly one value, got %v",
				op, AttrAxis, axis)
		}
		output, err = shapeinference.RepeatOp(operands[0], operands[1], axis[0], attr(AttrRepeats))
	case optypes.Reshape:
		target := attr(AttrTargetShape)
		shapeOperand := operands[1]
		if !shapeOperand.DType.IsInt() || shapeOperand.Rank() != 1 ||
			(shapeOperand.Dimensions[0] != shapes.RaggedDim && shapeOperand.Dimensions[0] != len(target)) {
			return shapes.Invalid(), false, shapeinference.Errorf(op, operands,
				"1-D integer shape operand", "shape operand %s doesn't describe the %d target dimensions %v",
				shapeOperand, len(target), target)
		}
		output, err = shapeinference.ReshapeOp(operands[0], target)
	}
	if err != nil {
		return shapes.Invalid(), false, err
	}
	runtimeCheck = output.IsRagged() || slices.ContainsFunc(operands, shapes.Shape.IsRagged)
	return output, runtimeCheck, nil
}

// checkAttributes verifies attributes are known for op, sorted by key without duplicates, and that
// required ones are present.
func checkAttributes(op optypes.OpType, attrs []Attribute) error {
	accepted := opAttributes[op]
	for ii, attr := range attrs {
		if _, found := accepted[attr.Key]; !found {
			return errors.Errorf("%s doesn't accept attribute %s", op, attr.Key)
		}
		if ii > 0 && attr.Key <= attrs[ii-1].Key {
			return errors.Errorf("%s attributes must be sorted by key without duplicates, got %v", op, attrs)
		}
	}
	for key, required := range accepted {
		if !required {
			continue
		}
		if !slices.ContainsFunc(attrs, func(a Attribute) bool { return a.Key == key }) {
			return errors.Errorf("%s requires attribute %s", op, key)
		}
	}
	return nil
}

// SortAttributes sorts attributes by key, the order expected in a Node.
func SortAttributes(attrs []Attribute) {
	slices.SortFunc(attrs, func(a, b Attribute) int { return int(a.Key) - int(b.Key) })
}
