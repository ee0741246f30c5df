// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from each operation of the catalog and
// validates its operands.
//
// The functions are pure: they only look at shapes (and, where the output shape depends on
// them, at a few concrete integer values such as the repeat counts). They are used both when
// specializing a graph and, for nodes whose check was deferred (ragged operands), by the
// executor with the concrete shapes known at execution time.
//
// All failures are returned as *Error.
package shapeinference

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Error is returned when operands fail an operation's shape, rank or dtype preconditions.
// It is what the artifact documentation calls a ShapeInferenceError.
type Error struct {
	// Op is the operation whose precondition failed.
	Op optypes.OpType

	// Operands are the shapes given to the operation.
	Operands []shapes.Shape

	// Expected describes what the operation requires, e.g. "square 2-D float matrix".
	Expected string

	// Reason describes what was wrong.
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "shape inference failed for %s: %s", e.Op, e.Reason)
	if len(e.Operands) > 0 {
		_, _ = fmt.Fprintf(&sb, " (operands %v", e.Operands)
		if e.Expected != "" {
			_, _ = fmt.Fprintf(&sb, ", expected %s", e.Expected)
		}
		sb.WriteString(")")
	} else if e.Expected != "" {
		_, _ = fmt.Fprintf(&sb, " (expected %s)", e.Expected)
	}
	return sb.String()
}

// Errorf creates a new *Error (with a stack trace) for op.
func Errorf(op optypes.OpType, operands []shapes.Shape, expected string, format string, args ...any) error {
	return errors.WithStack(&Error{
		Op:       op,
		Operands: operands,
		Expected: expected,
		Reason:   fmt.Sprintf(format, args...),
	})
}

// InvertOp returns the output shape of a matrix inversion: the operand must be a square 2-D
// float matrix, and the output has the same shape.
func InvertOp(operand shapes.Shape) (output shapes.Shape, err error) {
	const expected = "square 2-D float32/float64 matrix"
	operands := []shapes.Shape{operand}
	if !operand.Ok() {
		return shapes.Invalid(), Errorf(optypes.Invert, operands, expected, "invalid operand shape")
	}
	if !operand.DType.IsFloat() {
		return shapes.Invalid(), Errorf(optypes.Invert, operands, expected, "dtype %s is not a float", operand.DType)
	}
	if operand.Rank() != 2 {
		return shapes.Invalid(), Errorf(optypes.Invert, operands, expected, "rank is %d", operand.Rank())
	}
	if operand.IsRagged() {
		return shapes.Invalid(), Errorf(optypes.Invert, operands, expected, "matrix dimensions must be known")
	}
	if operand.Dimensions[0] != operand.Dimensions[1] {
		return shapes.Invalid(), Errorf(optypes.Invert, operands, expected,
			"matrix is not square, it has %d rows and %d columns", operand.Dimensions[0], operand.Dimensions[1])
	}
	return operand.Clone(), nil
}

// ReversedAxes returns the default permutation for Transpose: the axes in reverse order.
func ReversedAxes(rank int) []int {
	permutation := make([]int, rank)
	for axis := range permutation {
		permutation[axis] = rank - 1 - axis
	}
	return permutation
}

// TransposeOp permutes all axes of the operand.
// There must be one value in permutation for each axis in the operand.
// The output will have: output.Dimensions[ii] = operand.Dimensions[permutation[ii]].
// Ragged dimensions are moved like any other.
func TransposeOp(operand shapes.Shape, permutation []int) (output shapes.Shape, err error) {
	operands := []shapes.Shape{operand}
	expected := fmt.Sprintf("permutation of the %d axes of the operand", operand.Rank())
	if !operand.Ok() {
		return shapes.Invalid(), Errorf(optypes.Transpose, operands, expected, "invalid operand shape")
	}
	rank := operand.Rank()
	if len(permutation) != rank {
		return shapes.Invalid(), Errorf(optypes.Transpose, operands, expected,
			"all axes permutations must be defined, but %d were given (%v)", len(permutation), permutation)
	}
	if rank == 0 {
		return operand.Clone(), nil
	}

	// Check permutation axes are within range and unique.
	axesSet := slices.Clone(permutation)
	slices.Sort(axesSet)
	for ii, srcAxis := range axesSet {
		if srcAxis < 0 || srcAxis >= rank {
			return shapes.Invalid(), Errorf(optypes.Transpose, operands, expected,
				"invalid permutation axis %d in %v, it must be within the range of its rank", srcAxis, permutation)
		}
		if ii > 0 && srcAxis == axesSet[ii-1] {
			return shapes.Invalid(), Errorf(optypes.Transpose, operands, expected,
				"invalid permutation %v, there cannot be any repeated axis, each must appear exactly once", permutation)
		}
	}

	output = operand.Clone()
	for axis := range output.Dimensions {
		output.Dimensions[axis] = operand.Dimensions[permutation[axis]]
	}
	return output, nil
}

// MultiplyOp returns the broadcast shape of an element-wise multiplication.
//
// Broadcasting follows the array-languages rule: shapes are aligned at the trailing axis, missing
// leading axes count as 1, and an axis of dimension 1 is stretched to match the other operand.
// Both operands must have the same numeric dtype: there is no implicit promotion.
func MultiplyOp(lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	const expected = "numeric operands of the same dtype with broadcastable dimensions"
	operands := []shapes.Shape{lhs, rhs}
	if !lhs.Ok() || !rhs.Ok() {
		return shapes.Invalid(), Errorf(optypes.Multiply, operands, expected, "invalid operand shape")
	}
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), Errorf(optypes.Multiply, operands, expected,
			"data types must match, got %s and %s", lhs.DType, rhs.DType)
	}
	if !lhs.DType.IsNumeric() {
		return shapes.Invalid(), Errorf(optypes.Multiply, operands, expected, "dtype %s is not numeric", lhs.DType)
	}
	if lhs.IsRagged() || rhs.IsRagged() {
		return shapes.Invalid(), Errorf(optypes.Multiply, operands, expected, "operands cannot have ragged dimensions")
	}
	dims, err := BroadcastDimensions(lhs.Dimensions, rhs.Dimensions)
	if err != nil {
		return shapes.Invalid(), Errorf(optypes.Multiply, operands, expected, "%v", err)
	}
	output = shapes.Make(lhs.DType, dims...)
	if _, err = output.CheckedSize(); err != nil {
		return shapes.Invalid(), Errorf(optypes.Multiply, operands, expected, "%v", err)
	}
	return output, nil
}

// BroadcastDimensions returns the broadcast of two lists of dimensions, aligned at the trailing axis.
func BroadcastDimensions(lhsDims, rhsDims []int) ([]int, error) {
	rank := max(len(lhsDims), len(rhsDims))
	dims := make([]int, rank)
	for ii := 1; ii <= rank; ii++ {
		lhsDim, rhsDim := 1, 1
		if ii <= len(lhsDims) {
			lhsDim = lhsDims[len(lhsDims)-ii]
		}
		if ii <= len(rhsDims) {
			rhsDim = rhsDims[len(rhsDims)-ii]
		}
		switch {
		case lhsDim == rhsDim:
			dims[rank-ii] = lhsDim
		case lhsDim == 1:
			dims[rank-ii] = rhsDim
		case rhsDim == 1:
			dims[rank-ii] = lhsDim
		default:
			return nil, errors.Errorf("dimensions %d and %d of the axis %d counting from the end cannot be broadcast",
				lhsDim, rhsDim, ii)
		}
	}
	return dims, nil
}

// AdjustAxisToRank returns the positive axis for the given rank, converting a negative axis
// (counting from the end) if needed. It returns an error if the axis is out of range.
func AdjustAxisToRank(axis, rank int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		return 0, errors.Errorf("axis %d is out of range for rank %d", axis, rank)
	}
	return adjusted, nil
}

// RepeatOp returns the output shape of repeating each slice of operand along axis.
//
// The repeats operand is a 1-D integer tensor with one entry per slice of operand along axis.
// If counts (the concrete values of repeats) is given, the output dimension along axis is their sum.
// Otherwise, the output dimension along axis is ragged and must be resolved at execution time.
// All other dimensions are unchanged.
func RepeatOp(operand, repeats shapes.Shape, axis int, counts []int) (output shapes.Shape, err error) {
	const expected = "operand of rank >= 1 and a 1-D integer repeats with one count per slice along axis"
	operands := []shapes.Shape{operand, repeats}
	if !operand.Ok() || !repeats.Ok() {
		return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected, "invalid operand shape")
	}
	if operand.Rank() == 0 {
		return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected, "operand cannot be a scalar")
	}
	adjustedAxis, err := AdjustAxisToRank(axis, operand.Rank())
	if err != nil {
		return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected, "%v", err)
	}
	if !repeats.DType.IsInt() || repeats.Rank() != 1 {
		return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected, "repeats must be a 1-D integer tensor")
	}
	axisDim, numCounts := operand.Dimensions[adjustedAxis], repeats.Dimensions[0]
	if counts != nil {
		if numCounts != shapes.RaggedDim && len(counts) != numCounts {
			return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected,
				"%d repeat counts given for a repeats tensor of length %d", len(counts), numCounts)
		}
		numCounts = len(counts)
	}
	if axisDim != shapes.RaggedDim && numCounts != shapes.RaggedDim && axisDim != numCounts {
		return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected,
			"repeats has %d counts but operand has dimension %d along axis %d", numCounts, axisDim, axis)
	}

	output = operand.Clone()
	if counts == nil {
		output.Dimensions[adjustedAxis] = shapes.RaggedDim
		return output, nil
	}
	sum := 0
	for ii, count := range counts {
		if count < 0 {
			return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected,
				"repeat count #%d is negative (%d)", ii, count)
		}
		if count > math.MaxInt-sum {
			return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected,
				"sum of the repeat counts %v overflows int", counts)
		}
		sum += count
	}
	output.Dimensions[adjustedAxis] = sum
	if _, err = output.CheckedSize(); err != nil {
		return shapes.Invalid(), Errorf(optypes.Repeat, operands, expected, "%v", err)
	}
	return output, nil
}

// ReshapeOp to the given dimensions.
//
// If the operand is fully concrete the number of elements must match. If the operand is ragged
// the element count is unknown and the check is deferred: call ReshapeOp again with the concrete
// shape at execution time.
func ReshapeOp(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	operands := []shapes.Shape{operand}
	expected := fmt.Sprintf("operand with the same number of elements as the target dimensions %v", dims)
	if !operand.Ok() {
		return shapes.Invalid(), Errorf(optypes.Reshape, operands, expected, "invalid operand shape")
	}
	for _, dim := range dims {
		if dim < 0 {
			return shapes.Invalid(), Errorf(optypes.Reshape, operands, expected,
				"target dimensions must be known and >= 0, got %v", dims)
		}
	}
	size, ok := shapes.DimensionsProduct(dims)
	if !ok {
		return shapes.Invalid(), Errorf(optypes.Reshape, operands, expected,
			"the number of elements of the target dimensions %v overflows int", dims)
	}
	output = shapes.Make(operand.DType, dims...)
	if operand.IsRagged() {
		return output, nil
	}
	operandSize, err := operand.CheckedSize()
	if err != nil {
		return shapes.Invalid(), Errorf(optypes.Reshape, operands, expected, "%v", err)
	}
	if operandSize != size {
		return shapes.Invalid(), Errorf(optypes.Reshape, operands, expected,
			"cannot reshape %d elements to dimensions %v (%d elements)", operandSize, dims, size)
	}
	return output, nil
}
