package executor

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

// numeric element types supported by arithmetic kernels.
type numeric interface {
	constraints.Integer | constraints.Float
}

// invert returns the inverse of the square matrix x, using gonum's LU based inverse.
// float32 matrices are inverted in float64 and converted back.
func invert(x *tensors.Tensor) (*tensors.Tensor, error) {
	n := x.Shape().Dim(0)
	if n == 0 {
		return tensors.FromShape(x.Shape()), nil
	}
	var data []float64
	switch flat := x.Flat().(type) {
	case []float64:
		data = make([]float64, len(flat))
		copy(data, flat)
	case []float32:
		data = make([]float64, len(flat))
		for ii, v := range flat {
			data[ii] = float64(v)
		}
	default:
		return nil, errors.Errorf("Invert: unsupported dtype %s", x.DType())
	}

	var inverse mat.Dense
	if err := inverse.Inverse(mat.NewDense(n, n, data)); err != nil {
		return nil, errors.Wrapf(err, "Invert: matrix of shape %s is singular or near-singular", x.Shape())
	}
	result := make([]float64, 0, n*n)
	for row := range n {
		for col := range n {
			result = append(result, inverse.At(row, col))
		}
	}
	if _, ok := x.Flat().([]float32); ok {
		result32 := make([]float32, len(result))
		for ii, v := range result {
			result32[ii] = float32(v)
		}
		return tensors.FromFlat(x.Shape(), result32)
	}
	return tensors.FromFlat(x.Shape(), result)
}

// transpose permutes the axes of x: output axis i is input axis permutation[i].
func transpose(x *tensors.Tensor, permutation []int, outputShape shapes.Shape) (*tensors.Tensor, error) {
	var flat any
	switch typed := x.Flat().(type) {
	case []float32:
		flat = transposeFlat(typed, x.Shape(), permutation, outputShape)
	case []float64:
		flat = transposeFlat(typed, x.Shape(), permutation, outputShape)
	case []int32:
		flat = transposeFlat(typed, x.Shape(), permutation, outputShape)
	case []int64:
		flat = transposeFlat(typed, x.Shape(), permutation, outputShape)
	case []string:
		flat = transposeFlat(typed, x.Shape(), permutation, outputShape)
	default:
		return nil, errors.Errorf("Transpose: unsupported dtype %s", x.DType())
	}
	return tensors.FromFlat(outputShape, flat)
}

func transposeFlat[T any](flat []T, inputShape shapes.Shape, permutation []int, outputShape shapes.Shape) []T {
	inputStrides := inputShape.Strides()
	output := make([]T, outputShape.Size())
	for outputIdx, indices := range outputShape.Iter() {
		inputIdx := 0
		for axis, index := range indices {
			inputIdx += index * inputStrides[permutation[axis]]
		}
		output[outputIdx] = flat[inputIdx]
	}
	return output
}

// multiply is the element-wise product of lhs and rhs, with trailing-aligned broadcasting.
func multiply(lhs, rhs *tensors.Tensor, outputShape shapes.Shape) (*tensors.Tensor, error) {
	var flat any
	switch lhsFlat := lhs.Flat().(type) {
	case []float32:
		flat = multiplyFlat(lhsFlat, rhs.Flat().([]float32), lhs.Shape(), rhs.Shape(), outputShape)
	case []float64:
		flat = multiplyFlat(lhsFlat, rhs.Flat().([]float64), lhs.Shape(), rhs.Shape(), outputShape)
	case []int32:
		flat = multiplyFlat(lhsFlat, rhs.Flat().([]int32), lhs.Shape(), rhs.Shape(), outputShape)
	case []int64:
		flat = multiplyFlat(lhsFlat, rhs.Flat().([]int64), lhs.Shape(), rhs.Shape(), outputShape)
	default:
		return nil, errors.Errorf("Multiply: unsupported dtype %s", lhs.DType())
	}
	return tensors.FromFlat(outputShape, flat)
}

func multiplyFlat[T numeric](lhs, rhs []T, lhsShape, rhsShape, outputShape shapes.Shape) []T {
	lhsStrides := broadcastStrides(lhsShape, outputShape)
	rhsStrides := broadcastStrides(rhsShape, outputShape)
	output := make([]T, outputShape.Size())
	for outputIdx, indices := range outputShape.Iter() {
		var lhsIdx, rhsIdx int
		for axis, index := range indices {
			lhsIdx += index * lhsStrides[axis]
			rhsIdx += index * rhsStrides[axis]
		}
		output[outputIdx] = lhs[lhsIdx] * rhs[rhsIdx]
	}
	return output
}

// broadcastStrides returns the strides of operand indexed by the axes of the (broadcast) output.
// Axes missing from the operand, or broadcast from dimension 1, get stride 0.
func broadcastStrides(operand, output shapes.Shape) []int {
	strides := make([]int, output.Rank())
	operandStrides := operand.Strides()
	offset := output.Rank() - operand.Rank()
	for axis := range operand.Rank() {
		if operand.Dimensions[axis] == output.Dimensions[axis+offset] {
			strides[axis+offset] = operandStrides[axis]
		}
	}
	return strides
}

// repeat repeats each slice of x along axis counts[i] times.
func repeat(x *tensors.Tensor, axis int, counts []int, outputShape shapes.Shape) (*tensors.Tensor, error) {
	var flat any
	switch typed := x.Flat().(type) {
	case []float32:
		flat = repeatFlat(typed, x.Shape(), axis, counts)
	case []float64:
		flat = repeatFlat(typed, x.Shape(), axis, counts)
	case []int32:
		flat = repeatFlat(typed, x.Shape(), axis, counts)
	case []int64:
		flat = repeatFlat(typed, x.Shape(), axis, counts)
	case []string:
		flat = repeatFlat(typed, x.Shape(), axis, counts)
	default:
		return nil, errors.Errorf("Repeat: unsupported dtype %s", x.DType())
	}
	return tensors.FromFlat(outputShape, flat)
}

func repeatFlat[T any](flat []T, inputShape shapes.Shape, axis int, counts []int) []T {
	axisDim := inputShape.Dimensions[axis]
	if len(counts) != axisDim {
		exceptions.Panicf("Repeat: %d counts given for axis %d of shape %s", len(counts), axis, inputShape)
	}
	outer, inner := 1, 1
	for _, dim := range inputShape.Dimensions[:axis] {
		outer *= dim
	}
	for _, dim := range inputShape.Dimensions[axis+1:] {
		inner *= dim
	}
	total := 0
	for _, count := range counts {
		total += count
	}
	output := make([]T, 0, outer*total*inner)
	for outerIdx := range outer {
		for axisIdx, count := range counts {
			start := (outerIdx*axisDim + axisIdx) * inner
			for range count {
				output = append(output, flat[start:start+inner]...)
			}
		}
	}
	return output
}
