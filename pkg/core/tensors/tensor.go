// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a Tensor, a concrete value with a fully concrete shape stored in
// host memory as a flat slice (row-major), used as example values when specializing a graph and
// as the inputs and outputs of the reference executor.
//
// Tensors are immutable once created: functions that transform them return new tensors, so a
// Tensor can be shared among goroutines.
//
// The flat data is a slice of the Go type corresponding to the DType: []float32, []float64,
// []int32, []int64 or []string. Even scalar values have a flat representation of one element.
package tensors

import (
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Tensor is a multi-dimensional array of a concrete shape.
type Tensor struct {
	shape shapes.Shape

	// flat holds the array with actual data, a slice of the Go type for shape.DType.
	flat any
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Flat returns the flat data, a slice of the Go type corresponding to the DType.
// It must not be modified.
func (t *Tensor) Flat() any { return t.flat }

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
//
// It panics if the shape is invalid or ragged.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.IsFullyConcrete() {
		exceptions.Panicf("tensors.FromShape(%s): shape must be valid and have no ragged dimensions", shape)
	}
	size := shape.Size()
	return &Tensor{
		shape: shape.Clone(),
		flat:  reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size).Interface(),
	}
}

// FromFlat creates a tensor with the given shape using flat as its data, without copying.
// flat must be a slice of the Go type for shape.DType with shape.Size() elements.
func FromFlat(shape shapes.Shape, flat any) (*Tensor, error) {
	if !shape.IsFullyConcrete() {
		return nil, errors.Errorf("tensor shape %s must be valid and have no ragged dimensions", shape)
	}
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice || flatV.Type().Elem() != shape.DType.GoType() {
		return nil, errors.Errorf("flat data for tensor of shape %s must be a []%s, got %T",
			shape, shape.DType.GoType(), flat)
	}
	size, err := shape.CheckedSize()
	if err != nil {
		return nil, err
	}
	if flatV.Len() != size {
		return nil, errors.Errorf("flat data for tensor of shape %s has %d elements, wanted %d",
			shape, flatV.Len(), size)
	}
	return &Tensor{shape: shape.Clone(), flat: flat}, nil
}

// FromScalar creates a tensor with the given scalar.
// The DType is inferred from the value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return &Tensor{
		shape: shapes.Make(dtypes.FromGenericsType[T]()),
		flat:  []T{value},
	}
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in data.
// The data is copied to the Tensor. The DType is inferred from the data type.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if shape.IsRagged() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): tensors cannot have ragged dimensions", shape)
	}
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	return &Tensor{shape: shape, flat: slices.Clone(data)}
}

// CopyFlatData returns a copy of the flat data of t.
//
// It panics if T doesn't match the tensor DType.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("CopyFlatData[%T]: tensor has dtype %s", *new(T), t.DType())
	}
	return slices.Clone(flat)
}

// ToScalar returns the scalar value of t.
//
// It panics if t is not a scalar or if T doesn't match the tensor DType.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	if !t.IsScalar() {
		exceptions.Panicf("ToScalar[%T]: tensor of shape %s is not a scalar", *new(T), t.shape)
	}
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("ToScalar[%T]: tensor has dtype %s", *new(T), t.DType())
	}
	return flat[0]
}

// Ints returns the values of an integer tensor (of any rank) as a flat []int.
func (t *Tensor) Ints() ([]int, error) {
	switch flat := t.flat.(type) {
	case []int32:
		ints := make([]int, len(flat))
		for ii, v := range flat {
			ints[ii] = int(v)
		}
		return ints, nil
	case []int64:
		ints := make([]int, len(flat))
		for ii, v := range flat {
			ints[ii] = int(v)
		}
		return ints, nil
	}
	return nil, errors.Errorf("tensor of shape %s is not an integer tensor", t.shape)
}

// Reshape returns a tensor with the same data (shared, tensors are immutable) and the new dimensions.
// The number of elements must match.
func (t *Tensor) Reshape(dimensions ...int) (*Tensor, error) {
	size, ok := shapes.DimensionsProduct(dimensions)
	if !ok || size != t.Size() {
		return nil, errors.Errorf("cannot reshape tensor of shape %s to dimensions %v", t.shape, dimensions)
	}
	return &Tensor{shape: shapes.Make(t.DType(), dimensions...), flat: t.flat}, nil
}

// Equal checks whether t == otherTensor: same shape and the same values.
// If they are the same pointer, they are considered equal.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	if t == otherTensor {
		return true
	}
	if t == nil || otherTensor == nil || !t.shape.Equal(otherTensor.shape) {
		return false
	}
	return reflect.DeepEqual(t.flat, otherTensor.flat)
}

// InDelta checks whether Abs(t - otherTensor) <= delta for every element.
// If the shapes are different, it returns false. Non-float tensors are compared with Equal.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	if t == otherTensor {
		return true
	}
	if t == nil || otherTensor == nil || !t.shape.Equal(otherTensor.shape) {
		return false
	}
	switch flat0 := t.flat.(type) {
	case []float32:
		return slicesInDelta(flat0, otherTensor.flat.([]float32), delta)
	case []float64:
		return slicesInDelta(flat0, otherTensor.flat.([]float64), delta)
	}
	return t.Equal(otherTensor)
}

func slicesInDelta[T float32 | float64](s0, s1 []T, delta float64) bool {
	for ii, v0 := range s0 {
		diff := float64(v0) - float64(s1[ii])
		if diff < -delta || diff > delta || diff != diff {
			return false
		}
	}
	return true
}

// Value returns a multidimensional slice (or a scalar) with a copy of the values of the tensor.
// For instance, a tensor of shape (float64)[2 3] returns a [][]float64.
func (t *Tensor) Value() any {
	flatV := reflect.ValueOf(t.flat)
	if t.IsScalar() {
		return flatV.Index(0).Interface()
	}
	cloneV := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
	reflect.Copy(cloneV, flatV)
	return convertDataToSlices(cloneV, t.shape.Dimensions...).Interface()
}

// convertDataToSlices takes data as a flat slice and creates a multidimensional slice with the given dimensions that
// points to the given data.
func convertDataToSlices(dataV reflect.Value, dimensions ...int) reflect.Value {
	if len(dimensions) <= 1 {
		return dataV
	}
	resultT := dataV.Type().Elem()
	for range dimensions {
		resultT = reflect.SliceOf(resultT)
	}
	strides := shapes.Make(dtypes.FromGoType(dataV.Type().Elem()), dimensions...).Strides()
	return createSlicesRecursively(resultT, dataV, dimensions, strides)
}

// createSlicesRecursively recursively creates the slices of a multidimensional slice pointing to the flat data.
func createSlicesRecursively(resultT reflect.Type, data reflect.Value, dimensions []int, strides []int) reflect.Value {
	if len(strides) == 1 {
		return data
	}
	numElements := dimensions[0]
	slice := reflect.MakeSlice(resultT, numElements, numElements)
	for ii := range numElements {
		subData := data.Slice(ii*strides[0], (ii+1)*strides[0])
		slice.Index(ii).Set(createSlicesRecursively(resultT.Elem(), subData, dimensions[1:], strides[1:]))
	}
	return slice
}
