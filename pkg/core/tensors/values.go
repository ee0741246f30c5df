package tensors

import (
	"reflect"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
)

// MultiDimensionSlice lists the Go types a Tensor can be converted to/from. There are no recursions in
// generics' constraint definitions, so we enumerate up to 4 dimensions.
type MultiDimensionSlice interface {
	float32 | float64 | int | int32 | int64 | string |
		[]float32 | []float64 | []int | []int32 | []int64 | []string |
		[][]float32 | [][]float64 | [][]int | [][]int32 | [][]int64 | [][]string |
		[][][]float32 | [][][]float64 | [][][]int | [][][]int32 | [][][]int64 | [][][]string |
		[][][][]float32 | [][][][]float64 | [][][][]int | [][][][]int32 | [][][][]int64 | [][][][]string
}

// FromValue returns a tensor constructed from the given multi-dimension slice (or scalar).
// If the rank of the value is larger than 1, the shape of all sub-slices must be the same.
// Go `int` values are stored as Int64.
//
// It panics if the shape is not regular.
func FromValue[S MultiDimensionSlice](value S) *Tensor {
	return FromAnyValue(value)
}

// FromAnyValue is a non-generic version of FromValue. If value is already a *Tensor, it is returned.
//
// It panics with an error if the value type is unsupported or the shape is not regular.
func FromAnyValue(value any) *Tensor {
	t, err := FromAnyValueSafe(value)
	if err != nil {
		panic(err)
	}
	return t
}

// FromAnyValueSafe is like FromAnyValue, but returns an error instead of panicking.
func FromAnyValueSafe(value any) (*Tensor, error) {
	if valueT, ok := value.(*Tensor); ok {
		return valueT, nil
	}
	shape, err := shapeForValue(value)
	if err != nil {
		return nil, errors.WithMessagef(err, "cannot create tensor from %T", value)
	}
	t := FromShape(shape)
	flatV := reflect.ValueOf(t.flat)
	valueV := reflect.ValueOf(value)
	if shape.IsScalar() {
		flatV.Index(0).Set(valueV.Convert(flatV.Type().Elem()))
		return t, nil
	}
	copySlicesRecursively(flatV, valueV, shape.Strides())
	return t, nil
}

// copySlicesRecursively copy values on a multi-dimension slice to a flat data slice
// assuming the strides for each dimension. Values are converted to the flat element type
// (needed for Go's `int`).
func copySlicesRecursively(data reflect.Value, mdSlice reflect.Value, strides []int) {
	if len(strides) == 1 {
		elemT := data.Type().Elem()
		for ii := range mdSlice.Len() {
			data.Index(ii).Set(mdSlice.Index(ii).Convert(elemT))
		}
		return
	}
	for ii := range mdSlice.Len() {
		subData := data.Slice(ii*strides[0], (ii+1)*strides[0])
		copySlicesRecursively(subData, mdSlice.Index(ii), strides[1:])
	}
}

func shapeForValue(v any) (shapes.Shape, error) {
	if v == nil {
		return shapes.Invalid(), errors.New("nil value")
	}
	var shape shapes.Shape
	err := shapeForValueRecursive(&shape, reflect.ValueOf(v), reflect.TypeOf(v))
	return shape, err
}

func shapeForValueRecursive(shape *shapes.Shape, v reflect.Value, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Slice:
		// Recurse into inner slices.
		t = t.Elem()
		shape.Dimensions = append(shape.Dimensions, v.Len())
		shapePrefix := shape.Clone()

		// The first element is the reference.
		if v.Len() == 0 {
			return errors.Errorf("value with empty slice not valid for Tensor conversion: %T: %v -- "+
				"it's impossible to represent tensors with zero-dimensions generically using Go slices, "+
				"use tensors.FromShape instead", v.Interface(), v)
		}
		err := shapeForValueRecursive(shape, v.Index(0), t)
		if err != nil {
			return err
		}

		// Test that other elements have the same shape as the first one.
		for ii := 1; ii < v.Len(); ii++ {
			shapeTest := shapePrefix.Clone()
			err = shapeForValueRecursive(&shapeTest, v.Index(ii), t)
			if err != nil {
				return err
			}
			if !shape.Equal(shapeTest) {
				return errors.Errorf("sub-slices have irregular shapes, found shapes %q, and %q", shape, shapeTest)
			}
		}

	case reflect.Pointer:
		return errors.Errorf("cannot convert Pointer (%s) to a concrete value for tensors", t)

	default:
		shape.DType = dtypes.FromGoType(t)
		if shape.DType == dtypes.InvalidDType {
			return errors.Errorf("cannot convert type %s to a concrete tensor type", t)
		}
	}
	return nil
}
