// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the specification (element type and dimensions) of a tensor or of the
// value produced by a node in a frozen graph. It is what the artifact format calls a TensorSpec.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension. We try to refer to a dimension index as "axis"
//     (plural axes), and to its size as its dimension.
//   - Dimension: the size of a tensor in one of its axes.
//   - Scalar: a shape with no axes, only a single value of the associated DType.
//   - Ragged: a dimension whose size is not known when the graph is specialized (e.g.
//     variable-length string tensors). It is represented by RaggedDim and printed as "?".
//
// Example: the Go value `[][]int32{{0, 1, 2}, {3, 4, 5}}` has shape `(int32)[2 3]`: rank 2,
// axis 0 has dimension 2 and axis 1 has dimension 3. It can be created with
// `shapes.Make(dtypes.Int32, 2, 3)`.
package shapes

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// RaggedDim marks a dimension whose size is unknown until execution time.
const RaggedDim = -1

// Shape represents the shape of either a tensor or the expected shape of the value from a graph node.
//
// Shapes are values: functions in this package never modify a Shape in place, they return clones.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape with the given dtype and dimensions.
//
// Dimensions must be >= 0 or RaggedDim, it panics otherwise.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim < 0 && dim != RaggedDim {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension < 0", s)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given type.
func Scalar[T dtypes.Supported]() Shape {
	return Shape{DType: dtypes.FromGenericsType[T]()}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType.IsValid() }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// IsRagged returns whether any of the dimensions is RaggedDim.
func (s Shape) IsRagged() bool {
	return slices.Contains(s.Dimensions, RaggedDim)
}

// IsFullyConcrete returns whether the shape is valid and has no ragged dimensions.
func (s Shape) IsFullyConcrete() bool {
	return s.Ok() && !s.IsRagged()
}

// Size returns the number of elements of DType needed for this shape: the product of all dimensions.
// It returns RaggedDim (-1) if any dimension is ragged.
//
// It panics if the number of elements overflows int, see CheckedSize.
func (s Shape) Size() int {
	size, err := s.CheckedSize()
	if err != nil {
		exceptions.Panicf("Shape.Size(): %v", err)
	}
	return size
}

// CheckedSize is like Size, but returns an error if the number of elements overflows int.
func (s Shape) CheckedSize() (int, error) {
	if s.IsRagged() {
		return RaggedDim, nil
	}
	size, ok := DimensionsProduct(s.Dimensions)
	if !ok {
		return 0, errors.Errorf("shape %s has too many elements, its size overflows int", s)
	}
	return size, nil
}

// DimensionsProduct returns the product of dims, which must be >= 0, and false if it overflows int.
func DimensionsProduct(dims []int) (product int, ok bool) {
	product = 1
	for _, dim := range dims {
		if dim == 0 {
			return 0, true
		}
	}
	for _, dim := range dims {
		if dim < 0 || product > math.MaxInt/dim {
			return 0, false
		}
		product *= dim
	}
	return product, true
}

// IsZeroSize returns whether any of the dimensions is 0, in which case there are no elements.
func (s Shape) IsZeroSize() bool {
	return slices.Contains(s.Dimensions, 0)
}

// Shape returns itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// HasShape is implemented by anything that has a Shape, including Shape itself.
type HasShape interface {
	Shape() Shape
}

// String implements stringer, pretty-prints the shape. Ragged dimensions are printed as "?".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, len(s.Dimensions))
	for ii, dim := range s.Dimensions {
		if dim == RaggedDim {
			parts[ii] = "?"
		} else {
			parts[ii] = strconv.Itoa(dim)
		}
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
// A ragged dimension is only equal to another ragged dimension.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && s.EqualDimensions(s2)
}

// EqualDimensions compares two shapes for equality of dimensions. Dtypes can be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	if s.Rank() != s2.Rank() {
		return false
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Matches returns whether the concrete shape satisfies s, taken as a specification:
// dtype and rank must be equal, and every non-ragged dimension of s must be equal in concrete.
// Ragged dimensions of s match any size.
func (s Shape) Matches(concrete Shape) bool {
	if s.DType != concrete.DType || s.Rank() != concrete.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		if dim != RaggedDim && dim != concrete.Dimensions[axis] {
			return false
		}
	}
	return true
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	return
}

// Check that the shape has the given dtype and dimensions. A dimension of -1 in dimensions
// is unchecked (it matches anything, including ragged dimensions).
func (s Shape) Check(dtype dtypes.DType, dimensions ...int) error {
	if s.DType != dtype {
		return errors.Errorf("shape (%s) has incompatible dtype, expected %s", s, dtype)
	}
	return s.CheckDims(dimensions...)
}

// CheckDims checks that the shape has the given dimensions and rank. A value of -1 in
// dimensions means it can take any value and is not checked.
func (s Shape) CheckDims(dimensions ...int) error {
	if s.Rank() != len(dimensions) {
		return errors.Errorf("shape (%s) has incompatible rank %d (wanted %d)", s, s.Rank(), len(dimensions))
	}
	for axis, want := range dimensions {
		if want != -1 && s.Dimensions[axis] != want {
			return errors.Errorf("shape (%s) axis %d has dimension %d, wanted %d (shape wanted=%v)",
				s, axis, s.Dimensions[axis], want, dimensions)
		}
	}
	return nil
}

// Parse a shape written as `dtype[d0,d1,...]`, e.g. "float64[2,2]", "string[?]" or "int32[]" (or just
// "int32") for a scalar. A "?" (or -1) dimension is ragged. Spaces are ignored and dimensions may also
// be separated by spaces, so the output of Shape.String() without the parenthesis parses as well.
func Parse(text string) (Shape, error) {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "(", "")
	text = strings.ReplaceAll(text, ")", "")
	dtypeName, dimsText, hasDims := strings.Cut(text, "[")
	dtype, err := dtypes.FromString(dtypeName)
	if err != nil {
		return Invalid(), errors.WithMessagef(err, "failed to parse shape %q", text)
	}
	if !hasDims {
		return Make(dtype), nil
	}
	dimsText, found := strings.CutSuffix(strings.TrimSpace(dimsText), "]")
	if !found {
		return Invalid(), errors.Errorf("failed to parse shape %q: missing closing \"]\"", text)
	}
	fields := strings.FieldsFunc(dimsText, func(r rune) bool { return r == ',' || r == ' ' })
	dims := make([]int, 0, len(fields))
	for _, field := range fields {
		if field == "?" {
			dims = append(dims, RaggedDim)
			continue
		}
		dim, err := strconv.Atoi(field)
		if err != nil || (dim < 0 && dim != RaggedDim) {
			return Invalid(), errors.Errorf("failed to parse shape %q: invalid dimension %q", text, field)
		}
		dims = append(dims, dim)
	}
	return Make(dtype, dims...), nil
}
