// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"math"
	"testing"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, "(float64)", shape0.String())

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 2, shape1.Dim(-1))
	require.Equal(t, 4, shape1.Dim(0))
	require.Panics(t, func() { _ = shape1.Dim(3) })
	require.Equal(t, "(float32)[4 3 2]", shape1.String())

	require.Panics(t, func() { _ = Make(dtypes.Float32, 2, -2) })
	require.Equal(t, 0, Make(dtypes.Int64, 3, 0).Size())
	require.True(t, Make(dtypes.Int64, 3, 0).IsZeroSize())

	require.Equal(t, dtypes.Int32, Scalar[int32]().DType)
	require.True(t, Scalar[string]().IsScalar())
}

func TestSizeOverflow(t *testing.T) {
	huge := Make(dtypes.Float32, 1<<62+1, 4)
	_, err := huge.CheckedSize()
	require.Error(t, err)
	require.Panics(t, func() { _ = huge.Size() })

	size, err := Make(dtypes.Float32, math.MaxInt).CheckedSize()
	require.NoError(t, err)
	require.Equal(t, math.MaxInt, size)
	size, err = Make(dtypes.Float32, 0, math.MaxInt, 4).CheckedSize()
	require.NoError(t, err)
	require.Equal(t, 0, size)
	size, err = Make(dtypes.Float32, math.MaxInt, RaggedDim, 4).CheckedSize()
	require.NoError(t, err)
	require.Equal(t, RaggedDim, size)

	product, ok := DimensionsProduct([]int{1 << 31, 1 << 31})
	require.True(t, ok)
	require.Equal(t, 1<<62, product)
	_, ok = DimensionsProduct([]int{1 << 32, 1 << 32})
	require.False(t, ok)
	_, ok = DimensionsProduct([]int{2, -1})
	require.False(t, ok)
}

func TestRagged(t *testing.T) {
	ragged := Make(dtypes.String, RaggedDim)
	require.True(t, ragged.Ok())
	require.True(t, ragged.IsRagged())
	require.False(t, ragged.IsFullyConcrete())
	require.Equal(t, RaggedDim, ragged.Size())
	require.Equal(t, "(string)[?]", ragged.String())

	require.True(t, ragged.Matches(Make(dtypes.String, 4)))
	require.True(t, ragged.Matches(Make(dtypes.String, 0)))
	require.False(t, ragged.Matches(Make(dtypes.String, 2, 2)))
	require.False(t, ragged.Matches(Make(dtypes.Int64, 4)))
	require.False(t, ragged.Equal(Make(dtypes.String, 4)))

	spec := Make(dtypes.Float64, 2, RaggedDim)
	require.True(t, spec.Matches(Make(dtypes.Float64, 2, 7)))
	require.False(t, spec.Matches(Make(dtypes.Float64, 3, 7)))
}

func TestEqualAndClone(t *testing.T) {
	s := Make(dtypes.Float64, 2, 3)
	c := s.Clone()
	require.True(t, s.Equal(c))
	c.Dimensions[0] = 5
	require.Equal(t, 2, s.Dimensions[0], "Clone must not share dimensions")
	require.False(t, s.Equal(c))
	require.True(t, Make(dtypes.Int32, 2, 3).EqualDimensions(s))
	require.False(t, Make(dtypes.Int32, 2, 3).Equal(s))
}

func TestCheck(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	require.NoError(t, s.Check(dtypes.Float32, 2, 3))
	require.NoError(t, s.Check(dtypes.Float32, -1, 3))
	require.Error(t, s.Check(dtypes.Float64, 2, 3))
	require.Error(t, s.CheckDims(2))
	require.Error(t, s.CheckDims(2, 4))
}

func TestParse(t *testing.T) {
	for text, want := range map[string]Shape{
		"float64[2,2]":     Make(dtypes.Float64, 2, 2),
		"float64":          Make(dtypes.Float64),
		"int32[]":          Make(dtypes.Int32),
		"string[?]":        Make(dtypes.String, RaggedDim),
		" f32[ 3, -1 ] ":   Make(dtypes.Float32, 3, RaggedDim),
		"(int64)[4 4]":     Make(dtypes.Int64, 4, 4),
		"double[1, 0, 2]":  Make(dtypes.Float64, 1, 0, 2),
	} {
		got, err := Parse(text)
		require.NoError(t, err, "text=%q", text)
		require.True(t, want.Equal(got), "text=%q: want %s, got %s", text, want, got)
	}
	for _, text := range []string{"complex64[2]", "float32[2", "int32[a]", "int32[-3]"} {
		_, err := Parse(text)
		require.Error(t, err, "text=%q", text)
	}
}
