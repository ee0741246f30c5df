package dtypes

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	for name, want := range map[string]DType{
		"float32": Float32,
		"F64":     Float64,
		"double":  Float64,
		" int32 ": Int32,
		"int":     Int64,
		"string":  String,
	} {
		got, err := FromString(name)
		require.NoError(t, err, "name=%q", name)
		require.Equal(t, want, got, "name=%q", name)
	}
	_, err := FromString("bfloat16")
	require.Error(t, err)
}

func TestStringAndPredicates(t *testing.T) {
	require.Equal(t, "float64", Float64.String())
	require.Equal(t, "DType(42)", DType(42).String())
	require.True(t, Float32.IsFloat())
	require.True(t, Int64.IsInt())
	require.True(t, Int32.IsNumeric())
	require.False(t, String.IsNumeric())
	require.False(t, InvalidDType.IsValid())
	require.Equal(t, []DType{Float32, Float64, Int32, Int64, String}, Values())
	require.Equal(t, 8, Float64.Size())
	require.Equal(t, 0, String.Size())
}

func TestGoTypes(t *testing.T) {
	require.Equal(t, Int64, FromGenericsType[int64]())
	require.Equal(t, String, FromGenericsType[string]())
	require.Equal(t, Int64, FromGoType(reflect.TypeOf(0)))
	require.Equal(t, InvalidDType, FromGoType(reflect.TypeOf(true)))
	for _, dtype := range Values() {
		require.Equal(t, dtype, FromGoType(dtype.GoType()))
	}
}
