// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes defines DType, the enumeration of the element types a frozen graph can carry.
//
// The set is closed and small: 32/64-bit floats, 32/64-bit signed integers and UTF-8 strings.
// The numeric value of each DType is written to artifacts, so existing values must never change.
package dtypes

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// DType indicates the type of the unit element of a tensor (or of its specification in a graph).
type DType int32

const (
	InvalidDType DType = iota
	Float32
	Float64
	Int32
	Int64
	String

	// lastDType is a marker, it must be kept last.
	lastDType
)

// Short aliases.
const (
	F32 = Float32
	F64 = Float64
	I32 = Int32
	I64 = Int64
)

var dtypeNames = [...]string{
	InvalidDType: "InvalidDType",
	Float32:      "float32",
	Float64:      "float64",
	Int32:        "int32",
	Int64:        "int64",
	String:       "string",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if !dtype.IsValid() && dtype != InvalidDType {
		return fmt.Sprintf("DType(%d)", int32(dtype))
	}
	return dtypeNames[dtype]
}

// IsValid returns whether dtype is one of the enumerated element types (InvalidDType excluded).
func (dtype DType) IsValid() bool {
	return dtype > InvalidDType && dtype < lastDType
}

// IsFloat returns whether dtype is Float32 or Float64.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is Int32 or Int64.
func (dtype DType) IsInt() bool {
	return dtype == Int32 || dtype == Int64
}

// IsNumeric returns whether dtype is a float or an integer.
func (dtype DType) IsNumeric() bool {
	return dtype.IsFloat() || dtype.IsInt()
}

// Size in bytes of one element. Strings are variable length and return 0.
func (dtype DType) Size() int {
	switch dtype {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	}
	return 0
}

// Values returns all valid DTypes, in enumeration order.
func Values() []DType {
	values := make([]DType, 0, int(lastDType)-1)
	for dtype := Float32; dtype < lastDType; dtype++ {
		values = append(values, dtype)
	}
	return values
}

// FromString parses a dtype name. It accepts the canonical names ("float64") as well
// as the common short forms ("f64", "double", "int", "str").
func FromString(name string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "float32", "f32", "float":
		return Float32, nil
	case "float64", "f64", "double":
		return Float64, nil
	case "int32", "i32":
		return Int32, nil
	case "int64", "i64", "int":
		return Int64, nil
	case "string", "str", "utf8":
		return String, nil
	}
	return InvalidDType, errors.Errorf("unknown dtype %q, valid values are %v", name, Values())
}

// Supported lists the Go types that back each DType. Used as a generics constraint.
type Supported interface {
	float32 | float64 | int32 | int64 | string
}

// Number lists the Go numeric types, a subset of Supported.
type Number interface {
	float32 | float64 | int32 | int64
}

// FromGenericsType returns the DType for the Go type T.
func FromGenericsType[T Supported]() DType {
	var t T
	switch any(t).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case string:
		return String
	}
	return InvalidDType
}

// FromGoType returns the DType for the given Go type, or InvalidDType if not supported.
// A Go `int` maps to Int64.
func FromGoType(t reflect.Type) DType {
	switch t.Kind() {
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.Int32:
		return Int32
	case reflect.Int64, reflect.Int:
		return Int64
	case reflect.String:
		return String
	}
	return InvalidDType
}

// GoType returns the Go type used to store elements of dtype.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Int64:
		return reflect.TypeOf(int64(0))
	case String:
		return reflect.TypeOf("")
	}
	return nil
}
