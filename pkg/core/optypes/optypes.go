// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optypes defines OpType, the closed catalog of operations a frozen graph may contain.
//
// Adding an operation is a deliberate change to the artifact schema: the numeric value of each
// OpType is written to artifacts and must never change.
package optypes

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// OpType enumerates the operations of the catalog.
type OpType int32

const (
	Invalid OpType = iota
	Invert
	Transpose
	Multiply
	Repeat
	Reshape

	// Last should always be kept the last, it is used as a counter/marker for OpType.
	Last
)

var opTypeNames = [...]string{
	Invalid:   "Invalid",
	Invert:    "Invert",
	Transpose: "Transpose",
	Multiply:  "Multiply",
	Repeat:    "Repeat",
	Reshape:   "Reshape",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < Invalid || op >= Last {
		return fmt.Sprintf("OpType(%d)", int32(op))
	}
	return opTypeNames[op]
}

// IsValid returns whether op is one of the operations of the catalog.
func (op OpType) IsValid() bool {
	return op > Invalid && op < Last
}

// NumOperands returns the number of graph operands op takes, or 0 for an invalid op.
// Repeat takes the repeat counts and Reshape the target shape as their second operand.
func (op OpType) NumOperands() int {
	switch op {
	case Invert, Transpose:
		return 1
	case Multiply, Repeat, Reshape:
		return 2
	}
	return 0
}

// Catalog returns all operations supported, in enumeration order.
func Catalog() []OpType {
	ops := make([]OpType, 0, int(Last)-1)
	for op := Invert; op < Last; op++ {
		ops = append(ops, op)
	}
	return ops
}

// aliases maps the names used by the traced TensorFlow functions to the catalog.
var aliases = map[string]OpType{
	"matrixinverse": Invert,
	"inv":           Invert,
	"mul":           Multiply,
}

// FromString returns the OpType with the given name, case-insensitive. It also accepts
// the TensorFlow names of the traced functions (e.g. "MatrixInverse", "Mul").
func FromString(name string) (OpType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for op := Invert; op < Last; op++ {
		if strings.ToLower(opTypeNames[op]) == key {
			return op, nil
		}
	}
	if op, found := aliases[key]; found {
		return op, nil
	}
	return Invalid, errors.Errorf("operation %q is not in the catalog %v", name, Catalog())
}
