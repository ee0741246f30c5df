package main

import (
	"strings"

	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/gomlx/tracefreeze/pkg/core/tracer"
	"github.com/pkg/errors"
)

// input given with the -input flag: a specification and optionally its values.
type input struct {
	text  string
	spec  shapes.Shape
	value *tensors.Tensor
}

// String implements fmt.Stringer.
func (in input) String() string { return in.text }

// example returns the tracer example for the input.
func (in input) example() tracer.Example {
	return tracer.Example{Spec: in.spec, Value: in.value}
}

// parseInput parses "dtype[dims][=v1,v2,...]", e.g. "float64[2,2]=1,0,0,1", "string[?]=a,b,c" or
// "int64=1". A single ragged dimension ("?") is resolved from the number of values given.
func parseInput(text string) (input, error) {
	in := input{text: text}
	specText, valuesText, hasValues := strings.Cut(text, "=")
	var err error
	in.spec, err = shapes.Parse(specText)
	if err != nil {
		return in, errors.WithMessagef(err, "invalid -input %q", text)
	}
	if !hasValues {
		return in, nil
	}
	var fields []string
	if valuesText != "" {
		fields = strings.Split(valuesText, ",")
	}
	concrete, err := concreteShape(in.spec, len(fields))
	if err != nil {
		return in, errors.WithMessagef(err, "invalid -input %q", text)
	}
	in.value, err = tensors.Parse(concrete, fields)
	if err != nil {
		return in, errors.WithMessagef(err, "invalid -input %q", text)
	}
	return in, nil
}

// concreteShape resolves the ragged dimension of spec, if any, so it holds numValues elements.
func concreteShape(spec shapes.Shape, numValues int) (shapes.Shape, error) {
	if spec.IsFullyConcrete() {
		return spec, nil
	}
	concrete := spec.Clone()
	raggedAxis := -1
	known := 1
	for axis, dim := range spec.Dimensions {
		if dim != shapes.RaggedDim {
			known *= dim
			continue
		}
		if raggedAxis >= 0 {
			return shapes.Invalid(), errors.Errorf("values can only be given for specifications with at most one ragged dimension, got %s", spec)
		}
		raggedAxis = axis
	}
	if known == 0 || numValues%known != 0 {
		return shapes.Invalid(), errors.Errorf("%d values don't fit specification %s", numValues, spec)
	}
	concrete.Dimensions[raggedAxis] = numValues / known
	return concrete, nil
}
