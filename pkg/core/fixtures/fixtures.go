// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fixtures holds the reference specializations used to produce the artifacts shipped with the
// project: one per operation of the catalog.
//
// Each fixture has the example inputs it is specialized with, and a set of sample inputs that can be
// bound to the frozen graph when executing it.
package fixtures

import (
	"context"
	"path/filepath"

	"github.com/gomlx/tracefreeze/pkg/core/artifact"
	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/gomlx/tracefreeze/pkg/core/tracer"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Fixture is a named specialization of one operation.
type Fixture struct {
	// Name of the fixture, also the base name of its artifact file.
	Name string

	Op       optypes.OpType
	Examples []tracer.Example

	// SampleInputs can be bound to the specialized graph, one per graph input.
	SampleInputs []*tensors.Tensor
}

// Specialize returns the frozen graph of the fixture.
func (f *Fixture) Specialize() (*graph.Graph, error) {
	g, err := tracer.Specialize(f.Op, f.Examples...)
	if err != nil {
		return nil, errors.WithMessagef(err, "specializing fixture %q", f.Name)
	}
	return g, nil
}

// FileName returns the name of the fixture's artifact file.
func (f *Fixture) FileName() string {
	return f.Name + artifact.Extension
}

// All returns the fixtures, in a fixed order. The returned values can be freely modified.
func All() []*Fixture {
	return []*Fixture{
		{
			Name:         "matrix-inverse",
			Op:           optypes.Invert,
			Examples:     []tracer.Example{tracer.Spec(shapes.Make(dtypes.Float64, 2, 2))},
			SampleInputs: []*tensors.Tensor{tensors.FromValue([][]float64{{4, 7}, {2, 6}})},
		},
		{
			Name:         "transpose",
			Op:           optypes.Transpose,
			Examples:     []tracer.Example{tracer.Spec(shapes.Make(dtypes.Float64))},
			SampleInputs: []*tensors.Tensor{tensors.FromScalar(2.5)},
		},
		{
			Name: "mul",
			Op:   optypes.Multiply,
			Examples: []tracer.Example{
				tracer.Spec(shapes.Make(dtypes.Int32, 2, 2)),
				tracer.Spec(shapes.Make(dtypes.Int32, 2, 2)),
			},
			SampleInputs: []*tensors.Tensor{
				tensors.FromValue([][]int32{{1, 2}, {3, 4}}),
				tensors.FromValue([][]int32{{5, 6}, {7, 8}}),
			},
		},
		{
			Name: "repeat",
			Op:   optypes.Repeat,
			Examples: []tracer.Example{
				tracer.Spec(shapes.Make(dtypes.Float64, 3, 3)),
				tracer.Ints(0, 0, 0),
				tracer.Int(1),
			},
			SampleInputs: []*tensors.Tensor{
				tensors.FromValue([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}),
				tensors.FromValue([]int64{0, 0, 0}),
			},
		},
		{
			Name: "reshape-string-tensor",
			Op:   optypes.Reshape,
			Examples: []tracer.Example{
				tracer.Spec(shapes.Make(dtypes.String, shapes.RaggedDim)),
				tracer.Ints(2, 2),
			},
			SampleInputs: []*tensors.Tensor{
				tensors.FromValue([]string{"a", "b", "c", "d"}),
				tensors.FromValue([]int64{2, 2}),
			},
		},
	}
}

// ByName returns the fixture with the given name.
func ByName(name string) (*Fixture, error) {
	var names []string
	for _, f := range All() {
		if f.Name == name {
			return f, nil
		}
		names = append(names, f.Name)
	}
	return nil, errors.Errorf("unknown fixture %q, valid fixtures are %q", name, names)
}

// Generate specializes all fixtures and writes their artifacts to dir, running up to parallelism
// fixtures concurrently (parallelism <= 0 means no limit).
//
// It returns the paths written, in fixture order. On error, artifacts already written are left in place.
func Generate(ctx context.Context, dir string, parallelism int) ([]string, error) {
	all := All()
	paths := make([]string, len(all))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for ii, f := range all {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			frozen, err := f.Specialize()
			if err != nil {
				return err
			}
			path := filepath.Join(dir, f.FileName())
			if err = artifact.WriteFile(path, frozen); err != nil {
				return err
			}
			paths[ii] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("fixtures: wrote %d artifacts to %q", len(paths), dir)
	return paths, nil
}
