// tracefreeze specializes operations of the catalog into frozen graphs, saves them as artifacts,
// and inspects or executes saved artifacts.
//
// Examples:
//
//	tracefreeze -op Invert -input "float64[2,2]" -o inverse.tfz
//	tracefreeze -op Reshape -input "string[?]" -input "int64[2]=2,2" -o reshape.tfz
//	tracefreeze -fixtures ./artifacts
//	tracefreeze -inspect inverse.tfz
//	tracefreeze -inspect inverse.tfz -format json
//	tracefreeze -merge inverse.tfz -merge reshape.tfz -o merged.tfz
//	tracefreeze -run inverse.tfz -input "float64[2,2]=4,7,2,6"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/tracefreeze/pkg/core/artifact"
	"github.com/gomlx/tracefreeze/pkg/core/executor"
	"github.com/gomlx/tracefreeze/pkg/core/fixtures"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/gomlx/tracefreeze/pkg/core/tracer"
	"github.com/gomlx/tracefreeze/pkg/support/fsutil"
	"github.com/gomlx/tracefreeze/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagOp = flag.String("op", "", fmt.Sprintf("Operation to specialize, one of %v. "+
		"The example inputs are given with -input, and the artifact is written to -o.", optypes.Catalog()))
	flagInputs = xslices.Flag("input", nil,
		"Example input (with -op) or bound input (with -run), in the format \"dtype[dims][=v1,v2,...]\", "+
			"e.g. \"float64[2,2]=1,0,0,1\" or \"string[?]\". A \"?\" dimension is ragged. "+
			"Can be repeated, one per operand.", parseInput)
	flagOutput = flag.String("o", "", "Path of the artifact written with -op or -merge. "+
		"With -op it defaults to the operation name with the "+artifact.Extension+" extension.")

	flagFixtures    = flag.String("fixtures", "", "Directory where to write the artifacts of all fixtures.")
	flagParallelism = flag.Int("parallelism", runtime.NumCPU(),
		"Maximum number of fixtures specialized in parallel with -fixtures. If <= 0, there is no limit.")

	flagInspect = flag.String("inspect", "", "Artifact to inspect.")
	flagFormat  = flag.String("format", formatTable,
		fmt.Sprintf("Output format of -inspect, one of %q, %q or %q.", formatTable, formatJSON, formatYAML))
	flagRun     = flag.String("run", "", "Artifact to execute with the reference executor, "+
		"with the inputs (and their values) given with -input.")
	flagCatalog = flag.String("catalog", "", "Comma-separated list of operations supported by the loader, "+
		"used with -inspect, -run and -merge. Artifacts using other operations are rejected by -run, "+
		"and inspected with a warning.")

	flagMerge = xslices.Flag("merge", nil, "Artifact to merge, repeated once per artifact: the graphs are "+
		"composed side by side into one artifact written to -o, whose inputs and outputs are the "+
		"concatenation of those of the merged artifacts.", func(s string) (string, error) { return s, nil })
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Fatalf("Unexpected arguments %q. See 'tracefreeze -help'.", flag.Args())
	}

	var numModes int
	for _, set := range []bool{*flagOp != "", *flagFixtures != "", *flagInspect != "", *flagRun != "",
		len(*flagMerge) > 0} {
		if set {
			numModes++
		}
	}
	if numModes != 1 {
		klog.Errorf("Exactly one of -op, -fixtures, -inspect, -run or -merge must be given. See 'tracefreeze -help'.")
		os.Exit(1)
	}

	switch {
	case *flagOp != "":
		specialize()
	case *flagFixtures != "":
		generateFixtures()
	case *flagInspect != "":
		if *flagFormat == formatTable {
			fmt.Print(must.M1(inspect(*flagInspect, loaderOptions(true)...)))
		} else {
			fmt.Print(must.M1(inspectDocument(*flagInspect, *flagFormat, loaderOptions(true)...)))
		}
	case *flagRun != "":
		run()
	case len(*flagMerge) > 0:
		merge()
	}
}

// loaderOptions returns the artifact loading options set by -catalog.
func loaderOptions(partial bool) []artifact.Option {
	if *flagCatalog == "" {
		return nil
	}
	var ops []optypes.OpType
	for _, name := range strings.Split(*flagCatalog, ",") {
		ops = append(ops, must.M1(optypes.FromString(name)))
	}
	options := []artifact.Option{artifact.WithCatalog(ops...)}
	if partial {
		options = append(options, artifact.WithPartialCatalog())
	}
	return options
}

// specialize implements -op.
func specialize() {
	examples := xslices.Map(*flagInputs, input.example)
	g, err := tracer.SpecializeByName(*flagOp, examples...)
	if err != nil {
		klog.Fatalf("Failed to specialize: %+v", err)
	}
	outputPath := *flagOutput
	if outputPath == "" {
		outputPath = strings.ToLower(*flagOp) + artifact.Extension
	}
	outputPath = must.M1(fsutil.ReplaceTildeInDir(outputPath))
	must.M(artifact.WriteFile(outputPath, g))
	fmt.Print(renderGraph(g))
	fmt.Printf("Artifact written to %q\n", outputPath)
}

// generateFixtures implements -fixtures.
func generateFixtures() {
	dir := must.M1(fsutil.ReplaceTildeInDir(*flagFixtures))
	must.M(os.MkdirAll(dir, 0o755))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	paths, err := fixtures.Generate(ctx, dir, *flagParallelism)
	if err != nil {
		klog.Fatalf("Failed to generate fixtures: %+v", err)
	}
	fmt.Println(titleStyle.Render("Fixtures"))
	table := newPlainTable(true).Headers("Fixture", "Artifact", "Size")
	for ii, f := range fixtures.All() {
		info := must.M1(os.Stat(paths[ii]))
		table.Row(f.Name, paths[ii], humanize.Bytes(uint64(info.Size())))
	}
	fmt.Println(table.Render())
}

// merge implements -merge.
func merge() {
	if *flagOutput == "" {
		klog.Fatalf("-merge requires the output artifact path given with -o")
	}
	outputPath := must.M1(fsutil.ReplaceTildeInDir(*flagOutput))
	g, err := mergeArtifacts(outputPath, *flagMerge, loaderOptions(false)...)
	if err != nil {
		klog.Fatalf("Failed to merge: %+v", err)
	}
	fmt.Print(renderGraph(g))
	fmt.Printf("Artifact written to %q\n", outputPath)
}

// mergeArtifacts loads the artifacts in filePaths, merges their graphs and writes the result to outputPath.
func mergeArtifacts(outputPath string, filePaths []string, options ...artifact.Option) (*graph.Graph, error) {
	graphs := make([]*graph.Graph, len(filePaths))
	for ii, filePath := range filePaths {
		var err error
		graphs[ii], err = artifact.ReadFile(filePath, options...)
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("merge: loaded %q with %d node(s)", filePath, graphs[ii].NumNodes())
	}
	merged, err := graph.Merge(graphs...)
	if err != nil {
		return nil, err
	}
	if err = artifact.WriteFile(outputPath, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// run implements -run.
func run() {
	outputs, err := runArtifact(*flagRun, *flagInputs, loaderOptions(false)...)
	if err != nil {
		klog.Fatalf("Failed to run %q: %+v", *flagRun, err)
	}
	fmt.Print(renderTensors("Outputs", outputs))
}

// runArtifact loads the artifact in filePath and executes it with the values of inputs.
func runArtifact(filePath string, inputs []input, options ...artifact.Option) ([]*tensors.Tensor, error) {
	g, err := artifact.ReadFile(filePath, options...)
	if err != nil {
		return nil, err
	}
	values := make([]*tensors.Tensor, len(inputs))
	for ii, in := range inputs {
		if in.value == nil {
			return nil, errors.Errorf("-input %q has no values, required to execute the artifact", in)
		}
		if !in.spec.Matches(in.value.Shape()) {
			return nil, errors.Errorf("-input %q values don't match its specification", in)
		}
		values[ii] = in.value
	}
	return executor.Exec(g, values...)
}
