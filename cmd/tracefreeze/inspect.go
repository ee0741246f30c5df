package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tracefreeze/pkg/core/artifact"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/tensors"
	"github.com/gomlx/tracefreeze/pkg/support/xslices"
	"github.com/pkg/errors"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FA0")).Bold(true)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

// loadForInspection reads the artifact in filePath and returns its header and graph.
//
// With a restricted loader catalog in partial mode, artifacts using unsupported operations are still
// loaded, and the *artifact.CatalogError is returned as a warning.
func loadForInspection(filePath string, options ...artifact.Option) (
	header artifact.Header, g *graph.Graph, warning *artifact.CatalogError, err error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		err = errors.Wrapf(err, "reading %q", filePath)
		return
	}
	header, err = artifact.Peek(data)
	if err != nil {
		err = errors.WithMessagef(err, "inspecting %q", filePath)
		return
	}
	g, err = artifact.Deserialize(data, options...)
	if err != nil {
		if g == nil || !errors.As(err, &warning) {
			return header, nil, nil, errors.WithMessagef(err, "loading %q", filePath)
		}
		err = nil
	}
	return
}

// inspect renders the header and the graph of the artifact in filePath as tables.
func inspect(filePath string, options ...artifact.Option) (string, error) {
	header, g, warning, err := loadForInspection(filePath, options...)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Artifact"))
	sb.WriteString("\n")
	table := newPlainTable(false)
	table.Row("file", filePath)
	table.Row("format version", fmt.Sprintf("%d", header.Version))
	table.Row("size", humanize.Bytes(uint64(header.Size)))
	table.Row("checksum (sha256)", fmt.Sprintf("%x", header.Checksum))
	table.Row("operations", fmt.Sprintf("%v", header.Catalog))
	table.Row("# inputs", humanize.Comma(int64(header.NumInputs)))
	table.Row("# nodes", humanize.Comma(int64(header.NumNodes)))
	table.Row("# outputs", humanize.Comma(int64(header.NumOutputs)))
	sb.WriteString(table.Render())
	sb.WriteString("\n")
	if warning != nil {
		sb.WriteString(warningStyle.Render(fmt.Sprintf("Warning: %v", warning)))
		sb.WriteString("\n")
	}
	sb.WriteString(renderGraph(g))
	return sb.String(), nil
}

// renderGraph renders tables with the inputs, nodes and outputs of g.
func renderGraph(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Inputs"))
	sb.WriteString("\n")
	table := newPlainTable(true).Headers("Ref", "Spec", "Size")
	for ii, spec := range g.Inputs() {
		size := "ragged"
		if spec.IsFullyConcrete() {
			size = humanize.Comma(int64(spec.Size()))
		}
		table.Row(graph.InputRef(ii).String(), spec.String(), size)
	}
	sb.WriteString(table.Render())
	sb.WriteString("\n")

	sb.WriteString(titleStyle.Render("Nodes"))
	sb.WriteString("\n")
	table = newPlainTable(true).Headers("Ref", "Op", "Inputs", "Attributes", "Output", "Runtime Check")
	for ii, node := range g.Nodes() {
		runtimeCheck := ""
		if node.RuntimeShapeCheck {
			runtimeCheck = "yes"
		}
		table.Row(graph.NodeRef(ii).String(), node.Op.String(),
			strings.Join(xslices.Map(node.Inputs, graph.Ref.String), ", "),
			strings.Join(xslices.Map(node.Attributes, graph.Attribute.String), ", "),
			node.Output.String(), runtimeCheck)
	}
	sb.WriteString(table.Render())
	sb.WriteString("\n")

	sb.WriteString(titleStyle.Render("Outputs"))
	sb.WriteString("\n")
	table = newPlainTable(true).Headers("#", "Ref", "Spec")
	outputShapes := g.OutputShapes()
	for ii, ref := range g.Outputs() {
		table.Row(fmt.Sprintf("%d", ii), ref.String(), outputShapes[ii].String())
	}
	sb.WriteString(table.Render())
	sb.WriteString("\n")
	return sb.String()
}

// renderTensors renders a table with the given tensors, e.g. the outputs of an execution.
func renderTensors(title string, values []*tensors.Tensor) string {
	table := newPlainTable(true).Headers("#", "Shape", "Value")
	for ii, t := range values {
		table.Row(fmt.Sprintf("%d", ii), t.Shape().String(), t.String())
	}
	return titleStyle.Render(title) + "\n" + table.Render() + "\n"
}
