package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gomlx/tracefreeze/pkg/core/artifact"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/support/xslices"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Output formats of -inspect.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// artifactDocument is the machine-readable description of an artifact, printed by -inspect with
// -format json or yaml.
type artifactDocument struct {
	File       string           `json:"file" yaml:"file"`
	Version    uint32           `json:"version" yaml:"version"`
	Size       int              `json:"size" yaml:"size"`
	Checksum   string           `json:"checksum" yaml:"checksum"`
	Operations []string         `json:"operations" yaml:"operations"`
	Warning    string           `json:"warning,omitempty" yaml:"warning,omitempty"`
	Inputs     []inputDocument  `json:"inputs" yaml:"inputs"`
	Nodes      []nodeDocument   `json:"nodes" yaml:"nodes"`
	Outputs    []outputDocument `json:"outputs" yaml:"outputs"`
}

type inputDocument struct {
	Ref        string `json:"ref" yaml:"ref"`
	DType      string `json:"dtype" yaml:"dtype"`
	Dimensions []int  `json:"dimensions" yaml:"dimensions,flow"`
}

type nodeDocument struct {
	Ref               string           `json:"ref" yaml:"ref"`
	Op                string           `json:"op" yaml:"op"`
	Inputs            []string         `json:"inputs" yaml:"inputs,flow"`
	Attributes        map[string][]int `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Output            string           `json:"output" yaml:"output"`
	RuntimeShapeCheck bool             `json:"runtime_shape_check" yaml:"runtime_shape_check"`
}

type outputDocument struct {
	Ref  string `json:"ref" yaml:"ref"`
	Spec string `json:"spec" yaml:"spec"`
}

// newArtifactDocument describes the artifact in filePath, with the given header and graph.
func newArtifactDocument(filePath string, header artifact.Header, g *graph.Graph) *artifactDocument {
	doc := &artifactDocument{
		File:       filePath,
		Version:    header.Version,
		Size:       header.Size,
		Checksum:   fmt.Sprintf("%x", header.Checksum),
		Operations: xslices.Map(header.Catalog, optypes.OpType.String),
		Inputs:     []inputDocument{},
		Nodes:      []nodeDocument{},
		Outputs:    []outputDocument{},
	}
	for ii, spec := range g.Inputs() {
		dims := spec.Dimensions
		if dims == nil {
			dims = []int{}
		}
		doc.Inputs = append(doc.Inputs, inputDocument{
			Ref: graph.InputRef(ii).String(), DType: spec.DType.String(), Dimensions: dims})
	}
	for ii, node := range g.Nodes() {
		nodeDoc := nodeDocument{
			Ref:               graph.NodeRef(ii).String(),
			Op:                node.Op.String(),
			Inputs:            xslices.Map(node.Inputs, graph.Ref.String),
			Output:            node.Output.String(),
			RuntimeShapeCheck: node.RuntimeShapeCheck,
		}
		if len(node.Attributes) > 0 {
			nodeDoc.Attributes = make(map[string][]int, len(node.Attributes))
			for _, attr := range node.Attributes {
				nodeDoc.Attributes[attr.Key.String()] = append([]int{}, attr.Values...)
			}
		}
		doc.Nodes = append(doc.Nodes, nodeDoc)
	}
	outputShapes := g.OutputShapes()
	for ii, ref := range g.Outputs() {
		doc.Outputs = append(doc.Outputs, outputDocument{Ref: ref.String(), Spec: outputShapes[ii].String()})
	}
	return doc
}

// inspectDocument describes the artifact in filePath in the given format, json or yaml.
func inspectDocument(filePath, format string, options ...artifact.Option) (string, error) {
	header, g, warning, err := loadForInspection(filePath, options...)
	if err != nil {
		return "", err
	}
	doc := newArtifactDocument(filePath, header, g)
	if warning != nil {
		doc.Warning = warning.Error()
	}
	var encoded []byte
	switch strings.ToLower(format) {
	case formatJSON:
		encoded, err = json.MarshalIndent(doc, "", "  ")
		encoded = append(encoded, '\n')
	case formatYAML:
		encoded, err = yaml.Marshal(doc)
	default:
		return "", errors.Errorf("unknown output format %q, valid values are %q, %q and %q",
			format, formatTable, formatJSON, formatYAML)
	}
	if err != nil {
		return "", errors.Wrapf(err, "encoding %q as %s", filePath, format)
	}
	return string(encoded), nil
}
