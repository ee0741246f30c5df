package artifact

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Serialize the graph into an artifact. The output is deterministic: equal graphs always yield
// byte-identical artifacts.
func Serialize(g *graph.Graph) ([]byte, error) {
	if g == nil {
		return nil, errors.New("cannot serialize a nil graph")
	}
	var body []byte
	for _, op := range g.Ops() {
		body = appendFixed32(body, fieldCatalog, uint32(op))
	}
	for _, input := range g.Inputs() {
		body = appendMessage(body, fieldInput, appendTensorSpec(nil, input))
	}
	for _, node := range g.Nodes() {
		encoded, err := appendNode(nil, &node)
		if err != nil {
			return nil, err
		}
		body = appendMessage(body, fieldNode, encoded)
	}
	for _, ref := range g.Outputs() {
		body = appendMessage(body, fieldOutput, appendRef(nil, ref))
	}

	data := make([]byte, 0, headerSize+len(body)+checksumSize)
	data = append(data, Magic...)
	data = binary.LittleEndian.AppendUint32(data, FormatVersion)
	data = append(data, body...)
	checksum := sha256.Sum256(data)
	data = append(data, checksum[:]...)
	return data, nil
}

func appendFixed32(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func appendSFixed64(b []byte, num protowire.Number, v int) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, uint64(int64(v)))
}

func appendMessage(b []byte, num protowire.Number, message []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, message)
}

func appendTensorSpec(b []byte, spec shapes.Shape) []byte {
	b = appendFixed32(b, fieldSpecDType, uint32(spec.DType))
	for _, dim := range spec.Dimensions {
		b = appendSFixed64(b, fieldSpecDim, dim)
	}
	return b
}

func appendRef(b []byte, ref graph.Ref) []byte {
	b = appendFixed32(b, fieldRefKind, uint32(ref.Kind))
	return appendFixed32(b, fieldRefIndex, uint32(ref.Index))
}

func appendNode(b []byte, node *graph.Node) ([]byte, error) {
	b = appendFixed32(b, fieldNodeOp, uint32(node.Op))
	for _, ref := range node.Inputs {
		if ref.Index < 0 || int64(ref.Index) > math.MaxUint32 {
			return nil, errors.Errorf("node %s has reference %s out of range", node, ref)
		}
		b = appendMessage(b, fieldNodeInput, appendRef(nil, ref))
	}
	for _, attr := range node.Attributes {
		encoded := appendFixed32(nil, fieldAttrKey, uint32(attr.Key))
		for _, v := range attr.Values {
			encoded = appendSFixed64(encoded, fieldAttrValue, v)
		}
		b = appendMessage(b, fieldNodeAttribute, encoded)
	}
	b = appendMessage(b, fieldNodeOutput, appendTensorSpec(nil, node.Output))
	var runtimeCheck uint32
	if node.RuntimeShapeCheck {
		runtimeCheck = 1
	}
	return appendFixed32(b, fieldNodeRuntimeCheck, runtimeCheck), nil
}
