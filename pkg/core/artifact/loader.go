package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"slices"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/graph"
	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"k8s.io/klog/v2"
)

// Loader reconstructs graphs from artifacts. Its catalog is the set of operations it accepts,
// by default the full optypes.Catalog().
//
// A Loader is immutable and can be used concurrently.
type Loader struct {
	catalog []optypes.OpType
	partial bool
}

// Option configures a Loader.
type Option func(l *Loader)

// WithCatalog restricts the operations the Loader accepts, e.g. to mirror a runtime that only
// implements some of them.
func WithCatalog(ops ...optypes.OpType) Option {
	return func(l *Loader) {
		l.catalog = slices.Clone(ops)
		slices.Sort(l.catalog)
		l.catalog = slices.Compact(l.catalog)
	}
}

// WithPartialCatalog makes the Loader forward-compatible: if the artifact uses operations outside its
// catalog, but known to this build, the graph is still returned along with a *CatalogError listing
// them, so the caller can degrade gracefully. Operation ids unknown to this build can't be decoded,
// and only the *CatalogError is returned.
func WithPartialCatalog() Option {
	return func(l *Loader) {
		l.partial = true
	}
}

// NewLoader creates a Loader with the given options.
func NewLoader(options ...Option) *Loader {
	l := &Loader{catalog: optypes.Catalog()}
	for _, option := range options {
		option(l)
	}
	return l
}

// Catalog returns the operations accepted by the Loader.
func (l *Loader) Catalog() []optypes.OpType { return slices.Clone(l.catalog) }

// Deserialize is a shortcut to NewLoader(options...).Load(data).
func Deserialize(data []byte, options ...Option) (*graph.Graph, error) {
	return NewLoader(options...).Load(data)
}

// Load reconstructs the graph serialized in data.
//
// It fails with a *FormatError if the data is not a valid artifact of a recognized version, and
// with a *CatalogError if the artifact's catalog-compatibility tag lists operations outside the
// Loader's catalog (see WithPartialCatalog).
func (l *Loader) Load(data []byte) (*graph.Graph, error) {
	header, fields, err := parseArtifact(data)
	if err != nil {
		return nil, err
	}
	var catalogErr error
	if unsupported := header.unsupportedBy(l.catalog); len(unsupported) > 0 {
		catalogErr = errors.WithStack(&CatalogError{Unsupported: unsupported, Supported: slices.Clone(l.catalog)})
		if !l.partial || slices.ContainsFunc(unsupported, func(op optypes.OpType) bool { return !op.IsValid() }) {
			return nil, catalogErr
		}
	}
	g, err := decodeGraph(&header, fields)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("artifact: loaded graph with %d input(s), %d node(s), %d output(s), ops %v",
		g.NumInputs(), g.NumNodes(), len(g.Outputs()), header.Catalog)
	return g, catalogErr
}

// Peek returns the header of the artifact, verifying its magic, version, checksum and top-level
// structure, without decoding the graph.
func Peek(data []byte) (Header, error) {
	header, _, err := parseArtifact(data)
	return header, err
}

// field is one decoded protowire field.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	fixed uint64 // For Fixed32Type and Fixed64Type.
	bytes []byte // For BytesType.
}

// parseFields decodes all the fields of a message. Only fixed-width and length-delimited
// wire types are used by the format.
func parseFields(b []byte, what string) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, formatErrorf(ErrMalformed, "%s: %v", what, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.fixed = uint64(v)
		case protowire.Fixed64Type:
			f.fixed, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			return nil, formatErrorf(ErrMalformed, "%s: field %d has unexpected wire type %d", what, num, typ)
		}
		if n < 0 {
			return nil, formatErrorf(ErrMalformed, "%s: field %d: %v", what, num, protowire.ParseError(n))
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

// checkType returns a FormatError if the field doesn't have the wire type typ.
func (f *field) checkType(typ protowire.Type, what string) error {
	if f.typ != typ {
		return formatErrorf(ErrMalformed, "%s: field %d has wire type %d, expected %d", what, f.num, f.typ, typ)
	}
	return nil
}

// parseArtifact verifies the envelope of the artifact (magic, version, checksum) and parses the
// top-level fields of the body.
func parseArtifact(data []byte) (header Header, fields []field, err error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], []byte(Magic)) {
		return header, nil, formatErrorf(ErrInvalidMagic, "artifact doesn't start with %q", Magic)
	}
	if len(data) < headerSize {
		return header, nil, formatErrorf(ErrMalformed, "artifact truncated to %d bytes", len(data))
	}
	header.Version = binary.LittleEndian.Uint32(data[len(Magic):headerSize])
	if header.Version != FormatVersion {
		return header, nil, formatErrorf(ErrUnsupportedVersion, "artifact version %d, this loader only reads version %d",
			header.Version, FormatVersion)
	}
	if len(data) < headerSize+checksumSize {
		return header, nil, formatErrorf(ErrMalformed, "artifact truncated to %d bytes", len(data))
	}
	header.Size = len(data)
	contentEnd := len(data) - checksumSize
	copy(header.Checksum[:], data[contentEnd:])
	if sha256.Sum256(data[:contentEnd]) != header.Checksum {
		return header, nil, formatErrorf(ErrChecksumMismatch, "")
	}

	fields, err = parseFields(data[headerSize:contentEnd], "artifact body")
	if err != nil {
		return header, nil, err
	}
	var lastNum protowire.Number
	for ii := range fields {
		f := &fields[ii]
		if f.num < lastNum {
			return header, nil, formatErrorf(ErrMalformed, "artifact body: field %d after field %d", f.num, lastNum)
		}
		lastNum = f.num
		switch f.num {
		case fieldCatalog:
			if err = f.checkType(protowire.Fixed32Type, "catalog tag"); err != nil {
				return header, nil, err
			}
			op := optypes.OpType(int32(uint32(f.fixed)))
			if n := len(header.Catalog); n > 0 && op <= header.Catalog[n-1] {
				return header, nil, formatErrorf(ErrMalformed, "catalog tag must be sorted without duplicates, got %s after %s",
					op, header.Catalog[n-1])
			}
			header.Catalog = append(header.Catalog, op)
		case fieldInput, fieldNode, fieldOutput:
			if err = f.checkType(protowire.BytesType, "artifact body"); err != nil {
				return header, nil, err
			}
			switch f.num {
			case fieldInput:
				header.NumInputs++
			case fieldNode:
				header.NumNodes++
			default:
				header.NumOutputs++
			}
		default:
			return header, nil, formatErrorf(ErrMalformed, "artifact body: unknown field %d", f.num)
		}
	}
	return header, fields, nil
}

// decodeGraph decodes the graph parts and validates the graph.
func decodeGraph(header *Header, fields []field) (*graph.Graph, error) {
	inputs := make([]shapes.Shape, 0, header.NumInputs)
	nodes := make([]graph.Node, 0, header.NumNodes)
	outputs := make([]graph.Ref, 0, header.NumOutputs)
	for ii := range fields {
		f := &fields[ii]
		switch f.num {
		case fieldInput:
			spec, err := decodeTensorSpec(f.bytes)
			if err != nil {
				return nil, errors.WithMessagef(err, "graph input #%d", len(inputs))
			}
			inputs = append(inputs, spec)
		case fieldNode:
			node, err := decodeNode(f.bytes)
			if err != nil {
				return nil, errors.WithMessagef(err, "node #%d", len(nodes))
			}
			if !slices.Contains(header.Catalog, node.Op) {
				return nil, formatErrorf(ErrMalformed, "node #%d uses %s, which is not declared in the catalog tag %v",
					len(nodes), node.Op, header.Catalog)
			}
			nodes = append(nodes, node)
		case fieldOutput:
			ref, err := decodeRef(f.bytes)
			if err != nil {
				return nil, errors.WithMessagef(err, "graph output #%d", len(outputs))
			}
			outputs = append(outputs, ref)
		}
	}
	g, err := graph.New(inputs, nodes, outputs)
	if err != nil {
		return nil, formatErrorf(ErrMalformed, "invalid graph: %v", err)
	}
	return g, nil
}

// decodeFixed32Once is used for the fields that must appear exactly once.
func decodeFixed32Once(f *field, seen *bool, what string) (uint32, error) {
	if err := f.checkType(protowire.Fixed32Type, what); err != nil {
		return 0, err
	}
	if *seen {
		return 0, formatErrorf(ErrMalformed, "%s: field %d repeated", what, f.num)
	}
	*seen = true
	return uint32(f.fixed), nil
}

func decodeTensorSpec(b []byte) (shapes.Shape, error) {
	const what = "TensorSpec"
	fields, err := parseFields(b, what)
	if err != nil {
		return shapes.Invalid(), err
	}
	var dtypeSeen bool
	var dtype dtypes.DType
	dims := []int{}
	for ii := range fields {
		f := &fields[ii]
		switch f.num {
		case fieldSpecDType:
			v, err := decodeFixed32Once(f, &dtypeSeen, what)
			if err != nil {
				return shapes.Invalid(), err
			}
			dtype = dtypes.DType(int32(v))
			if !dtype.IsValid() {
				return shapes.Invalid(), formatErrorf(ErrMalformed, "%s: invalid dtype %s", what, dtype)
			}
		case fieldSpecDim:
			if err := f.checkType(protowire.Fixed64Type, what); err != nil {
				return shapes.Invalid(), err
			}
			dim := int64(f.fixed)
			if dim < shapes.RaggedDim || int64(int(dim)) != dim {
				return shapes.Invalid(), formatErrorf(ErrMalformed, "%s: invalid dimension %d", what, dim)
			}
			dims = append(dims, int(dim))
		default:
			return shapes.Invalid(), formatErrorf(ErrMalformed, "%s: unknown field %d", what, f.num)
		}
	}
	if !dtypeSeen {
		return shapes.Invalid(), formatErrorf(ErrMalformed, "%s: missing dtype", what)
	}
	return shapes.Make(dtype, dims...), nil
}

func decodeRef(b []byte) (graph.Ref, error) {
	const what = "Ref"
	fields, err := parseFields(b, what)
	if err != nil {
		return graph.Ref{}, err
	}
	var kindSeen, indexSeen bool
	var ref graph.Ref
	for ii := range fields {
		f := &fields[ii]
		switch f.num {
		case fieldRefKind:
			v, err := decodeFixed32Once(f, &kindSeen, what)
			if err != nil {
				return graph.Ref{}, err
			}
			ref.Kind = graph.RefKind(int32(v))
		case fieldRefIndex:
			v, err := decodeFixed32Once(f, &indexSeen, what)
			if err != nil {
				return graph.Ref{}, err
			}
			ref.Index = int(v)
		default:
			return graph.Ref{}, formatErrorf(ErrMalformed, "%s: unknown field %d", what, f.num)
		}
	}
	if !kindSeen || !indexSeen {
		return graph.Ref{}, formatErrorf(ErrMalformed, "%s: missing kind or index", what)
	}
	if ref.Kind != graph.RefInput && ref.Kind != graph.RefNode {
		return graph.Ref{}, formatErrorf(ErrMalformed, "%s: invalid kind %s", what, ref.Kind)
	}
	return ref, nil
}

func decodeAttribute(b []byte) (graph.Attribute, error) {
	const what = "Attribute"
	fields, err := parseFields(b, what)
	if err != nil {
		return graph.Attribute{}, err
	}
	var keySeen bool
	var attr graph.Attribute
	for ii := range fields {
		f := &fields[ii]
		switch f.num {
		case fieldAttrKey:
			v, err := decodeFixed32Once(f, &keySeen, what)
			if err != nil {
				return graph.Attribute{}, err
			}
			attr.Key = graph.AttrKey(int32(v))
			if !attr.Key.IsValid() {
				return graph.Attribute{}, formatErrorf(ErrMalformed, "%s: unknown key %s", what, attr.Key)
			}
		case fieldAttrValue:
			if err := f.checkType(protowire.Fixed64Type, what); err != nil {
				return graph.Attribute{}, err
			}
			value := int64(f.fixed)
			if int64(int(value)) != value {
				return graph.Attribute{}, formatErrorf(ErrMalformed, "%s: value %d out of range", what, value)
			}
			attr.Values = append(attr.Values, int(value))
		default:
			return graph.Attribute{}, formatErrorf(ErrMalformed, "%s: unknown field %d", what, f.num)
		}
	}
	if !keySeen {
		return graph.Attribute{}, formatErrorf(ErrMalformed, "%s: missing key", what)
	}
	if attr.Values == nil {
		attr.Values = []int{}
	}
	return attr, nil
}

func decodeNode(b []byte) (graph.Node, error) {
	const what = "Node"
	fields, err := parseFields(b, what)
	if err != nil {
		return graph.Node{}, err
	}
	var opSeen, outputSeen, runtimeCheckSeen bool
	var node graph.Node
	for ii := range fields {
		f := &fields[ii]
		switch f.num {
		case fieldNodeOp:
			v, err := decodeFixed32Once(f, &opSeen, what)
			if err != nil {
				return graph.Node{}, err
			}
			node.Op = optypes.OpType(int32(v))
		case fieldNodeInput:
			if err := f.checkType(protowire.BytesType, what); err != nil {
				return graph.Node{}, err
			}
			ref, err := decodeRef(f.bytes)
			if err != nil {
				return graph.Node{}, err
			}
			node.Inputs = append(node.Inputs, ref)
		case fieldNodeAttribute:
			if err := f.checkType(protowire.BytesType, what); err != nil {
				return graph.Node{}, err
			}
			attr, err := decodeAttribute(f.bytes)
			if err != nil {
				return graph.Node{}, err
			}
			node.Attributes = append(node.Attributes, attr)
		case fieldNodeOutput:
			if err := f.checkType(protowire.BytesType, what); err != nil {
				return graph.Node{}, err
			}
			if outputSeen {
				return graph.Node{}, formatErrorf(ErrMalformed, "%s: output repeated", what)
			}
			outputSeen = true
			node.Output, err = decodeTensorSpec(f.bytes)
			if err != nil {
				return graph.Node{}, err
			}
		case fieldNodeRuntimeCheck:
			v, err := decodeFixed32Once(f, &runtimeCheckSeen, what)
			if err != nil {
				return graph.Node{}, err
			}
			if v > 1 {
				return graph.Node{}, formatErrorf(ErrMalformed, "%s: invalid runtime check flag %d", what, v)
			}
			node.RuntimeShapeCheck = v == 1
		default:
			return graph.Node{}, formatErrorf(ErrMalformed, "%s: unknown field %d", what, f.num)
		}
	}
	if !opSeen || !outputSeen || !runtimeCheckSeen {
		return graph.Node{}, formatErrorf(ErrMalformed, "%s: missing op, output or runtime check flag", what)
	}
	return node, nil
}
