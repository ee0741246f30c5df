// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package artifact serializes a frozen graph.Graph to a portable, versioned binary artifact and
// loads it back.
//
// Serialization is deterministic: the same Graph always yields byte-identical artifacts, since
// the order of inputs, nodes and outputs is preserved verbatim and all numeric fields have a fixed
// width and endianness. Loading an artifact yields a Graph structurally equal to the serialized one.
//
// # Format (version 1)
//
//	[0:4]     magic "TRFZ"
//	[4:8]     format version, uint32 little-endian
//	[8:n-32]  body, a protocol buffers wire-format message (fields in ascending order):
//	            1: catalog op id (fixed32, repeated): sorted set of ops the artifact contains
//	            2: input TensorSpec (message, repeated)
//	            3: node (message, repeated), in topological order
//	            4: output Ref (message, repeated)
//	[n-32:n]  SHA-256 of bytes [0:n-32]
//
// Sub-messages:
//
//	TensorSpec { 1: dtype fixed32; 2: dimension sfixed64 repeated, -1 for ragged }
//	Node       { 1: op fixed32; 2: input Ref repeated; 3: Attribute repeated;
//	             4: output TensorSpec; 5: runtime shape check fixed32 (0 or 1) }
//	Ref        { 1: kind fixed32 (0=input, 1=node); 2: index fixed32 }
//	Attribute  { 1: key fixed32; 2: value sfixed64 repeated }
//
// The protocol buffers encoding is only used as a tag-length-value container: there is no .proto
// schema, and unknown fields are rejected.
package artifact

import (
	"fmt"
	"slices"

	"github.com/gomlx/tracefreeze/pkg/core/optypes"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// Magic bytes at the start of every artifact.
	Magic = "TRFZ"

	// FormatVersion written by Serialize. Loaders reject any other version.
	FormatVersion uint32 = 1

	// Extension conventionally used for artifact files.
	Extension = ".tfz"

	headerSize   = 8
	checksumSize = 32
)

// Body field numbers.
const (
	fieldCatalog protowire.Number = 1
	fieldInput   protowire.Number = 2
	fieldNode    protowire.Number = 3
	fieldOutput  protowire.Number = 4
)

// TensorSpec field numbers.
const (
	fieldSpecDType protowire.Number = 1
	fieldSpecDim   protowire.Number = 2
)

// Node field numbers.
const (
	fieldNodeOp           protowire.Number = 1
	fieldNodeInput        protowire.Number = 2
	fieldNodeAttribute    protowire.Number = 3
	fieldNodeOutput       protowire.Number = 4
	fieldNodeRuntimeCheck protowire.Number = 5
)

// Ref field numbers.
const (
	fieldRefKind  protowire.Number = 1
	fieldRefIndex protowire.Number = 2
)

// Attribute field numbers.
const (
	fieldAttrKey   protowire.Number = 1
	fieldAttrValue protowire.Number = 2
)

// Kinds of FormatError, usable with errors.Is.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrChecksumMismatch   = errors.New("checksum mismatch: artifact may be corrupted")
	ErrMalformed          = errors.New("malformed artifact")
)

// FormatError is returned when the artifact bytes don't match the recognized format: bad magic,
// unknown version, checksum mismatch or malformed body. Artifacts are never partially loaded.
type FormatError struct {
	// Kind is one of ErrInvalidMagic, ErrUnsupportedVersion, ErrChecksumMismatch or ErrMalformed.
	Kind error

	// Details about the failure.
	Details string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("artifact format error: %v", e.Kind)
	}
	return fmt.Sprintf("artifact format error: %v: %s", e.Kind, e.Details)
}

// Unwrap returns the kind of the error.
func (e *FormatError) Unwrap() error { return e.Kind }

// formatErrorf creates a *FormatError with a stack trace.
func formatErrorf(kind error, format string, args ...any) error {
	return errors.WithStack(&FormatError{Kind: kind, Details: fmt.Sprintf(format, args...)})
}

// CatalogError is returned when an artifact uses operations the Loader doesn't support.
// It lists all of them, so a caller can report or degrade gracefully (see WithPartialCatalog).
type CatalogError struct {
	// Unsupported operations, sorted.
	Unsupported []optypes.OpType

	// Supported is the catalog of the Loader.
	Supported []optypes.OpType
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	return fmt.Sprintf("artifact uses operations %v not supported by the loader catalog %v", e.Unsupported, e.Supported)
}

// Header holds the information of an artifact available without decoding its graph. See Peek.
type Header struct {
	// Version of the format.
	Version uint32

	// Catalog is the catalog-compatibility tag: the sorted set of ops the artifact contains.
	// It may include op ids unknown to this build.
	Catalog []optypes.OpType

	// NumInputs, NumNodes and NumOutputs of the serialized graph.
	NumInputs, NumNodes, NumOutputs int

	// Size of the artifact in bytes.
	Size int

	// Checksum is the SHA-256 trailer.
	Checksum [checksumSize]byte
}

// unsupportedBy returns the ops of the header's catalog tag that are not in catalog, sorted.
func (h *Header) unsupportedBy(catalog []optypes.OpType) []optypes.OpType {
	var unsupported []optypes.OpType
	for _, op := range h.Catalog {
		if !slices.Contains(catalog, op) {
			unsupported = append(unsupported, op)
		}
	}
	return unsupported
}
