package tensors

import (
	"strconv"
	"strings"

	"github.com/gomlx/tracefreeze/pkg/core/dtypes"
	"github.com/gomlx/tracefreeze/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Parse creates a tensor of the given (fully concrete) shape from the textual representation of its
// flat values. Strings are taken verbatim.
func Parse(shape shapes.Shape, fields []string) (*Tensor, error) {
	if !shape.IsFullyConcrete() {
		return nil, errors.Errorf("cannot parse values for shape %s, it must be valid and not ragged", shape)
	}
	size, err := shape.CheckedSize()
	if err != nil {
		return nil, err
	}
	if len(fields) != size {
		return nil, errors.Errorf("shape %s requires %d values, got %d", shape, size, len(fields))
	}
	var flat any
	switch shape.DType {
	case dtypes.Float32:
		flat, err = parseFields(fields, func(s string) (float32, error) {
			v, err := strconv.ParseFloat(s, 32)
			return float32(v), err
		})
	case dtypes.Float64:
		flat, err = parseFields(fields, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
	case dtypes.Int32:
		flat, err = parseFields(fields, func(s string) (int32, error) {
			v, err := strconv.ParseInt(s, 10, 32)
			return int32(v), err
		})
	case dtypes.Int64:
		flat, err = parseFields(fields, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
	case dtypes.String:
		strs := make([]string, len(fields))
		copy(strs, fields)
		flat = strs
	default:
		return nil, errors.Errorf("cannot parse values of dtype %s", shape.DType)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing values for shape %s", shape)
	}
	return FromFlat(shape, flat)
}

func parseFields[T dtypes.Number](fields []string, parseFn func(string) (T, error)) ([]T, error) {
	values := make([]T, len(fields))
	for ii, field := range fields {
		v, err := parseFn(strings.TrimSpace(field))
		if err != nil {
			return nil, errors.Wrapf(err, "value #%d (%q)", ii, field)
		}
		values[ii] = v
	}
	return values, nil
}
