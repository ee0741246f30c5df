package tensors

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
)

// TensorStringDefaultPrecision used by Tensor.String.
const TensorStringDefaultPrecision = 4

// String converts to string, if not too large. It uses t.Summary(precision=4).
func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Summary(TensorStringDefaultPrecision)
}

// Summary returns a multi-line summary of the Tensor's content.
// Inspired by numpy output: rows longer than 6 elements and more than 6 rows are elided.
func (t *Tensor) Summary(precision int) string {
	if t.shape.IsZeroSize() {
		return t.shape.String()
	}

	var buf bytes.Buffer
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }
	wValue := func(v reflect.Value) {
		switch v.Kind() {
		case reflect.Int32, reflect.Int64:
			w("%d", v.Int())
		case reflect.String:
			w("%q", v.String())
		default:
			w("%.*g", precision, v.Interface())
		}
	}

	values := reflect.ValueOf(t.flat)
	dims := t.shape.Dimensions
	for _, dim := range dims {
		w("[%d]", dim)
	}
	w("%s", values.Type().Elem())
	if len(dims) == 0 {
		w("(")
		wValue(values.Index(0))
		w(")")
		return buf.String()
	}

	var printElements func(index, indent int, currentShape []int)
	printElements = func(index, indent int, currentShape []int) {
		if len(currentShape) == 1 {
			w("{")
			for ii := range currentShape[0] {
				if currentShape[0] > 6 && ii >= 3 && ii < currentShape[0]-3 {
					if ii == 3 {
						w(", ...")
					}
					continue
				}
				if ii > 0 {
					w(", ")
				}
				wValue(values.Index(index + ii))
			}
			w("}")
			return
		}

		stride := 1
		for _, dim := range currentShape[1:] {
			stride *= dim
		}
		w("{")
		if indent == -1 {
			if currentShape[0] > 1 {
				w("\n ")
			}
			indent = 1
		}
		indentStr := strings.Repeat(" ", indent)
		for ii := range currentShape[0] {
			if currentShape[0] > 6 && ii >= 3 && ii < currentShape[0]-3 {
				if ii == 3 {
					w(",\n%s...", indentStr)
				}
				continue
			}
			if ii > 0 {
				w(",\n%s", indentStr)
			}
			printElements(index+ii*stride, indent+1, currentShape[1:])
		}
		w("}")
	}
	printElements(0, -1, dims)
	return buf.String()
}
