package dataprocessing

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

// Decoded is a decoded object whose attributes can be looked up by keyword.
type Decoded interface {
	Lookup(name string) (any, bool)
}

// MapRecord is a Decoded backed by a plain map.
type MapRecord map[string]any

// Lookup implements Decoded.
func (m MapRecord) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Extract projects decoded onto attributes. Attributes the object does not
// carry, or carries with an empty value, are absent in the result. Repeated
// attribute names keep their first position. Extract performs no I/O and
// fails only when decoded is not a usable record.
func Extract(decoded Decoded, attributes []string) (domain.AttributeRecord, error) {
	if isNil(decoded) {
		return domain.AttributeRecord{}, errors.NewExtractionError("decoded record is nil", nil)
	}
	if len(attributes) == 0 {
		return domain.AttributeRecord{}, errors.NewExtractionError("attribute list is empty", nil)
	}

	values := make(map[string]string, len(attributes))
	for _, name := range attributes {
		if _, done := values[name]; done {
			continue
		}
		v, ok := decoded.Lookup(name)
		if !ok {
			continue
		}
		if s := FormatValue(v); s != "" {
			values[name] = s
		}
	}
	return domain.NewAttributeRecord(attributes, values), nil
}

// FormatValue renders a decoded attribute value as a table cell. A single
// element collapses to its scalar; multiple elements render as a quoted
// list, e.g. ['ORIGINAL', 'PRIMARY']. Binary values render as absent.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return trimPadding(x)
	case []string:
		parts := make([]string, 0, len(x))
		for _, s := range x {
			parts = append(parts, trimPadding(s))
		}
		return joinValues(parts)
	case []byte:
		return ""
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case float64:
		return formatFloat(x)
	case []int:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.Itoa(n)
		}
		return joinValues(parts)
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = formatFloat(f)
		}
		return joinValues(parts)
	case fmt.Stringer:
		return trimPadding(x.String())
	default:
		return trimPadding(fmt.Sprint(x))
	}
}

func joinValues(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// trimPadding drops the space and NUL padding of even-length DICOM values.
func trimPadding(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "\x00")
}

func isNil(d Decoded) bool {
	if d == nil {
		return true
	}
	rv := reflect.ValueOf(d)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Func:
		return rv.IsNil()
	}
	return false
}
