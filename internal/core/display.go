package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ToDisplayString converts a decoded JSON value to the text shown in a table
// cell or a section line.
//
//	nil             "null"
//	bool            "true" / "false"
//	json.Number     the literal as received
//	other numbers   shortest decimal form ("1e+21" style above 1e21)
//	string          unchanged
//	arrays, objects compact JSON
//
// A missing key is not a value; callers render it as "" (see CellValue).
func ToDisplayString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case *Object, []any, map[string]any:
		b, err := encodeCompact(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// CellValue returns the display string for key in rec, or "" when the record
// lacks the key or is not an object.
func CellValue(rec any, key string) string {
	obj, ok := rec.(*Object)
	if !ok {
		return ""
	}
	v, ok := obj.Get(key)
	if !ok {
		return ""
	}
	return ToDisplayString(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if abs := math.Abs(f); abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
