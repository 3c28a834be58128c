package evaluator

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ValueToJSON marshals a Value to JSON bytes.
// Numbers output integers without decimal point. Functions are rendered as
// {"function": {"name": ..., "params": [...]}}; the absent value is null.
func ValueToJSON(v Value) ([]byte, error) {
	return json.Marshal(valueToRaw(v))
}

type functionJSON struct {
	Name   string   `json:"name,omitempty"`
	Params []string `json:"params"`
}

func valueToRaw(v Value) any {
	switch val := v.(type) {
	case nil:
		return nil

	case Number:
		// Output integers without decimal point
		if val.Value == math.Trunc(val.Value) && !math.IsInf(val.Value, 0) && !math.IsNaN(val.Value) {
			if val.Value >= math.MinInt64 && val.Value <= math.MaxInt64 {
				return int64(val.Value)
			}
		}
		if math.IsInf(val.Value, 0) || math.IsNaN(val.Value) {
			// JSON has no encoding for these.
			return FormatNumber(val.Value)
		}
		return val.Value

	case Boolean:
		return val.Value

	case Function:
		return map[string]functionJSON{
			"function": {Name: val.Closure.Name(), Params: val.Closure.Params()},
		}
	}

	return nil
}

// ValueToJSONString is a convenience that returns a string.
func ValueToJSONString(v Value) string {
	b, err := ValueToJSON(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// FormatValue renders v for humans: 89, true, fn fib(n), undefined.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "undefined"
	case Number:
		return FormatNumber(val.Value)
	case Boolean:
		return strconv.FormatBool(val.Value)
	case Function:
		label := "fn"
		if n := val.Closure.Name(); n != "" {
			label += " " + n
		}
		return label + "(" + strings.Join(val.Closure.Params(), ", ") + ")"
	}
	return "unknown"
}

// FormatNumber formats a float64 without exponent or trailing zeros, so
// whole numbers print as integers.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
