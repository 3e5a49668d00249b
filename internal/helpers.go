package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Arg returns the URL argument name as T, or the zero value when it is
// missing or of another type.
func Arg[T any](c Context, name string) T {
	v, _ := c.Arg(name).(T)
	return v
}

// Param returns the request parameter name converted to T.
func Param[T ~string | ~int | ~int64 | ~float64 | ~bool](c Context, name string) T {
	v, _ := convertParam[T](c.Param(name))
	return v
}

// ParamDefault retrieves a typed parameter with a default value.
// Returns defaultValue if the parameter is missing or cannot be converted.
func ParamDefault[T ~string | ~int | ~int64 | ~float64 | ~bool](c Context, name string, defaultValue T) T {
	raw := c.Param(name)
	if raw == nil || raw == "" {
		return defaultValue
	}
	v, ok := convertParam[T](raw)
	if !ok {
		return defaultValue
	}
	return v
}

// convertParam converts a parameter value to the target type T. Form
// values arrive as strings, JSON-RPC values as json.Number, bool or string.
func convertParam[T ~string | ~int | ~int64 | ~float64 | ~bool](v any) (T, bool) {
	var zero T
	if t, ok := v.(T); ok {
		return t, true
	}
	var raw string
	switch x := v.(type) {
	case nil:
		return zero, false
	case string:
		raw = x
	case json.Number:
		raw = x.String()
	case []string:
		if len(x) == 0 {
			return zero, false
		}
		raw = x[0]
	default:
		raw = fmt.Sprint(x)
	}

	switch any(zero).(type) {
	case string:
		return any(raw).(T), true
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return zero, false
		}
		return any(n).(T), true
	case int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return zero, false
		}
		return any(n).(T), true
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return zero, false
		}
		return any(f).(T), true
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return zero, false
		}
		return any(b).(T), true
	}
	return zero, false
}
