// internal/agent/params.go
package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// actionParams wraps a decoded parameter object with typed accessors.
// Numbers may arrive as json.Number, float64 or numeric strings depending on the producer.
type actionParams map[string]any

func (p actionParams) has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func (p actionParams) requireString(key string) (string, error) {
	if !p.has(key) {
		return "", invalidParams("missing required parameter '%s'", key)
	}
	return p.optionalString(key, "")
}

func (p actionParams) optionalString(key, def string) (string, error) {
	if !p.has(key) {
		return def, nil
	}
	switch v := p[key].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64, int, int64, bool:
		return fmt.Sprint(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", invalidParams("parameter '%s' must be a string, got %T", key, v)
	}
}

func (p actionParams) requireInt(key string) (int, error) {
	if !p.has(key) {
		return 0, invalidParams("missing required parameter '%s'", key)
	}
	return p.optionalInt(key, 0)
}

func (p actionParams) optionalInt(key string, def int) (int, error) {
	if !p.has(key) {
		return def, nil
	}
	var f float64
	switch v := p[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		f = v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, invalidParams("parameter '%s' must be an integer, got %q", key, v.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, invalidParams("parameter '%s' must be an integer, got %q", key, v)
		}
		f = parsed
	case fmt.Stringer:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, invalidParams("parameter '%s' must be an integer, got %q", key, v.String())
		}
		f = parsed
	default:
		return 0, invalidParams("parameter '%s' must be an integer, got %T", key, v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
		return 0, invalidParams("parameter '%s' must be an integer, got %v", key, f)
	}
	return int(f), nil
}

func (p actionParams) optionalBool(key string, def bool) (bool, error) {
	if !p.has(key) {
		return def, nil
	}
	switch v := p[key].(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, invalidParams("parameter '%s' must be a boolean, got %q", key, v)
		}
		return parsed, nil
	default:
		return false, invalidParams("parameter '%s' must be a boolean, got %T", key, v)
	}
}
