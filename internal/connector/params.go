package connector

import "strconv"

// The Param* helpers read factory config values that round-tripped through
// JSON, where every number is a float64 and every list is []any. Each helper
// returns its default when the key is absent or holds the wrong type; a
// factory that wants a hard error checks presence itself.

// ParamString returns cfg[key] as a string, or def.
func ParamString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ParamInt returns cfg[key] as an int, or def. JSON numbers and numeric
// strings are both accepted; upstream config files are hand-edited.
func ParamInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// ParamFloat returns cfg[key] as a float64, or def.
func ParamFloat(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// ParamBool returns cfg[key] as a bool, or def.
func ParamBool(cfg map[string]any, key string, def bool) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// ParamStrings returns cfg[key] as a string slice. Both []string and the
// []any a JSON decode produces are accepted; non-string elements are skipped.
func ParamStrings(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ParamFloats returns cfg[key] as a float slice, or nil.
func ParamFloats(cfg map[string]any, key string) []float64 {
	switch v := cfg[key].(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, e := range v {
			if f, ok := e.(float64); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}
