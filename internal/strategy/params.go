package strategy

import (
	"encoding/json"
	"log/slog"
)

// Params is the free-form tuning bag accepted at brew start. Values arrive
// from JSON bodies or YAML config, so numbers may be float64, integers or
// json.Number, and sloppy clients occasionally send a single-element array
// where a scalar belongs.
type Params map[string]any

// Float resolves key to a float64, tolerating the numeric encodings JSON
// decoding produces. A single-element array is unwrapped to its first
// element. Anything unusable logs a warning and falls back to def.
func (p Params) Float(logger *slog.Logger, key string, def float64) float64 {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def
	}
	if arr, ok := raw.([]any); ok {
		if len(arr) == 0 {
			return def
		}
		raw = arr[0]
	}
	if v, ok := coerceFloat(raw); ok {
		return v
	}
	if logger != nil {
		logger.Warn("ignoring malformed strategy parameter",
			"param", key,
			"value", raw,
			"default", def)
	}
	return def
}

// Bool resolves key to a bool, falling back to def on absence or mismatch.
func (p Params) Bool(logger *slog.Logger, key string, def bool) bool {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def
	}
	if v, ok := raw.(bool); ok {
		return v
	}
	if logger != nil {
		logger.Warn("ignoring malformed strategy parameter",
			"param", key,
			"value", raw,
			"default", def)
	}
	return def
}

// Int resolves key to an int through the same coercion as Float.
func (p Params) Int(logger *slog.Logger, key string, def int) int {
	return int(p.Float(logger, key, float64(def)))
}

func coerceFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
