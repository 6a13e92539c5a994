package dbmcp

import (
	"encoding/base64"
	"math"
	"time"
	"unicode/utf8"
)

// convertValue converts a driver-returned value into a canonical,
// locale-independent form that serializes identically across backends.
// Temporal values become RFC 3339 text; non-finite floats become strings
// since JSON cannot carry them.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case []byte:
		// Text columns arrive as []byte from several drivers; binary data is
		// base64-encoded so the payload stays valid UTF-8.
		if utf8.Valid(val) {
			return string(val)
		}
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = convertValue(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = convertValue(item)
		}
		return result
	default:
		return val
	}
}

func convertFloat(f float64) any {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}
