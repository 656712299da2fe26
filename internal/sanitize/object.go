package sanitize

import (
	"encoding/json"
	"sort"
)

const (
	DefaultMaxDepth = 10
	MaxArrayLength  = 100
	MaxObjectKeys   = 50
)

// Object walks decoded JSON-like data and sanitizes every string in it.
// Branches deeper than maxDepth become nil, arrays keep their first
// MaxArrayLength elements and maps keep MaxObjectKeys keys in sorted order.
func Object(v any, maxDepth int) any {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return sanitizeValue(v, 0, maxDepth)
}

func sanitizeValue(v any, depth int, maxDepth int) any {
	if depth > maxDepth {
		return nil
	}

	switch typed := v.(type) {
	case nil:
		return nil
	case string:
		return String(typed)
	case bool, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return typed
	case []any:
		limit := min(len(typed), MaxArrayLength)
		out := make([]any, 0, limit)
		for _, item := range typed[:limit] {
			out = append(out, sanitizeValue(item, depth+1, maxDepth))
		}
		return out
	case []string:
		limit := min(len(typed), MaxArrayLength)
		out := make([]any, 0, limit)
		for _, item := range typed[:limit] {
			out = append(out, String(item))
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		if len(keys) > MaxObjectKeys {
			keys = keys[:MaxObjectKeys]
		}

		out := make(map[string]any, len(keys))
		for _, key := range keys {
			cleanKey := Truncate(String(key), MaxKeyLength)
			if cleanKey == "" {
				continue
			}
			out[cleanKey] = sanitizeValue(typed[key], depth+1, maxDepth)
		}
		return out
	default:
		return nil
	}
}
