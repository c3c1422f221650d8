package backend

import (
	"bytes"
	"encoding/json"
)

// Normalize turns a list payload into records. A bare array is used as is;
// an object is probed for keys in order and the first array-valued key wins.
// Any other shape yields an empty, non-nil slice. Non-object array elements
// are skipped. The error is only set for bodies that are not JSON.
func Normalize(body []byte, keys []string) ([]Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []Record{}, nil
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return []Record{}, err
	}
	return normalizeValue(payload, keys), nil
}

func normalizeValue(payload any, keys []string) []Record {
	switch v := payload.(type) {
	case []any:
		return fromArray(v)
	case map[string]any:
		for _, key := range keys {
			if arr, ok := v[key].([]any); ok {
				return fromArray(arr)
			}
		}
	}
	return []Record{}
}

func fromArray(items []any) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
