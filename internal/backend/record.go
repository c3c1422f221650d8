package backend

import (
	"strconv"
	"strings"
	"time"
)

// Record is one backend entity as decoded from JSON. Values are the
// encoding/json defaults: string, float64, bool, nil, []any, map[string]any.
type Record map[string]any

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Value resolves a field. Dotted names walk nested objects.
func (r Record) Value(field string) (any, bool) {
	if r == nil || field == "" {
		return nil, false
	}
	if v, ok := r[field]; ok {
		return v, v != nil
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, part := range strings.Split(field, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Text renders a scalar field as a string. Missing and non-scalar values are empty.
func (r Record) Text(field string) string {
	v, ok := r.Value(field)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Number returns a numeric field. Numeric strings are accepted.
func (r Record) Number(field string) (float64, bool) {
	v, ok := r.Value(field)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Date parses a date or date-time field. Besides string layouts it accepts the
// [year, month, day, hour, minute, second] arrays produced by Java backends.
// ok is false when the field is missing or unparsable.
func (r Record) Date(field string) (time.Time, bool) {
	v, ok := r.Value(field)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case string:
		return ParseDate(t)
	case []any:
		return dateFromParts(t)
	case time.Time:
		return t, !t.IsZero()
	default:
		return time.Time{}, false
	}
}

// ID returns the record identity: id when present, otherwise plateNumber.
func (r Record) ID() string {
	if id := r.Text("id"); id != "" {
		return id
	}
	return r.Text("plateNumber")
}

// With returns a shallow copy of r with field set to value.
func (r Record) With(field string, value any) Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[field] = value
	return out
}

// ParseDate parses the date formats seen in backend payloads and filter inputs.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func dateFromParts(parts []any) (time.Time, bool) {
	if len(parts) < 3 {
		return time.Time{}, false
	}
	nums := make([]int, 6)
	for i := 0; i < len(parts) && i < 6; i++ {
		f, ok := parts[i].(float64)
		if !ok {
			return time.Time{}, false
		}
		nums[i] = int(f)
	}
	if nums[1] < 1 || nums[1] > 12 || nums[2] < 1 || nums[2] > 31 {
		return time.Time{}, false
	}
	return time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC), true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}
