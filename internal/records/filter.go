// Package records filters and aggregates normalized backend records. Every
// function is pure: inputs are never mutated.
package records

import (
	"strings"
	"time"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

// Mode selects how a filter constraint is matched.
type Mode int

const (
	// Substring matches a case-insensitive substring of the field.
	Substring Mode = iota
	// Equal matches the whole field case-insensitively.
	Equal
	// Range matches a date field against an inclusive day range.
	Range
)

// Constraint is one filter value: Match for text modes, Start and End
// (YYYY-MM-DD) for ranges.
type Constraint struct {
	Match string
	Start string
	End   string
}

// Empty reports whether the constraint imposes nothing.
func (c Constraint) Empty() bool {
	return strings.TrimSpace(c.Match) == "" && strings.TrimSpace(c.Start) == "" && strings.TrimSpace(c.End) == ""
}

// Filter maps a filter key to its constraint.
type Filter map[string]Constraint

// Text builds a text constraint.
func Text(value string) Constraint { return Constraint{Match: value} }

// Between builds a date range constraint.
func Between(start, end string) Constraint { return Constraint{Start: start, End: end} }

// Active reports whether any key carries a constraint.
func (f Filter) Active() bool {
	for _, c := range f {
		if !c.Empty() {
			return true
		}
	}
	return false
}

// Binding designates the fields a filter key is matched against. A record
// matches when any of the fields matches.
type Binding struct {
	Fields []string
	Mode   Mode
}

// Bindings maps filter keys to bindings. Unbound keys are substring-matched
// against the field of the same name.
type Bindings map[string]Binding

func (b Bindings) resolve(key string) Binding {
	if binding, ok := b[key]; ok && len(binding.Fields) > 0 {
		return binding
	}
	return Binding{Fields: []string{key}, Mode: Substring}
}

// Apply returns the records that satisfy every constraint of f. With no
// active constraint the input slice itself is returned.
func Apply(items []backend.Record, f Filter, b Bindings) []backend.Record {
	if !f.Active() {
		return items
	}
	preds := make([]func(backend.Record) bool, 0, len(f))
	for key, c := range f {
		if c.Empty() {
			continue
		}
		binding := b.resolve(key)
		pred, ok := predicate(binding, c)
		if !ok {
			return []backend.Record{}
		}
		if pred != nil {
			preds = append(preds, pred)
		}
	}
	out := make([]backend.Record, 0, len(items))
	for _, rec := range items {
		keep := true
		for _, p := range preds {
			if !p(rec) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out
}

// predicate returns nil for constraints that do not take effect and ok=false
// for constraints that can match nothing.
func predicate(b Binding, c Constraint) (func(backend.Record) bool, bool) {
	switch b.Mode {
	case Range:
		start, end := strings.TrimSpace(c.Start), strings.TrimSpace(c.End)
		if start == "" || end == "" {
			return nil, true
		}
		from, okFrom := backend.ParseDate(start)
		to, okTo := backend.ParseDate(end)
		if !okFrom || !okTo || from.After(to) {
			return nil, false
		}
		to = endOfDay(to)
		return func(rec backend.Record) bool {
			for _, field := range b.Fields {
				ts, ok := rec.Date(field)
				if !ok {
					continue
				}
				if !ts.Before(from) && !ts.After(to) {
					return true
				}
			}
			return false
		}, true
	case Equal:
		want := strings.TrimSpace(c.Match)
		return func(rec backend.Record) bool {
			for _, field := range b.Fields {
				if strings.EqualFold(strings.TrimSpace(rec.Text(field)), want) {
					return true
				}
			}
			return false
		}, true
	default:
		needle := strings.ToLower(strings.TrimSpace(c.Match))
		return func(rec backend.Record) bool {
			for _, field := range b.Fields {
				if strings.Contains(strings.ToLower(fieldText(rec, field)), needle) {
					return true
				}
			}
			return false
		}, true
	}
}

// fieldText also flattens arrays of scalars, such as allPlateNumbers.
func fieldText(rec backend.Record, field string) string {
	if s := rec.Text(field); s != "" {
		return s
	}
	v, ok := rec.Value(field)
	if !ok {
		return ""
	}
	arr, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(arr))
	for i := range arr {
		if s := (backend.Record{"v": arr[i]}).Text("v"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
