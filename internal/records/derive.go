package records

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

// Aggregate is one named count.
type Aggregate struct {
	Name  string
	Value int
}

// CountOptions tunes CountBy.
type CountOptions struct {
	// Other names the bucket for values outside the enumeration. Defaults to "Other".
	Other string
	// DropZero omits categories with no members.
	DropZero bool
}

// CountBy counts records per category of field, in enumeration order.
// Values are matched case-insensitively. Missing or unknown values are
// counted into the Other bucket, which is appended only when non-empty.
func CountBy(items []backend.Record, field string, categories []string, opts CountOptions) []Aggregate {
	other := opts.Other
	if other == "" {
		other = "Other"
	}
	index := make(map[string]int, len(categories))
	out := make([]Aggregate, len(categories))
	for i, name := range categories {
		out[i] = Aggregate{Name: name}
		index[normalizeCategory(name)] = i
	}
	unknown := 0
	for _, rec := range items {
		if i, ok := index[normalizeCategory(rec.Text(field))]; ok {
			out[i].Value++
			continue
		}
		unknown++
	}
	if unknown > 0 {
		out = append(out, Aggregate{Name: other, Value: unknown})
	}
	if !opts.DropZero {
		return out
	}
	kept := out[:0]
	for _, agg := range out {
		if agg.Value > 0 {
			kept = append(kept, agg)
		}
	}
	return kept
}

// CountDynamic counts records per distinct value of field in first-seen
// order. Empty values count under fallback.
func CountDynamic(items []backend.Record, field, fallback string) []Aggregate {
	index := make(map[string]int)
	out := make([]Aggregate, 0)
	for _, rec := range items {
		name := strings.TrimSpace(rec.Text(field))
		if name == "" {
			name = fallback
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, Aggregate{Name: name})
		}
		out[i].Value++
	}
	return out
}

// TopN returns at most n aggregates ordered by value descending, ties by name.
func TopN(aggs []Aggregate, n int) []Aggregate {
	out := make([]Aggregate, len(aggs))
	copy(out, aggs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Total sums aggregate values.
func Total(aggs []Aggregate) int {
	total := 0
	for _, agg := range aggs {
		total += agg.Value
	}
	return total
}

// Sum adds up a numeric field, skipping records where it is absent.
func Sum(items []backend.Record, field string) float64 {
	var total float64
	for _, rec := range items {
		if v, ok := rec.Number(field); ok {
			total += v
		}
	}
	return total
}

// WeekBucket counts one calendar week of a month per status.
type WeekBucket struct {
	Label  string
	Range  string
	Counts []Aggregate
}

// Weekly buckets the records dated within month into weeks of seven days
// starting on the 1st ("Week 1" = days 1-7, the last week runs to month
// end) and counts statuses per week over the given enumeration.
func Weekly(items []backend.Record, dateField, statusField string, month time.Time, statuses []string) []WeekBucket {
	y, m, _ := month.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()

	var buckets []WeekBucket
	perWeek := make([][]backend.Record, 0, 5)
	for start := 1; start <= last; start += 7 {
		end := start + 6
		if end > last {
			end = last
		}
		buckets = append(buckets, WeekBucket{
			Label: fmt.Sprintf("Week %d", len(buckets)+1),
			Range: fmt.Sprintf("%d-%d", start, end),
		})
		perWeek = append(perWeek, nil)
	}
	for _, rec := range items {
		ts, ok := rec.Date(dateField)
		if !ok || ts.Year() != y || ts.Month() != m {
			continue
		}
		week := (ts.Day() - 1) / 7
		perWeek[week] = append(perWeek[week], rec)
	}
	for i := range buckets {
		buckets[i].Counts = CountBy(perWeek[i], statusField, statuses, CountOptions{DropZero: false})
		buckets[i].Counts = dropOther(buckets[i].Counts, len(statuses))
	}
	return buckets
}

// Monthly counts the records dated within year per calendar month, Jan..Dec.
func Monthly(items []backend.Record, dateField string, year int) []Aggregate {
	out := make([]Aggregate, 12)
	for i := range out {
		out[i] = Aggregate{Name: time.Month(i + 1).String()[:3]}
	}
	for _, rec := range items {
		ts, ok := rec.Date(dateField)
		if !ok || ts.Year() != year {
			continue
		}
		out[ts.Month()-1].Value++
	}
	return out
}

// Values extracts the counts of aggs as float64 for chart series.
func Values(aggs []Aggregate) []float64 {
	out := make([]float64, len(aggs))
	for i, agg := range aggs {
		out[i] = float64(agg.Value)
	}
	return out
}

// Names extracts the names of aggs.
func Names(aggs []Aggregate) []string {
	out := make([]string, len(aggs))
	for i, agg := range aggs {
		out[i] = agg.Name
	}
	return out
}

func dropOther(aggs []Aggregate, n int) []Aggregate {
	if len(aggs) > n {
		return aggs[:n]
	}
	return aggs
}

func normalizeCategory(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
