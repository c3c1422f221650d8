// Package reports instantiates the fetch, filter, derive and present pattern
// for every report and listing view of the application.
package reports

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/records"
	"github.com/fleetdesk/fleetdesk/internal/reports/svg"
)

// ChartKind selects the renderer of a chart.
type ChartKind int

const (
	ChartDonut ChartKind = iota
	ChartBar
	ChartStackedBar
	ChartLine
)

// Chart is a derived, render-ready chart.
type Chart struct {
	Key    string
	Title  string
	Kind   ChartKind
	Labels []string
	Series []svg.Series
}

// Empty reports whether every series value is zero.
func (c Chart) Empty() bool {
	for _, s := range c.Series {
		for _, v := range s.Values {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// FieldKind selects the filter input control.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldSelect
	FieldDateRange
)

// Field describes one filter input.
type Field struct {
	Key     string
	Label   string
	Kind    FieldKind
	Options []string
}

// Column describes one table column.
type Column struct {
	Header string
	Field  string
	Date   bool
}

// Source is one endpoint feeding a view. Tag, when set, is written into the
// definition's TagField of every record from this source.
type Source struct {
	Endpoint string
	Tag      string
}

// Stat is a headline figure shown above the table.
type Stat struct {
	Label string
	Value string
}

// Params carries the inputs derivations need beyond the records.
type Params struct {
	Now   time.Time
	Month time.Time
	Year  int
}

// Definition is one report view.
type Definition struct {
	Name     string
	Title    string
	Sources  []Source
	TagField string
	Fields   []Field
	Bindings records.Bindings
	Columns  []Column
	// Unique requires record identities not to repeat within one source.
	Unique bool
	// Check validates the joined source array.
	Check  func([]backend.Record, *validator.Validate) error
	Derive func([]backend.Record, Params) []Chart
	Stats  func([]backend.Record) []Stat
}

// ParseFilter reads the definition's filter fields from a query string.
// Date ranges use the "start" and "end" parameters.
func (d Definition) ParseFilter(q url.Values) records.Filter {
	f := make(records.Filter, len(d.Fields))
	for _, field := range d.Fields {
		switch field.Kind {
		case FieldDateRange:
			f[field.Key] = records.Between(strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end")))
		default:
			f[field.Key] = records.Text(strings.TrimSpace(q.Get(field.Key)))
		}
	}
	return f
}

// Apply filters items with the definition's bindings.
func (d Definition) Apply(items []backend.Record, f records.Filter) []backend.Record {
	return records.Apply(items, f, d.Bindings)
}

// ParseParams reads the derivation parameters. month is YYYY-MM, year YYYY;
// both default to the current period.
func ParseParams(q url.Values, now time.Time) Params {
	p := Params{Now: now, Month: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), Year: now.Year()}
	if m, err := time.Parse("2006-01", strings.TrimSpace(q.Get("month"))); err == nil {
		p.Month = m
	}
	if y, err := time.Parse("2006", strings.TrimSpace(q.Get("year"))); err == nil {
		p.Year = y.Year()
	}
	return p
}

func countChart(key, title string, kind ChartKind, aggs []records.Aggregate) Chart {
	return Chart{
		Key:    key,
		Title:  title,
		Kind:   kind,
		Labels: records.Names(aggs),
		Series: []svg.Series{{Label: title, Values: records.Values(aggs)}},
	}
}

func weeklyChart(key, title string, weeks []records.WeekBucket, statuses []string) Chart {
	labels := make([]string, len(weeks))
	series := make([]svg.Series, len(statuses))
	for j, status := range statuses {
		series[j] = svg.Series{Label: status, Values: make([]float64, len(weeks)), Color: svg.Palette[j%len(svg.Palette)]}
	}
	for i, week := range weeks {
		labels[i] = week.Label + " (" + week.Range + ")"
		for j := range statuses {
			if j < len(week.Counts) {
				series[j].Values[i] = float64(week.Counts[j].Value)
			}
		}
	}
	return Chart{Key: key, Title: title, Kind: ChartStackedBar, Labels: labels, Series: series}
}

// Cell renders the column value of rec for tables and exports.
func (c Column) Cell(rec backend.Record) string {
	if c.Date {
		if ts, ok := rec.Date(c.Field); ok {
			if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 {
				return ts.Format("2006-01-02")
			}
			return ts.Format("2006-01-02 15:04")
		}
	}
	if v := rec.Text(c.Field); v != "" {
		return v
	}
	if v, ok := rec.Value(c.Field); ok {
		if arr, ok := v.([]any); ok {
			parts := make([]string, 0, len(arr))
			for _, item := range arr {
				if s := (backend.Record{"v": item}).Text("v"); s != "" {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, ", ")
		}
	}
	return ""
}
