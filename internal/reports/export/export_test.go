package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/reports"
	"github.com/fleetdesk/fleetdesk/internal/reports/svg"
)

var columns = []reports.Column{
	{Header: "Plate", Field: "plateNumber"},
	{Header: "Status", Field: "status"},
	{Header: "Date", Field: "createdAt", Date: true},
}

var rows = []backend.Record{
	{"plateNumber": "B 1234 XY", "status": "AVAILABLE", "createdAt": "2024-03-05"},
	{"plateNumber": "D 77, AB", "status": "IN_USE", "createdAt": []any{2024.0, 3.0, 9.0, 14.0, 30.0}},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, columns, rows))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"Plate", "Status", "Date"}, lines[0])
	assert.Equal(t, []string{"B 1234 XY", "AVAILABLE", "2024-03-05"}, lines[1])
	assert.Equal(t, []string{"D 77, AB", "IN_USE", "2024-03-09 14:30"}, lines[2])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, Workbook{
		Title:   "Cars",
		Columns: columns,
		Rows:    rows,
		Stats:   []reports.Stat{{Label: "Total", Value: "2"}},
		Charts: []reports.Chart{{
			Title:  "Status",
			Labels: []string{"AVAILABLE", "IN_USE"},
			Series: []svg.Series{{Label: "Cars", Values: []float64{1, 1}}},
		}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Records", "Summary"}, f.GetSheetList())
	header, err := f.GetCellValue("Records", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Plate", header)
	plate, err := f.GetCellValue("Records", "A3")
	require.NoError(t, err)
	assert.Equal(t, "D 77, AB", plate)

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, "Cars", summary[0][0])
	assert.Contains(t, summary, []string{"Total", "2"})
	assert.Contains(t, summary, []string{"AVAILABLE", "1"})
}

type captureRenderer struct {
	html string
}

func (c *captureRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	c.html = html
	return []byte("%PDF"), nil
}

func TestPDFExporterRendersDocument(t *testing.T) {
	renderer := &captureRenderer{}
	exporter, err := NewPDFExporter(renderer)
	require.NoError(t, err)

	out, err := exporter.Render(context.Background(), Document{
		Title:       "Inspections",
		GeneratedAt: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		Filters:     []string{"Status: PASSED"},
		Stats:       []reports.Stat{{Label: "Total", Value: "2"}},
		Charts:      []ChartImage{{Title: "Weekly", SVG: `<svg id="weekly"></svg>`}},
		Columns:     columns,
		Rows:        rows,
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(out))
	assert.Contains(t, renderer.html, "Inspections")
	assert.Contains(t, renderer.html, "10 Mar 2024 08:00")
	assert.Contains(t, renderer.html, "Status: PASSED")
	assert.Contains(t, renderer.html, `<svg id="weekly"></svg>`)
	assert.Contains(t, renderer.html, "B 1234 XY")
}

func TestPDFExporterRequiresRenderer(t *testing.T) {
	var exporter *PDFExporter
	_, err := exporter.Render(context.Background(), Document{})
	assert.Error(t, err)
}
