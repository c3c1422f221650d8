package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/reports"
)

const (
	dataSheet    = "Records"
	summarySheet = "Summary"
)

// Workbook is the content of an XLSX export.
type Workbook struct {
	Title   string
	Columns []reports.Column
	Rows    []backend.Record
	Stats   []reports.Stat
	Charts  []reports.Chart
}

// WriteXLSX renders the records sheet plus a summary sheet holding the
// headline figures and every chart's data table.
func WriteXLSX(w io.Writer, book Workbook) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", dataSheet); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1E3A8A"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, col := range book.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(dataSheet, cell, col.Header); err != nil {
			return err
		}
	}
	if len(book.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(book.Columns), 1)
		if err := f.SetCellStyle(dataSheet, "A1", last, headerStyle); err != nil {
			return err
		}
	}
	for r, rec := range book.Rows {
		for c, col := range book.Columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(dataSheet, cell, col.Cell(rec)); err != nil {
				return err
			}
		}
	}
	if len(book.Columns) > 0 {
		if err := f.AutoFilter(dataSheet, fmt.Sprintf("A1:%s", lastCell(len(book.Columns), len(book.Rows)+1)), nil); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	row := 1
	set := func(col int, value any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(summarySheet, cell, value)
	}
	if err := set(1, book.Title); err != nil {
		return err
	}
	row += 2
	for _, stat := range book.Stats {
		if err := set(1, stat.Label); err != nil {
			return err
		}
		if err := set(2, stat.Value); err != nil {
			return err
		}
		row++
	}
	for _, chart := range book.Charts {
		row++
		if err := set(1, chart.Title); err != nil {
			return err
		}
		_ = f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), headerStyle)
		for j, s := range chart.Series {
			if err := set(j+2, s.Label); err != nil {
				return err
			}
		}
		row++
		for i, label := range chart.Labels {
			if err := set(1, label); err != nil {
				return err
			}
			for j, s := range chart.Series {
				if err := set(j+2, s.Values[i]); err != nil {
					return err
				}
			}
			row++
		}
	}
	_, err = f.WriteTo(w)
	return err
}

func lastCell(cols, rows int) string {
	cell, err := excelize.CoordinatesToCellName(cols, rows)
	if err != nil {
		return "A1"
	}
	return cell
}
