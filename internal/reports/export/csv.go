package export

import (
	"encoding/csv"
	"io"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/reports"
)

// WriteCSV serialises the table rows with a header line.
func WriteCSV(w io.Writer, columns []reports.Column, rows []backend.Record) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Header
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	line := make([]string, len(columns))
	for _, rec := range rows {
		for i, col := range columns {
			line[i] = col.Cell(rec)
		}
		if err := writer.Write(line); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
