package reporthttp

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/reports"
	"github.com/fleetdesk/fleetdesk/internal/reports/export"
	"github.com/fleetdesk/fleetdesk/internal/viewstate"
)

type exportData struct {
	def     reports.Definition
	rows    []backend.Record
	filters []string
	stats   []reports.Stat
	charts  []reports.Chart
}

// exportRows filters the caller's snapshot, or a shared load when the view
// has not been opened in this session.
func (h *Handler) exportRows(w http.ResponseWriter, r *http.Request) (exportData, bool) {
	def, ok := h.definition(w, r)
	if !ok {
		return exportData{}, false
	}
	source := h.registry.Get(scopeOf(r), def.Name).Snapshot()
	items := source.Records
	if source.Phase != viewstate.Success {
		res := h.service.Load(r.Context(), def.Name, false)
		if !res.Success {
			http.Error(w, res.Message, http.StatusBadGateway)
			return exportData{}, false
		}
		items = res.Data
	}
	q := r.URL.Query()
	filter := def.ParseFilter(q)
	filtered := def.Apply(items, filter)
	data := exportData{def: def, rows: filtered, filters: filterSummary(def, filter)}
	if def.Stats != nil {
		data.stats = def.Stats(filtered)
	}
	if def.Derive != nil {
		data.charts = def.Derive(filtered, reports.ParseParams(q, h.now()))
	}
	return data, true
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	data, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteCSV(buf, data.def.Columns, data.rows); err != nil {
		h.handleServerError(w, "write csv", err)
		return
	}
	h.attach(w, "text/csv; charset=utf-8", h.filename(data.def, "csv"), buf.Bytes())
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	data, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := export.WriteXLSX(&buf, export.Workbook{
		Title:   data.def.Title,
		Columns: data.def.Columns,
		Rows:    data.rows,
		Stats:   data.stats,
		Charts:  data.charts,
	})
	if err != nil {
		h.handleServerError(w, "write xlsx", err)
		return
	}
	h.attach(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", h.filename(data.def, "xlsx"), buf.Bytes())
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		h.handleServerError(w, "pdf exporter", errors.New("pdf exporter not configured"))
		return
	}
	data, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	doc := export.Document{
		Title:       data.def.Title,
		GeneratedAt: h.now(),
		Filters:     data.filters,
		Stats:       data.stats,
		Columns:     data.def.Columns,
		Rows:        data.rows,
	}
	for _, chart := range data.charts {
		markup, err := chart.Render()
		if err != nil {
			h.handleServerError(w, "render chart", err)
			return
		}
		doc.Charts = append(doc.Charts, export.ChartImage{Title: chart.Title, SVG: markup})
	}
	pdf, err := h.pdf.Render(r.Context(), doc)
	if err != nil {
		h.logError("render pdf", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	h.attach(w, "application/pdf", h.filename(data.def, "pdf"), pdf)
}

func (h *Handler) filename(def reports.Definition, ext string) string {
	return fmt.Sprintf("%s-report-%s.%s", def.Name, h.now().Format("20060102"), ext)
}

func (h *Handler) attach(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(body); err != nil {
		h.logError("stream export", err)
	}
}
