package reporthttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/records"
	"github.com/fleetdesk/fleetdesk/internal/reports"
	"github.com/fleetdesk/fleetdesk/internal/reports/export"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/view"
	"github.com/fleetdesk/fleetdesk/internal/viewstate"
)

const (
	defaultPerPage = 25
	summaryTimeout = 10 * time.Second
)

// ReportService defines the report data contract used by the handler.
type ReportService interface {
	Definition(name string) (reports.Definition, error)
	Definitions() []reports.Definition
	Load(ctx context.Context, name string, fresh bool) backend.Result
	Summary(ctx context.Context, month time.Time) (reports.Summary, error)
}

// PDFService renders report documents to PDF bytes.
type PDFService interface {
	Render(ctx context.Context, doc export.Document) ([]byte, error)
}

// Handler serves the dashboard and the report views.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	registry  *viewstate.Registry
	templates *view.Engine
	pdf       PDFService
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the report HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService, registry *viewstate.Registry, templates *view.Engine, pdf PDFService) *Handler {
	h := &Handler{
		logger:    logger,
		service:   service,
		registry:  registry,
		templates: templates,
		pdf:       pdf,
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// DashboardChart is a rendered dashboard chart; SVG is empty when the chart
// has no data.
type DashboardChart struct {
	Title string
	SVG   template.HTML
}

// DashboardViewModel feeds pages/dashboard.html.
type DashboardViewModel struct {
	Cards   []reports.SummaryCard
	Charts  []DashboardChart
	Month   string
	Message string
}

// ShellViewModel feeds the report page shell.
type ShellViewModel struct {
	Definition reports.Definition
	Query      url.Values
	Values     map[string]string
	Month      string
	Year       int
}

// ChartView is a rendered chart.
type ChartView struct {
	Title string
	SVG   template.HTML
	Empty bool
}

// FragmentViewModel feeds the report data fragment.
type FragmentViewModel struct {
	View       string
	Phase      string
	Message    string
	Columns    []reports.Column
	Rows       []backend.Record
	Total      int
	Matched    int
	Stats      []reports.Stat
	Charts     []ChartView
	Pagination shared.Pagination
	Query      url.Values
	LoadedAt   time.Time
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), summaryTimeout)
	defer cancel()

	params := reports.ParseParams(r.URL.Query(), h.now())
	vm := DashboardViewModel{Month: params.Month.Format("2006-01")}
	summary, err := h.service.Summary(ctx, params.Month)
	if err != nil {
		h.logWarn("load dashboard summary", err)
		vm.Message = failureMessage(err)
		h.render(w, r, "pages/dashboard.html", "Dashboard", vm)
		return
	}
	vm.Cards = summary.Cards
	for _, chart := range []reports.Chart{summary.CarStatus, summary.Weekly} {
		dc := DashboardChart{Title: chart.Title}
		if !chart.Empty() {
			if dc.SVG, err = chart.Render(); err != nil {
				h.handleServerError(w, "render dashboard chart", err)
				return
			}
		}
		vm.Charts = append(vm.Charts, dc)
	}
	h.render(w, r, "pages/dashboard.html", "Dashboard", vm)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "reports/index.html", "Reports", h.service.Definitions())
}

func (h *Handler) handleShell(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	params := reports.ParseParams(q, h.now())
	values := make(map[string]string, len(def.Fields)+2)
	for _, field := range def.Fields {
		values[field.Key] = q.Get(field.Key)
	}
	values["start"] = q.Get("start")
	values["end"] = q.Get("end")
	h.render(w, r, "reports/shell.html", def.Title, ShellViewModel{
		Definition: def,
		Query:      q,
		Values:     values,
		Month:      params.Month.Format("2006-01"),
		Year:       params.Year,
	})
}

func (h *Handler) handleFragment(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	snap := h.snapshot(r, def.Name, q.Get("refresh") == "1")

	vm := FragmentViewModel{View: def.Name, Phase: snap.Phase.String(), Message: snap.Message, Columns: def.Columns, Query: stripRefresh(q), LoadedAt: snap.LoadedAt}
	switch snap.Phase {
	case viewstate.Success:
		filtered := def.Apply(snap.Records, def.ParseFilter(q))
		vm.Total = len(snap.Records)
		vm.Matched = len(filtered)
		params := reports.ParseParams(q, h.now())
		if def.Stats != nil {
			vm.Stats = def.Stats(filtered)
		}
		if def.Derive != nil {
			for _, chart := range def.Derive(filtered, params) {
				markup, err := chart.Render()
				if err != nil {
					h.handleServerError(w, "render chart", err)
					return
				}
				vm.Charts = append(vm.Charts, ChartView{Title: chart.Title, SVG: markup, Empty: chart.Empty()})
			}
		}
		page, _ := strconv.Atoi(q.Get("page"))
		vm.Pagination = shared.NewPagination(page, defaultPerPage, len(filtered))
		start, end := vm.Pagination.Bounds()
		vm.Rows = filtered[start:end]
	case viewstate.Idle:
		// Closed between Get and Begin; the page script will ask again.
		vm.Phase = viewstate.Loading.String()
	}
	if err := h.templates.Execute(w, "reports/fragment.html", vm); err != nil {
		h.logError("render fragment", err)
	}
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "view")
	if _, err := h.service.Definition(name); err != nil {
		http.NotFound(w, r)
		return
	}
	h.registry.Close(scopeOf(r), name)
	w.WriteHeader(http.StatusNoContent)
}

// snapshot returns the view state of the caller's session, starting a load
// when the view has none yet or when refresh is requested.
func (h *Handler) snapshot(r *http.Request, name string, refresh bool) viewstate.Snapshot {
	machine := h.registry.Get(scopeOf(r), name)
	snap := machine.Snapshot()
	if !refresh && snap.Phase != viewstate.Idle {
		return snap
	}
	ticket, ok := machine.Begin()
	if !ok {
		return snap
	}
	res := h.service.Load(r.Context(), name, refresh)
	if r.Context().Err() != nil {
		// The client went away mid-load; its failure says nothing about the view.
		machine.Abandon(ticket)
		return machine.Snapshot()
	}
	machine.Resolve(ticket, res)
	return machine.Snapshot()
}

func (h *Handler) definition(w http.ResponseWriter, r *http.Request) (reports.Definition, bool) {
	def, err := h.service.Definition(chi.URLParam(r, "view"))
	if err != nil {
		if errors.Is(err, reports.ErrUnknownView) {
			h.renderStatus(w, r, http.StatusNotFound)
			return reports.Definition{}, false
		}
		h.handleServerError(w, "resolve report", err)
		return reports.Definition{}, false
	}
	return def, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	if err := h.templates.Render(w, name, view.NewTemplateData(r, title, data)); err != nil {
		h.logError("render template", err)
	}
}

func (h *Handler) renderStatus(w http.ResponseWriter, r *http.Request, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	td := view.TemplateData{Title: http.StatusText(status), CurrentPath: r.URL.Path}
	if err := h.templates.Render(w, "pages/not_found.html", td); err != nil {
		h.logError("render status page", err)
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

func (h *Handler) logWarn(context string, err error) {
	if h.logger != nil {
		h.logger.Warn(context, slog.Any("error", err))
	}
}

func scopeOf(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.ID != "" {
		return sess.ID
	}
	return "anonymous"
}

func stripRefresh(q url.Values) url.Values {
	out := url.Values{}
	for k, v := range q {
		if k == "refresh" {
			continue
		}
		out[k] = v
	}
	return out
}

func failureMessage(err error) string {
	var je *backend.JoinError
	if errors.As(err, &je) {
		return je.Message
	}
	return err.Error()
}

// filterSummary lists the active filters for export headers.
func filterSummary(def reports.Definition, f records.Filter) []string {
	var out []string
	for _, field := range def.Fields {
		c, ok := f[field.Key]
		if !ok || c.Empty() {
			continue
		}
		if field.Kind == reports.FieldDateRange {
			out = append(out, fmt.Sprintf("%s: %s to %s", field.Label, c.Start, c.End))
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", field.Label, strings.TrimSpace(c.Match)))
	}
	return out
}
