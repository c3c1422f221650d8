package reporthttp

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/reports"
	"github.com/fleetdesk/fleetdesk/internal/reports/export"
	"github.com/fleetdesk/fleetdesk/internal/reports/svg"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/view"
	"github.com/fleetdesk/fleetdesk/internal/viewstate"
)

type loadCall struct {
	name  string
	fresh bool
}

type stubService struct {
	mu      sync.Mutex
	result  backend.Result
	calls   []loadCall
	summary reports.Summary
	month   time.Time
	err     error
	defs    map[string]reports.Definition
	// waitForCancel makes Load block until the request context ends.
	waitForCancel bool
}

func newStubService(result backend.Result) *stubService {
	return &stubService{result: result, defs: reports.Catalog()}
}

func (s *stubService) Definition(name string) (reports.Definition, error) {
	def, ok := s.defs[name]
	if !ok {
		return reports.Definition{}, reports.ErrUnknownView
	}
	return def, nil
}

func (s *stubService) Definitions() []reports.Definition {
	out := make([]reports.Definition, 0, len(s.defs))
	for _, name := range reports.Names() {
		out = append(out, s.defs[name])
	}
	return out
}

func (s *stubService) Load(ctx context.Context, name string, fresh bool) backend.Result {
	s.mu.Lock()
	s.calls = append(s.calls, loadCall{name: name, fresh: fresh})
	wait, result := s.waitForCancel, s.result
	s.mu.Unlock()
	if wait {
		<-ctx.Done()
		return backend.Result{Message: ctx.Err().Error()}
	}
	return result
}

func (s *stubService) Summary(ctx context.Context, month time.Time) (reports.Summary, error) {
	s.mu.Lock()
	s.month = month
	s.mu.Unlock()
	return s.summary, s.err
}

func (s *stubService) loads() []loadCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]loadCall(nil), s.calls...)
}

type stubPDF struct {
	last export.Document
	err  error
}

func (s *stubPDF) Render(ctx context.Context, doc export.Document) ([]byte, error) {
	s.last = doc
	return []byte("%PDF-1.7 report"), s.err
}

var dailyServices = []backend.Record{
	{"id": 1.0, "claimantName": "Abebe Kebede", "status": "PENDING", "dateTime": "2024-03-02T08:00:00", "kmDifference": 12.5},
	{"id": 2.0, "claimantName": "Sara Tesfaye", "status": "COMPLETED", "dateTime": "2024-03-05T09:30:00", "kmDifference": 30.0},
	{"id": 3.0, "claimantName": "Abel Girma", "status": "PENDING", "dateTime": "2024-03-09T10:00:00", "kmDifference": 7.5},
}

func newTestRouter(t *testing.T, service *stubService, pdf PDFService) (http.Handler, *Handler) {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(nil, service, viewstate.NewRegistry(time.Minute), templates, pdf)
	handler.WithNow(func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) })

	sess := &shared.Session{ID: "session-1"}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	handler.MountRoutes(r)
	return r, handler
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestFragmentFetchesOnceThenRefilters(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/reports/daily-services/data")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Abebe Kebede")
	assert.Contains(t, rr.Body.String(), "Sara Tesfaye")

	rr = get(t, router, "/reports/daily-services/data?status=pending")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Abebe Kebede")
	assert.Contains(t, body, "Abel Girma")
	assert.NotContains(t, body, "Sara Tesfaye")
	assert.Contains(t, body, "2 of 3 records")

	assert.Equal(t, []loadCall{{name: "daily-services", fresh: false}}, service.loads())
}

func TestFragmentRefreshRefetches(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, nil)

	get(t, router, "/reports/daily-services/data")
	rr := get(t, router, "/reports/daily-services/data?refresh=1")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []loadCall{
		{name: "daily-services", fresh: false},
		{name: "daily-services", fresh: true},
	}, service.loads())
	assert.NotContains(t, rr.Body.String(), "refresh=1")
}

func TestFragmentIgnoresLoadOfDisconnectedClient(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	service.waitForCancel = true
	router, _ := newTestRouter(t, service, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/daily-services/data", nil).WithContext(ctx))
	assert.NotContains(t, rr.Body.String(), "context deadline exceeded")

	service.mu.Lock()
	service.waitForCancel = false
	service.mu.Unlock()

	rr = get(t, router, "/reports/daily-services/data?claimantName=ab")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.NotContains(t, body, "context deadline exceeded")
	assert.Contains(t, body, "Abebe Kebede")
	assert.Contains(t, body, "Abel Girma")
	assert.Len(t, service.loads(), 2)
}

func TestFragmentReloadsAfterRegistryInvalidation(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, handler := newTestRouter(t, service, nil)

	get(t, router, "/reports/daily-services/data")
	get(t, router, "/reports/daily-services/data")
	require.Len(t, service.loads(), 1)

	assert.Equal(t, 1, handler.registry.Invalidate())
	rr := get(t, router, "/reports/daily-services/data")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Abebe Kebede")
	assert.Equal(t, []loadCall{
		{name: "daily-services", fresh: false},
		{name: "daily-services", fresh: false},
	}, service.loads())
}

func TestFragmentRendersFailureMessage(t *testing.T) {
	service := newStubService(backend.Result{Success: false, Message: "db down"})
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/reports/daily-services/data")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "db down")
	assert.Contains(t, rr.Body.String(), "data-retry")
}

func TestFragmentRendersEmptyState(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/reports/daily-services/data?claimantName=nobody")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No records match the current filters.")
}

func TestFragmentInvertedRangeIsEmpty(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/reports/daily-services/data?start=2024-03-10&end=2024-03-01")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No records match the current filters.")
}

func TestCloseDiscardsSnapshot(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, nil)

	get(t, router, "/reports/daily-services/data")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reports/daily-services/close", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	get(t, router, "/reports/daily-services/data")
	assert.Len(t, service.loads(), 2)
}

func TestUnknownViewIsNotFound(t *testing.T) {
	router, _ := newTestRouter(t, newStubService(backend.Result{Success: true}), nil)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/reports/payroll").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/reports/payroll/data").Code)
}

func TestShellRendersFiltersAndPlaceholder(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/reports/daily-services?status=PENDING")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Daily Service Reports")
	assert.Contains(t, body, `data-fragment="/reports/daily-services/data"`)
	assert.Contains(t, body, "data-pending")
	assert.Contains(t, body, `value="2024-03"`)
	assert.Empty(t, service.loads(), "the shell never fetches")
}

func TestCSVExportUsesFilteredRows(t *testing.T) {
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/reports/daily-services/export.csv?status=COMPLETED")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "daily-services-report-20240315.csv")

	lines, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Claimant", lines[0][0])
	assert.Equal(t, "Sara Tesfaye", lines[1][0])
}

func TestExportFailsWhenSourceFails(t *testing.T) {
	router, _ := newTestRouter(t, newStubService(backend.Result{Success: false, Message: "request failed with status code 503"}), nil)

	rr := get(t, router, "/reports/daily-services/export.xlsx")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "status code 503")
}

func TestPDFExport(t *testing.T) {
	pdf := &stubPDF{}
	service := newStubService(backend.Result{Success: true, Data: dailyServices})
	router, _ := newTestRouter(t, service, pdf)

	rr := get(t, router, "/reports/daily-services/export.pdf?status=PENDING")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Len(t, pdf.last.Rows, 2)
	assert.Equal(t, []string{"Status: PENDING"}, pdf.last.Filters)
	assert.NotEmpty(t, pdf.last.Charts)
	assert.Contains(t, string(pdf.last.Charts[0].SVG), "<svg")
}

func TestDashboardShowsCardsAndCharts(t *testing.T) {
	service := newStubService(backend.Result{Success: true})
	service.summary = reports.Summary{
		Cards: []reports.SummaryCard{
			{Label: "Organization cars", Link: "/reports/cars?carType=Organization", Count: 12500},
			{Label: "Pending daily requests", Link: "/reports/daily-services?status=PENDING", Count: 3},
		},
		CarStatus: reports.Chart{Title: "Car status", Kind: reports.ChartDonut, Labels: []string{"AVAILABLE", "IN_USE"}, Series: []svg.Series{{Values: []float64{9, 3}}}},
		Weekly:    reports.Chart{Title: "Car registrations, March 2024", Kind: reports.ChartStackedBar, Labels: []string{"Week 1"}, Series: []svg.Series{{Label: "AVAILABLE", Values: []float64{0}}}},
	}
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/?month=2024-03")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "12,500")
	assert.Contains(t, body, "Organization cars")
	assert.Contains(t, body, `href="/reports/daily-services?status=PENDING"`)
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "No data for this period.")
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), service.month)
}

func TestDashboardShowsJoinFailure(t *testing.T) {
	service := newStubService(backend.Result{Success: true})
	service.err = &backend.JoinError{Endpoint: "cars", Message: "db down"}
	router, _ := newTestRouter(t, service, nil)

	rr := get(t, router, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "db down")
}
