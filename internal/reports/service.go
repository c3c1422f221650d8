package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/records"
)

// ErrUnknownView is returned for names missing from the catalog.
var ErrUnknownView = errors.New("reports: unknown view")

// Fetcher is the subset of the backend client the service needs.
type Fetcher interface {
	FetchAll(ctx context.Context, eps ...backend.Endpoint) ([]backend.Result, error)
	Endpoints() backend.Table
}

// Service loads source arrays for report views.
type Service struct {
	fetcher  Fetcher
	cache    *Cache
	defs     map[string]Definition
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService wires the report service. cache may be nil.
func NewService(fetcher Fetcher, cache *Cache, logger *slog.Logger) *Service {
	return &Service{
		fetcher:  fetcher,
		cache:    cache,
		defs:     Catalog(),
		validate: backend.NewValidator(),
		logger:   logger,
	}
}

// Definition returns the named view.
func (s *Service) Definition(name string) (Definition, error) {
	def, ok := s.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	return def, nil
}

// Definitions lists the catalog in menu order.
func (s *Service) Definitions() []Definition {
	out := make([]Definition, 0, len(s.defs))
	for _, name := range Names() {
		if def, ok := s.defs[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

// loadError marks failures that must reach the view as a Result message.
type loadError struct {
	message string
}

func (e *loadError) Error() string { return e.message }

// Load returns the source array of a view. fresh drops the cached copy
// first. Failures are reported through the Result, never as errors.
func (s *Service) Load(ctx context.Context, name string, fresh bool) backend.Result {
	def, err := s.Definition(name)
	if err != nil {
		return backend.Result{Success: false, Message: err.Error()}
	}
	loader := func(ctx context.Context) (any, error) {
		return s.fetch(ctx, def)
	}

	key, err := s.cache.BuildKey(ctx, keySource(def.Name)...)
	if err != nil {
		s.logWarn("report cache unavailable", slog.String("view", name), slog.Any("error", err))
		return s.direct(ctx, loader)
	}
	if fresh {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logWarn("report cache invalidate failed", slog.String("view", name), slog.Any("error", err))
		}
	}
	var data []backend.Record
	if err := s.cache.FetchJSON(ctx, key, &data, loader); err != nil {
		var le *loadError
		if errors.As(err, &le) {
			return backend.Result{Success: false, Message: le.message}
		}
		s.logWarn("report cache unavailable", slog.String("view", name), slog.Any("error", err))
		return s.direct(ctx, loader)
	}
	if data == nil {
		data = []backend.Record{}
	}
	return backend.Result{Success: true, Data: data}
}

// Warm refetches the given views into the cache and returns how many
// succeeded. Unknown names are skipped.
func (s *Service) Warm(ctx context.Context, names ...string) (int, error) {
	if len(names) == 0 {
		names = Names()
	}
	warmed := 0
	var errs []error
	for _, name := range names {
		def, err := s.Definition(name)
		if err != nil {
			continue
		}
		data, err := s.fetch(ctx, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		key, err := s.cache.BuildKey(ctx, keySource(def.Name)...)
		if err == nil {
			err = s.cache.Store(ctx, key, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		warmed++
	}
	return warmed, errors.Join(errs...)
}

// Invalidate bumps the cache version so every view refetches.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// SummaryCard is one dashboard headline count linking to its report.
type SummaryCard struct {
	Label string
	Link  string
	Count int
}

// Summary is the dashboard: headline counts, the car status breakdown and
// weekly car registrations by status for one month.
type Summary struct {
	Cards     []SummaryCard
	CarStatus Chart
	Weekly    Chart
}

// summaryViews are the sources the dashboard joins.
var summaryViews = []string{ViewCars, ViewAssignments, ViewDailyServices, ViewInspections}

// Summary loads the dashboard sources concurrently. One failing view fails
// the whole summary.
func (s *Service) Summary(ctx context.Context, month time.Time) (Summary, error) {
	data := make(map[string][]backend.Record, len(summaryViews))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range summaryViews {
		g.Go(func() error {
			res := s.Load(gctx, name, false)
			if !res.Success {
				return &backend.JoinError{Endpoint: name, Message: res.Message}
			}
			mu.Lock()
			data[name] = res.Data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return buildSummary(data, month), nil
}

func buildSummary(data map[string][]backend.Record, month time.Time) Summary {
	cars := data[ViewCars]
	byType := records.CountBy(cars, "carCategory", CarTypes, records.CountOptions{})
	assignments := data[ViewAssignments]

	cards := []SummaryCard{
		{Label: "Cars", Link: "/reports/cars?carType=Regular", Count: byType[0].Value},
		{Label: "Organization cars", Link: "/reports/cars?carType=Organization", Count: byType[1].Value},
		{Label: "Rent cars", Link: "/reports/cars?carType=Rental", Count: byType[2].Value},
		{Label: "Assignments", Link: "/reports/assignments", Count: len(assignments)},
		{Label: "Users", Link: "/reports/assignments", Count: distinct(assignments, "requesterName")},
		{Label: "Pending daily requests", Link: "/reports/daily-services?status=PENDING", Count: countStatus(data[ViewDailyServices], "status", "PENDING")},
		{Label: "Inspections", Link: "/reports/inspections", Count: len(data[ViewInspections])},
	}

	statuses := records.CountDynamic(cars, "status", "UNKNOWN")
	sort.SliceStable(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	registered := make([]backend.Record, len(cars))
	for i, rec := range cars {
		registered[i] = rec.With("registeredOn", firstText(rec, "registeredDate", "createdAt", "dateOfIn"))
	}
	var names []string
	for _, agg := range statuses {
		if agg.Name != "UNKNOWN" {
			names = append(names, agg.Name)
		}
	}
	weeks := records.Weekly(registered, "registeredOn", "status", month, names)

	return Summary{
		Cards:     cards,
		CarStatus: countChart("status", "Car status", ChartDonut, statuses),
		Weekly:    weeklyChart("weekly", "Car registrations, "+month.Format("January 2006"), weeks, names),
	}
}

func distinct(items []backend.Record, field string) int {
	seen := make(map[string]struct{}, len(items))
	for _, rec := range items {
		if v := rec.Text(field); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

func firstText(rec backend.Record, fields ...string) string {
	for _, f := range fields {
		if v := rec.Text(f); v != "" {
			return v
		}
	}
	return ""
}

func (s *Service) fetch(ctx context.Context, def Definition) ([]backend.Record, error) {
	table := s.fetcher.Endpoints()
	eps := make([]backend.Endpoint, len(def.Sources))
	for i, src := range def.Sources {
		ep, err := table.Lookup(src.Endpoint)
		if err != nil {
			return nil, &loadError{message: err.Error()}
		}
		eps[i] = ep
	}
	results, err := s.fetcher.FetchAll(ctx, eps...)
	if err != nil {
		var je *backend.JoinError
		if errors.As(err, &je) {
			return nil, &loadError{message: je.Message}
		}
		return nil, &loadError{message: err.Error()}
	}
	var joined []backend.Record
	for i, res := range results {
		if def.Unique {
			if err := backend.CheckUnique(res.Data); err != nil {
				return nil, &loadError{message: fmt.Sprintf("%s: %v", def.Sources[i].Endpoint, err)}
			}
		}
		tag := def.Sources[i].Tag
		for _, rec := range res.Data {
			if tag != "" && def.TagField != "" {
				rec = rec.With(def.TagField, tag)
			}
			joined = append(joined, rec)
		}
	}
	if joined == nil {
		joined = []backend.Record{}
	}
	if def.Check != nil {
		if err := def.Check(joined, s.validate); err != nil {
			return nil, &loadError{message: err.Error()}
		}
	}
	return joined, nil
}

func (s *Service) direct(ctx context.Context, loader func(context.Context) (any, error)) backend.Result {
	value, err := loader(ctx)
	if err != nil {
		return backend.Result{Success: false, Message: err.Error()}
	}
	data, _ := value.([]backend.Record)
	return backend.Result{Success: true, Data: data}
}

func (s *Service) logWarn(msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, attrs...)
}
