package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

type stubFetcher struct {
	mu      sync.Mutex
	results map[string]backend.Result
	calls   map[string]int
}

func newStubFetcher(results map[string]backend.Result) *stubFetcher {
	return &stubFetcher{results: results, calls: map[string]int{}}
}

func (f *stubFetcher) FetchAll(ctx context.Context, eps ...backend.Endpoint) ([]backend.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Result, len(eps))
	for i, ep := range eps {
		f.calls[ep.Name]++
		res, ok := f.results[ep.Name]
		if !ok {
			res = backend.Result{Success: true, Data: []backend.Record{}}
		}
		if !res.Success {
			return nil, &backend.JoinError{Endpoint: ep.Name, Message: res.Message}
		}
		out[i] = res
	}
	return out, nil
}

func (f *stubFetcher) Endpoints() backend.Table {
	return backend.DefaultTable()
}

func (f *stubFetcher) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func okResult(recs ...backend.Record) backend.Result {
	return backend.Result{Success: true, Data: recs}
}

func newTestService(t *testing.T, fetcher Fetcher) (*Service, *miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(fetcher, cache, nil), mr, cache
}

var inspectionRecords = []backend.Record{
	{"id": 1.0, "plateNumber": "AA-101", "inspectionStatus": "Approved", "inspectionDate": "2024-03-04"},
	{"id": 2.0, "plateNumber": "AA-102", "inspectionStatus": "Rejected", "inspectionDate": "2024-03-12"},
}

func TestLoadCachesUntilFresh(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{backend.EndpointInspections: okResult(inspectionRecords...)})
	svc, _, _ := newTestService(t, fetcher)
	ctx := context.Background()

	res := svc.Load(ctx, ViewInspections, false)
	require.True(t, res.Success, res.Message)
	assert.Len(t, res.Data, 2)

	res = svc.Load(ctx, ViewInspections, false)
	require.True(t, res.Success)
	assert.Equal(t, "AA-102", res.Data[1].Text("plateNumber"))
	assert.Equal(t, 1, fetcher.count(backend.EndpointInspections))

	res = svc.Load(ctx, ViewInspections, true)
	require.True(t, res.Success)
	assert.Equal(t, 2, fetcher.count(backend.EndpointInspections))
}

func TestLoadFallsBackToDirectFetchWhenRedisIsDown(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{backend.EndpointInspections: okResult(inspectionRecords...)})
	svc, mr, _ := newTestService(t, fetcher)
	mr.Close()

	res := svc.Load(context.Background(), ViewInspections, false)
	require.True(t, res.Success, res.Message)
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 1, fetcher.count(backend.EndpointInspections))
}

func TestLoadTagsJoinedCarSources(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{
		backend.EndpointCars:             okResult(backend.Record{"plateNumber": "AA-1"}),
		backend.EndpointOrganizationCars: okResult(backend.Record{"plateNumber": "OR-1"}),
		backend.EndpointRentCars:         okResult(backend.Record{"plateNumber": "RE-1"}),
	})
	svc, _, _ := newTestService(t, fetcher)

	res := svc.Load(context.Background(), ViewCars, false)
	require.True(t, res.Success, res.Message)
	require.Len(t, res.Data, 3)
	assert.Equal(t, "Regular", res.Data[0].Text("carCategory"))
	assert.Equal(t, "Organization", res.Data[1].Text("carCategory"))
	assert.Equal(t, "Rental", res.Data[2].Text("carCategory"))
}

func TestLoadRejectsDuplicatePlates(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{
		backend.EndpointCars: okResult(
			backend.Record{"plateNumber": "AA-1", "model": "Hilux"},
			backend.Record{"plateNumber": "AA-1", "model": "Corolla"},
		),
	})
	svc, _, _ := newTestService(t, fetcher)
	ctx := context.Background()

	res := svc.Load(ctx, ViewCars, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, backend.EndpointCars)
	assert.Contains(t, res.Message, "unique")

	svc.Load(ctx, ViewCars, false)
	assert.Equal(t, 2, fetcher.count(backend.EndpointCars), "failures are not cached")
}

func TestLoadReportsSchemaViolationAsMessage(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{
		backend.EndpointInspections: okResult(backend.Record{"id": 1.0, "inspectionStatus": "Approved"}),
	})
	svc, _, _ := newTestService(t, fetcher)

	res := svc.Load(context.Background(), ViewInspections, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "plateNumber")
	assert.Contains(t, res.Message, "required")
}

func TestLoadPassesBackendFailureThrough(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{
		backend.EndpointInspections: {Success: false, Message: "db down"},
	})
	svc, _, _ := newTestService(t, fetcher)

	res := svc.Load(context.Background(), ViewInspections, false)
	assert.False(t, res.Success)
	assert.Equal(t, "db down", res.Message)
}

func TestLoadUnknownView(t *testing.T) {
	svc, _, _ := newTestService(t, newStubFetcher(nil))
	res := svc.Load(context.Background(), "payroll", false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown view")

	_, err := svc.Definition("payroll")
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestCacheBumpChangesKeyVersion(t *testing.T) {
	_, _, cache := newTestService(t, newStubFetcher(nil))
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, keySource(ViewCars)...)
	require.NoError(t, err)
	assert.Equal(t, "reports:source:cars:1", before)

	require.NoError(t, cache.Bump(ctx))
	after, err := cache.BuildKey(ctx, keySource(ViewCars)...)
	require.NoError(t, err)
	assert.Equal(t, "reports:source:cars:2", after)
}

func TestListenForInvalidationReportsVersions(t *testing.T) {
	_, _, cache := newTestService(t, newStubFetcher(nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	versions := make(chan int64, 1)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(v int64) { versions <- v }))
	require.NoError(t, cache.Bump(ctx))

	select {
	case v := <-versions:
		assert.Equal(t, int64(1), v)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation received")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{backend.EndpointInspections: okResult(inspectionRecords...)})
	svc, _, _ := newTestService(t, fetcher)
	ctx := context.Background()

	svc.Load(ctx, ViewInspections, false)
	require.NoError(t, svc.Invalidate(ctx))
	svc.Load(ctx, ViewInspections, false)
	assert.Equal(t, 2, fetcher.count(backend.EndpointInspections))
}

func TestWarmStoresData(t *testing.T) {
	fetcher := newStubFetcher(map[string]backend.Result{
		backend.EndpointInspections: okResult(inspectionRecords...),
		backend.EndpointAssignments: {Success: false, Message: "timeout"},
	})
	svc, _, _ := newTestService(t, fetcher)
	ctx := context.Background()

	warmed, err := svc.Warm(ctx, ViewInspections, ViewAssignments, "payroll")
	assert.Equal(t, 1, warmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignments")

	res := svc.Load(ctx, ViewInspections, false)
	require.True(t, res.Success)
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 1, fetcher.count(backend.EndpointInspections))
}

func dashboardFixtures() map[string]backend.Result {
	return map[string]backend.Result{
		backend.EndpointCars: okResult(
			backend.Record{"plateNumber": "AA-1", "status": "AVAILABLE", "registeredDate": "2024-03-02"},
			backend.Record{"plateNumber": "AA-2", "status": "IN_USE", "registeredDate": "2024-03-09"},
		),
		backend.EndpointOrganizationCars: okResult(
			backend.Record{"plateNumber": "OR-1", "status": "AVAILABLE", "createdAt": "2024-03-03"},
		),
		backend.EndpointRentCars: okResult(
			backend.Record{"plateNumber": "RE-1", "status": "AVAILABLE", "dateOfIn": "2024-02-10"},
		),
		backend.EndpointAssignments: okResult(
			backend.Record{"id": 1.0, "requesterName": "Abebe"},
			backend.Record{"id": 2.0, "requesterName": "Abebe"},
			backend.Record{"id": 3.0, "requesterName": "Sara"},
		),
		backend.EndpointDailyRequests: okResult(
			backend.Record{"id": 1.0, "status": "PENDING"},
			backend.Record{"id": 2.0, "status": "pending"},
			backend.Record{"id": 3.0, "status": "COMPLETED"},
		),
		backend.EndpointInspections: okResult(inspectionRecords[0]),
	}
}

func TestSummaryCountsPerSource(t *testing.T) {
	fetcher := newStubFetcher(dashboardFixtures())
	svc, _, _ := newTestService(t, fetcher)

	sum, err := svc.Summary(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, card := range sum.Cards {
		counts[card.Label] = card.Count
	}
	assert.Equal(t, map[string]int{
		"Cars":                   2,
		"Organization cars":      1,
		"Rent cars":              1,
		"Assignments":            3,
		"Users":                  2,
		"Pending daily requests": 2,
		"Inspections":            1,
	}, counts)
	assert.Zero(t, fetcher.count(backend.EndpointFieldRequests))

	assert.Equal(t, []string{"AVAILABLE", "IN_USE"}, sum.CarStatus.Labels)
	assert.Equal(t, []float64{3, 1}, sum.CarStatus.Series[0].Values)

	require.Len(t, sum.Weekly.Labels, 5)
	require.Len(t, sum.Weekly.Series, 2)
	assert.Equal(t, []float64{2, 0, 0, 0, 0}, sum.Weekly.Series[0].Values)
	assert.Equal(t, []float64{0, 1, 0, 0, 0}, sum.Weekly.Series[1].Values)
}

func TestSummaryFailsWhenOneViewFails(t *testing.T) {
	results := dashboardFixtures()
	results[backend.EndpointInspections] = backend.Result{Success: false, Message: "db down"}
	svc, _, _ := newTestService(t, newStubFetcher(results))

	_, err := svc.Summary(context.Background(), time.Now())
	var je *backend.JoinError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, ViewInspections, je.Endpoint)
	assert.Equal(t, "db down", je.Message)
}
