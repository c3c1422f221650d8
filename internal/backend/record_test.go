package backend

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"id":           float64(12),
		"plateNumber":  "AA-12",
		"kmDifference": "42.5",
		"active":       true,
		"location":     map[string]any{"latitude": 9.03, "name": "Bole"},
		"dateTime":     []any{float64(2025), float64(3), float64(4), float64(10), float64(30)},
	}

	assert.Equal(t, "12", rec.ID())
	assert.Equal(t, "AA-12", rec.Text("plateNumber"))
	assert.Equal(t, "true", rec.Text("active"))
	assert.Equal(t, "Bole", rec.Text("location.name"))
	assert.Equal(t, "", rec.Text("location"))

	km, ok := rec.Number("kmDifference")
	require.True(t, ok)
	assert.InDelta(t, 42.5, km, 0.0001)

	lat, ok := rec.Number("location.latitude")
	require.True(t, ok)
	assert.InDelta(t, 9.03, lat, 0.0001)

	ts, ok := rec.Date("dateTime")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC), ts)
}

func TestRecordDateLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2025-02-15":                time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
		"2025-02-15T08:09:10":       time.Date(2025, 2, 15, 8, 9, 10, 0, time.UTC),
		"2025-02-15T08:09:10.123":   time.Date(2025, 2, 15, 8, 9, 10, 123000000, time.UTC),
		"2025-02-15T08:09:10Z":      time.Date(2025, 2, 15, 8, 9, 10, 0, time.UTC),
		"2025-02-15 08:09:10":       time.Date(2025, 2, 15, 8, 9, 10, 0, time.UTC),
	}
	for input, want := range cases {
		got, ok := Record{"d": input}.Date("d")
		require.True(t, ok, input)
		assert.True(t, want.Equal(got), "%s: got %s", input, got)
	}

	for _, bad := range []any{"not a date", "", nil, float64(3), []any{float64(2025), float64(13), float64(1)}} {
		_, ok := Record{"d": bad}.Date("d")
		assert.False(t, ok, "%v", bad)
	}
	_, ok := Record{}.Date("d")
	assert.False(t, ok)
}

func TestRecordIDFallsBackToPlate(t *testing.T) {
	assert.Equal(t, "XY-1", Record{"plateNumber": "XY-1"}.ID())
	assert.Equal(t, "", Record{}.ID())
}

func TestRecordWithCopies(t *testing.T) {
	src := Record{"a": "1"}
	out := src.With("type", "rent")

	assert.Equal(t, "rent", out.Text("type"))
	_, present := src["type"]
	assert.False(t, present)
}

func TestLoadTableOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`endpoints:
  - name: cars
    path: /v2/cars
  - name: fuel
    path: /api/fuel/all
    keys: [fuelRequests]
`), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)

	cars, err := table.Lookup(EndpointCars)
	require.NoError(t, err)
	assert.Equal(t, "/v2/cars", cars.Path)
	assert.Equal(t, []string{"carList", "data"}, cars.Keys)

	fuel, err := table.Lookup("fuel")
	require.NoError(t, err)
	assert.Equal(t, []string{"fuelRequests"}, fuel.Keys)

	_, err = table.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestLoadTableRejectsPathlessEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoints:\n  - name: brand-new\n"), 0o600))

	_, err := LoadTable(path)
	assert.Error(t, err)
}

func TestEndpointWithQuery(t *testing.T) {
	ep := Endpoint{Path: "/api/maintenance-requests/driver"}
	assert.Equal(t, "/api/maintenance-requests/driver?driverName=Abebe", ep.WithQuery("driverName=Abebe").Path)
	assert.Equal(t, ep.Path, ep.WithQuery("").Path)
}
