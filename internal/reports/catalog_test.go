package reports

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

func filterIDs(t *testing.T, view string, q url.Values, items []backend.Record) []string {
	t.Helper()
	def, ok := Catalog()[view]
	require.True(t, ok, view)
	var ids []string
	for _, rec := range def.Apply(items, def.ParseFilter(q)) {
		ids = append(ids, rec.ID())
	}
	return ids
}

func TestCatalogListsEveryView(t *testing.T) {
	cat := Catalog()
	require.Len(t, cat, len(Names()))
	for _, name := range Names() {
		def := cat[name]
		assert.Equal(t, name, def.Name)
		assert.NotEmpty(t, def.Sources, name)
		assert.NotEmpty(t, def.Columns, name)
	}
}

func TestAssignmentPlateMatchesAllPlateNumbers(t *testing.T) {
	items := []backend.Record{
		{"id": "a1", "plateNumber": "AA-100"},
		{"id": "a2", "plateNumber": "", "allPlateNumbers": []any{"BB-200", "CC-300"}},
		{"id": "a3", "plateNumber": "DD-400"},
	}
	assert.Equal(t, []string{"a2"}, filterIDs(t, ViewAssignments, url.Values{"plateNumber": {"cc-3"}}, items))
	assert.Equal(t, []string{"a1"}, filterIDs(t, ViewAssignments, url.Values{"plateNumber": {"AA"}}, items))
}

func TestCarTypeFilterMatchesCategoryTag(t *testing.T) {
	items := []backend.Record{
		{"plateNumber": "AA-1", "carCategory": "Regular", "carType": "Pickup"},
		{"plateNumber": "OR-1", "carCategory": "Organization", "carType": "Sedan"},
		{"plateNumber": "RE-1", "carCategory": "Rental", "carType": "Organization"},
	}
	assert.Equal(t, []string{"OR-1"}, filterIDs(t, ViewCars, url.Values{"carType": {"organization"}}, items))
}

func TestFieldServiceClaimantMatchesTraveler(t *testing.T) {
	items := []backend.Record{
		{"id": "f1", "claimantName": "Abebe Kebede"},
		{"id": "f2", "travelerName": "Sara Tesfaye"},
		{"id": "f3", "claimantName": "Abel Girma", "travelerName": "Tsegaye"},
	}
	assert.Equal(t, []string{"f2"}, filterIDs(t, ViewFieldServices, url.Values{"claimantName": {"sara"}}, items))
	assert.Equal(t, []string{"f3"}, filterIDs(t, ViewFieldServices, url.Values{"claimantName": {"tsega"}}, items))
}

func TestCarRegisteredRangeFallsBackToCreatedAt(t *testing.T) {
	items := []backend.Record{
		{"plateNumber": "AA-1", "registeredDate": "2024-03-02"},
		{"plateNumber": "AA-2", "createdAt": "2024-03-20"},
		{"plateNumber": "AA-3", "registeredDate": "2024-04-01"},
	}
	q := url.Values{"start": {"2024-03-01"}, "end": {"2024-03-31"}}
	assert.Equal(t, []string{"AA-1", "AA-2"}, filterIDs(t, ViewCars, q, items))
}
