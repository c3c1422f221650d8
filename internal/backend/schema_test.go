package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type carRow struct {
	PlateNumber string `json:"plateNumber" validate:"required"`
	Status      string `json:"status"`
}

func TestDecodeValidRows(t *testing.T) {
	rows, err := Decode[carRow]([]Record{{"plateNumber": "AA-1", "status": "Active"}}, nil)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "AA-1", rows[0].PlateNumber)
}

func TestDecodeReportsMissingField(t *testing.T) {
	_, err := Decode[carRow]([]Record{{"plateNumber": "AA-1"}, {"status": "Active"}}, NewValidator())

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, 1, schemaErr.Index)
	assert.Equal(t, "plateNumber", schemaErr.Field)
	assert.Equal(t, "required", schemaErr.Rule)
	assert.Equal(t, "malformed record 1: field plateNumber failed required", schemaErr.Error())
}

func TestDecodeReportsWrongType(t *testing.T) {
	err := Check[carRow]([]Record{{"plateNumber": float64(7)}}, nil)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, 0, schemaErr.Index)
	assert.Equal(t, "plateNumber", schemaErr.Field)
}

func TestCheckUnique(t *testing.T) {
	assert.NoError(t, CheckUnique([]Record{{"id": float64(1)}, {"id": float64(2)}, {}}))

	err := CheckUnique([]Record{{"plateNumber": "A"}, {"plateNumber": "B"}, {"plateNumber": "A"}})
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, 2, schemaErr.Index)
	assert.Equal(t, "unique", schemaErr.Rule)
}

func TestNormalizeNonJSON(t *testing.T) {
	records, err := Normalize([]byte("<html>"), []string{"data"})

	assert.Error(t, err)
	assert.Empty(t, records)
}
