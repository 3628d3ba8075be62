package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRequestLifecycle(t *testing.T) {
	db := openTestDB(t)

	req, err := db.UpsertRequest("batch.txt", "hash-1", "/tmp/hash-1.txt", internal.RequestStored)
	require.NoError(t, err)
	assert.Equal(t, "batch.txt", req.Name)
	assert.Equal(t, internal.RequestStored, req.Status)

	again, err := db.UpsertRequest("renamed.txt", "hash-1", "/tmp/hash-1.txt", internal.RequestStored)
	require.NoError(t, err)
	assert.Equal(t, req.ID, again.ID)
	assert.Equal(t, "renamed.txt", again.Name)

	pending, err := db.ListRequestsByStatus(internal.RequestStored, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, db.UpdateRequestStatus(req.ID, internal.RequestProcessed))
	got, err := db.GetRequestByID(req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, internal.RequestProcessed, got.Status)

	missing, err := db.GetRequestByHash("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLookupRowsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	req, err := db.UpsertRequest("batch.txt", "hash-2", "/tmp/x", internal.RequestStored)
	require.NoError(t, err)

	rows := []internal.Row{
		{NDC: "50242-061-01", ProductName: "Drug", FEINumber: util.StringPtr("3004568091"), Confidence: 1, Status: internal.RowStatusOK},
		{NDC: "50242-061-01", ProductName: "Drug", DUNSNumber: util.StringPtr("081234567"), Latitude: util.FloatPtr(42.1), Status: internal.RowStatusOK},
	}
	id, err := db.InsertLookup(internal.LookupRow{
		TraceID:        "trace-1",
		RequestID:      &req.ID,
		NDC:            "50242-061-01",
		NormalizedNDC:  "50242-061-01",
		Status:         internal.LookupOK,
		ProductName:    util.StringPtr("Drug"),
		Establishments: 2,
		DurationMs:     15,
	}, rows)
	require.NoError(t, err)

	stored, err := db.GetLookupRows(int(id))
	require.NoError(t, err)
	assert.Equal(t, rows, stored)

	byRequest, err := db.GetRequestRows(req.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, byRequest)

	l, err := db.GetLookup(int(id))
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "trace-1", l.TraceID)
	assert.Equal(t, internal.LookupOK, l.Status)
	require.NotNil(t, l.RequestID)
	assert.Equal(t, req.ID, *l.RequestID)
	assert.Nil(t, l.SPLID)
	assert.Nil(t, l.Error)

	require.NoError(t, db.ClearRequestLookups(req.ID))
	byRequest, err = db.GetRequestRows(req.ID)
	require.NoError(t, err)
	assert.Empty(t, byRequest)
}

func TestListLookupsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	for _, trace := range []string{"a", "b", "c"} {
		_, err := db.InsertLookup(internal.LookupRow{TraceID: trace, NDC: "1", Status: internal.LookupNoProduct}, nil)
		require.NoError(t, err)
	}

	list, err := db.ListLookups(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].TraceID)
	assert.Equal(t, "b", list[1].TraceID)
	assert.Nil(t, list[0].RequestID)
}

func TestRegistryLoads(t *testing.T) {
	db := openTestDB(t)

	none, err := db.LastRegistryLoad("registry.xlsx")
	require.NoError(t, err)
	assert.Nil(t, none)

	report := registry.LoadReport{
		Source: "registry.xlsx", Format: registry.FormatXLSX, Sheet: "Sheet1",
		Rows: 10, Skipped: 1, FEIRecords: 8, DUNSRecords: 3, FEIKeys: 80, DUNSKeys: 30,
		Collisions: 2, Warnings: []string{"2 identifier variants were claimed by more than one row"},
	}
	require.NoError(t, db.InsertRegistryLoad(report))

	last, err := db.LastRegistryLoad("registry.xlsx")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, report, *last)
}

func TestMetadataAndRuns(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SetMetadata("registry_path", "a.xlsx"))
	require.NoError(t, db.SetMetadata("registry_path", "b.xlsx"))
	v, err := db.GetMetadata("registry_path")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "b.xlsx", *v)

	require.NoError(t, db.InsertRun("trace", nil, map[string]float64{"totalMs": 3}, map[string]int{"lookups": 1}))
}
