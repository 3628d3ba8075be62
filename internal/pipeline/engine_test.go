package pipeline

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/catalog"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
)

func TestLookupIdentifierMatch(t *testing.T) {
	services := newFakeServices()
	services.spls["50242-061-01"] = catalog.SPLSummary{SetID: "set-1", Title: "STERILE DRUG injection", Labeler: "Registrant Inc"}
	services.docs["set-1"] = labelDoc(author("999999999", "Registrant Inc") +
		establishment("003004568091", "Acme Sterile Manufacturing", performance("C43360", "50242-061-01")))

	res, err := newTestEngine(t, services).Lookup(context.Background(), "50242-061-01")
	require.NoError(t, err)

	assert.Equal(t, internal.LookupOK, res.Status)
	assert.NotEmpty(t, res.TraceID)
	require.NotNil(t, res.Product)
	assert.Equal(t, "STERILE DRUG injection", res.Product.ProductName)
	assert.Equal(t, "Registrant Inc", res.Product.LabelerName)
	assert.Equal(t, catalog.SourceDailyMed, res.Product.Source)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "50242-061-01", row.NDC)
	assert.Equal(t, "Acme Sterile Manufacturing", *row.EstablishmentName)
	assert.Equal(t, "Acme Corp", *row.FirmName)
	assert.Equal(t, "003004568091", *row.FEINumber)
	assert.Nil(t, row.DUNSNumber)
	assert.Equal(t, "Manufacture", *row.Operations)
	assert.Equal(t, "Found Manufacture operation for NDC 50242-061-01 in Acme Sterile Manufacturing", *row.Quotes)
	assert.Equal(t, internal.ProvenanceFEI, row.SearchMethod)
	assert.Equal(t, string(internal.KindFEI), *row.MatchType)
	assert.Equal(t, internal.RowStatusOK, row.Status)
	assert.Equal(t, 1.0, row.Confidence)
	assert.Equal(t, "set-1", *row.SPLID)
}

func TestLookupSegmentConventions(t *testing.T) {
	services := newFakeServices()
	services.spls["00185-0674-01"] = catalog.SPLSummary{SetID: "set-2", Title: "TABLET [Beta Pharma Labs]"}
	services.docs["set-2"] = labelDoc(
		establishment("3004568091", "Acme Sterile Manufacturing", performance("C84731", "00185-0674-01")))

	res, err := newTestEngine(t, services).Lookup(context.Background(), "0185-0674-01")
	require.NoError(t, err)

	assert.Equal(t, internal.LookupOK, res.Status)
	assert.Equal(t, "0185-0674-01", res.NormalizedNDC)
	require.NotNil(t, res.Product)
	assert.Equal(t, "0185-0674-01", res.Product.NDC)
	assert.Equal(t, "Beta Pharma Labs", res.Product.LabelerName)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Pack", *res.Rows[0].Operations)
	assert.Contains(t, services.searches, "00185-0674-01")
}

func TestLookupNameMatch(t *testing.T) {
	services := newFakeServices()
	services.spls["50242-061-01"] = catalog.SPLSummary{SetID: "set-3", Title: "DRUG", Labeler: "Beta Pharma Labs"}
	services.docs["set-3"] = labelDoc(author("555", "Beta Pharma Labs"))

	res, err := newTestEngine(t, services).Lookup(context.Background(), "50242-061-01")
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, string(internal.KindName), *row.MatchType)
	assert.Equal(t, internal.ProvenanceNameMatch, row.SearchMethod)
	assert.Equal(t, "BETA PHARMA LABORATORIES INC", *row.FirmName)
	assert.LessOrEqual(t, row.Confidence, 0.5)
	assert.Equal(t, "1234567", *row.FEINumber)
}

func TestLookupNoProduct(t *testing.T) {
	services := newFakeServices()

	res, err := newTestEngine(t, services).Lookup(context.Background(), "50242-061-01")
	require.NoError(t, err)

	assert.Equal(t, internal.LookupNoProduct, res.Status)
	assert.Nil(t, res.Product)
	assert.Empty(t, res.Rows)
	assert.NoError(t, res.Err)
	assert.Greater(t, res.ProductAttempts, 1)
}

func TestLookupInvalidNDC(t *testing.T) {
	services := newFakeServices()

	res, err := newTestEngine(t, services).Lookup(context.Background(), "12-ab")
	require.NoError(t, err)
	assert.Equal(t, internal.LookupInvalidNDC, res.Status)
	assert.Empty(t, services.searches)
}

func TestLookupSecondaryServiceWithoutDocument(t *testing.T) {
	services := newFakeServices()
	services.labels["50242-061-01"] = `{"openfda":{"brand_name":["Brandol"],"manufacturer_name":["Maker Co"]}}`

	res, err := newTestEngine(t, services).Lookup(context.Background(), "50242-061-01")
	require.NoError(t, err)

	assert.Equal(t, internal.LookupOK, res.Status)
	require.NotNil(t, res.Product)
	assert.Equal(t, catalog.SourceOpenFDA, res.Product.Source)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, internal.RowStatusNoEstablish, row.Status)
	assert.Equal(t, "Brandol", row.ProductName)
	assert.Equal(t, "Maker Co", row.LabelerName)
	assert.Nil(t, row.SPLID)
}

func TestLookupFetchesDocumentOnce(t *testing.T) {
	services := newFakeServices()
	services.spls["50242-061-01"] = catalog.SPLSummary{SetID: "set-4", Title: "DRUG"}
	services.docs["set-4"] = labelDoc(author("555", "Gamma Labs LLC") +
		establishment("3004568091", "Acme Sterile Manufacturing", ""))

	res, err := newTestEngine(t, services).Lookup(context.Background(), "50242-061-01")
	require.NoError(t, err)

	assert.Equal(t, "Gamma Labs LLC", res.Product.LabelerName)
	assert.Equal(t, 1, services.fetches("set-4"))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Manufacture (inferred, unconfirmed)", *res.Rows[0].Operations)
}

func TestLookupDocumentUnavailable(t *testing.T) {
	services := newFakeServices()
	services.spls["50242-061-01"] = catalog.SPLSummary{SetID: "missing", Title: "DRUG", Labeler: "Maker"}

	res, err := newTestEngine(t, services).Lookup(context.Background(), "50242-061-01")
	require.NoError(t, err)

	assert.Equal(t, internal.LookupOK, res.Status)
	assert.Equal(t, internal.OutcomeNotFound, res.ExtractOutcome)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, internal.RowStatusNoEstablish, res.Rows[0].Status)
}

type panicSource struct{}

func (panicSource) Name() string { return "panic" }

func (panicSource) LookupProduct(context.Context, string) (internal.ProductRecord, error) {
	panic("index corrupted")
}

func TestLookupRecoversInternalFault(t *testing.T) {
	e := newTestEngine(t, newFakeServices())
	e.resolver.Sources = []catalog.ProductSource{panicSource{}}

	res, err := e.Lookup(context.Background(), "50242-061-01")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Equal(t, internal.LookupInternalError, res.Status)
	assert.Empty(t, res.Rows)
	assert.Contains(t, err.Error(), "index corrupted")
}

func TestLookupWithMissingRegistry(t *testing.T) {
	services := newFakeServices()
	services.spls["0185-0674-01"] = catalog.SPLSummary{SetID: "set-9", Title: "TABLET", Labeler: "Maker"}
	services.docs["set-9"] = labelDoc(
		establishment("3004568091", "Acme Sterile Manufacturing", performance("C84731", "0185-0674-01")))
	srv := httptest.NewServer(services)
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL)

	idx, report, err := registry.Load(filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
	require.NotNil(t, idx)
	assert.True(t, report.Empty())
	assert.NotEmpty(t, report.Warnings)

	engine := NewEngine(cfg, catalog.NewClient(cfg), idx, logger.Discard())
	res, err := engine.Lookup(context.Background(), "0185-0674-01")
	require.NoError(t, err)

	assert.Equal(t, internal.LookupOK, res.Status)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, internal.RowStatusNoEstablish, res.Rows[0].Status)
	assert.Equal(t, "TABLET", res.Rows[0].ProductName)
}
