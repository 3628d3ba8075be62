package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ACF100/ndc-location-mapper/internal/catalog"
	"github.com/ACF100/ndc-location-mapper/internal/config"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
)

// fakeServices serves DailyMed search, DailyMed label documents and openFDA
// label search from in-memory maps.
type fakeServices struct {
	mu sync.Mutex

	// spls maps an exact NDC spelling to a DailyMed search hit.
	spls map[string]catalog.SPLSummary
	// labels maps an exact NDC spelling to an openFDA result object.
	labels map[string]string
	docs   map[string]string

	docFetches map[string]int
	searches   []string
}

func newFakeServices() *fakeServices {
	return &fakeServices{
		spls:       map[string]catalog.SPLSummary{},
		labels:     map[string]string{},
		docs:       map[string]string{},
		docFetches: map[string]int{},
	}
}

func (f *fakeServices) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/dailymed/services/v2/spls.json":
		ndc := r.URL.Query().Get("ndc")
		f.searches = append(f.searches, ndc)
		data := []catalog.SPLSummary{}
		if hit, ok := f.spls[ndc]; ok {
			data = append(data, hit)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})

	case strings.HasPrefix(r.URL.Path, "/dailymed/services/v2/spls/"):
		setID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/dailymed/services/v2/spls/"), ".xml")
		f.docFetches[setID]++
		doc, ok := f.docs[setID]
		if !ok {
			http.Error(w, "no such document", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(doc))

	case r.URL.Path == "/drug/label.json":
		search := r.URL.Query().Get("search")
		ndc := strings.TrimSuffix(strings.TrimPrefix(search, `openfda.product_ndc:"`), `"`)
		result, ok := f.labels[ndc]
		if !ok {
			http.Error(w, `{"error":{"code":"NOT_FOUND"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"results":[` + result + `]}`))

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServices) fetches(setID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docFetches[setID]
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		DailyMedBaseURL:   baseURL + "/dailymed",
		OpenFDABaseURL:    baseURL,
		HTTPTimeoutMs:     2000,
		MaxEstablishments: 10,
		NameMatchLimit:    3,
		LookupConcurrency: 2,
	}
}

func testRegistry(t *testing.T) *registry.Index {
	t.Helper()
	idx, report := registry.BuildIndex(registry.Table{
		Header: []string{"FEI Number", "DUNS Number", "Firm Name", "Address"},
		Rows: [][]string{
			{"3004568091", "", "Acme Corp", "Acme Sterile Manufacturing, 1 Main St, Boston, MA 02110, USA"},
			{"1234567", "", "BETA PHARMA LABORATORIES INC", "Beta Plant, 9 Elm Rd, Basel, Switzerland"},
			{"", "081234567", "Delta Holdings", "Delta Plant, 1 Road, Cork, Ireland"},
		},
	})
	if report.Empty() {
		t.Fatal("test registry is empty")
	}
	return idx
}

func newTestEngine(t *testing.T, services *fakeServices) *Engine {
	t.Helper()
	srv := httptest.NewServer(services)
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL)
	return NewEngine(cfg, catalog.NewClient(cfg), testRegistry(t), logger.Discard())
}

func labelDoc(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<document xmlns="urn:hl7-org:v3">
` + body + `
</document>`
}

func author(id, name string) string {
	return `<author><assignedEntity><representedOrganization>
  <id extension="` + id + `" root="1.3.6.1.4.1.519.1"/>
  <name>` + name + `</name>
</representedOrganization></assignedEntity></author>`
}

func establishment(id, name, ops string) string {
	return `<component><section><subject><assignedEntity>
  <assignedOrganization>
    <id extension="` + id + `" root="1.3.6.1.4.1.519.1"/>
    <name>` + name + `</name>
  </assignedOrganization>
` + ops + `
</assignedEntity></subject></section></component>`
}

func performance(opCode, ndc string) string {
	return `<performance><actDefinition>
  <code code="` + opCode + `" codeSystem="2.16.840.1.113883.3.26.1.1"/>
  <product><manufacturedProduct><manufacturedMaterialKind>
    <code code="` + ndc + `" codeSystem="2.16.840.1.113883.6.69"/>
  </manufacturedMaterialKind></manufacturedProduct></product>
</actDefinition></performance>`
}
