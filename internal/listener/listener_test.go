package listener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/catalog"
	"github.com/ACF100/ndc-location-mapper/internal/config"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/pipeline"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
	"github.com/ACF100/ndc-location-mapper/internal/storage"
)

const labelDocument = `<?xml version="1.0" encoding="UTF-8"?>
<document>
  <assignedEntity>
    <assignedOrganization>
      <id extension="3004568091" root="1.3.6.1.4.1.519.1"/>
      <name>Acme Sterile Manufacturing</name>
    </assignedOrganization>
    <performance><actDefinition>
      <code code="C43360" codeSystem="2.16.840.1.113883.3.26.1.1"/>
      <product><manufacturedProduct><manufacturedMaterialKind>
        <code code="50242-061-01" codeSystem="2.16.840.1.113883.6.69"/>
      </manufacturedMaterialKind></manufacturedProduct></product>
    </actDefinition></performance>
  </assignedEntity>
</document>`

func newTestService(t *testing.T) (*Service, *storage.DB, config.Config) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/v2/spls.json":
			if r.URL.Query().Get("ndc") == "50242-061-01" {
				_, _ = w.Write([]byte(`{"data":[{"setid":"set-1","title":"DRUG","labeler":"Maker"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":[]}`))
		case "/services/v2/spls/set-1.xml":
			_, _ = w.Write([]byte(labelDocument))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	tmp := t.TempDir()
	cfg := config.Config{
		DailyMedBaseURL:    srv.URL,
		OpenFDABaseURL:     srv.URL,
		HTTPTimeoutMs:      2000,
		InboxDir:           filepath.Join(tmp, "inbox"),
		OutputDir:          filepath.Join(tmp, "out"),
		MaxEstablishments:  10,
		LookupConcurrency:  2,
		ListenerBatch:      10,
		ListenerAutoExport: true,
	}
	require.NoError(t, os.MkdirAll(cfg.InboxDir, 0o755))

	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx, _ := registry.BuildIndex(registry.Table{
		Header: []string{"FEI_NUMBER", "ADDRESS"},
		Rows:   [][]string{{"3004568091", "Acme Sterile Manufacturing, Boston, MA, USA"}},
	})
	engine := pipeline.NewEngine(cfg, catalog.NewClient(cfg), idx, logger.Discard())
	proc := pipeline.NewProcessingService(db, engine, cfg, logger.Discard())
	return NewService(db, proc, cfg, logger.Discard()), db, cfg
}

func TestRunCycleProcessesAndExports(t *testing.T) {
	s, db, cfg := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InboxDir, "monday.txt"), []byte("50242-061-01\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InboxDir, "notes.md"), []byte("ignored"), 0o644))

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Found: 1, Stored: 1, Processed: 1, Lookups: 1, Exported: 1}, res)

	req, err := db.GetRequestByID(1)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, internal.RequestExported, req.Status)
	assert.FileExists(t, ExportPath(cfg.OutputDir, *req))
	assert.FileExists(t, req.RawRef)

	again, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Found: 1}, again)
}

func TestRunStopsWithContext(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestDirSourceSkipsHiddenAndDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("ndc\n1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$c.xlsx"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	files, err := DirSource{Dir: dir}.Collect(0)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.csv", files[0].Name)

	files, err = DirSource{Dir: filepath.Join(dir, "missing")}.Collect(0)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestExportPath(t *testing.T) {
	p := ExportPath("/out", internal.RequestRow{ID: 7, Name: "week 3: list.csv"})
	assert.Equal(t, filepath.Join("/out", "listener", "7_week_3__list.xlsx"), p)
}

func TestRequestStoreDedupesByContent(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewRequestStore(db, filepath.Join(tmp, "store"))
	first, isNew, err := store.Store(InboxFile{Name: "monday.csv", Raw: []byte("ndc\n50242-061-01\n")})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, internal.RequestStored, first.Status)
	assert.FileExists(t, first.RawRef)

	again, isNew, err := store.Store(InboxFile{Name: "copy of monday.csv", Raw: []byte("ndc\n50242-061-01\n")})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "monday.csv", again.Name)

	other, isNew, err := store.Store(InboxFile{Name: "tuesday.csv", Raw: []byte("ndc\n0185-0674-01\n")})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestExportMarksEmptyRequestsExported(t *testing.T) {
	svc, db, cfg := newTestService(t)

	req, err := db.UpsertRequest("empty.csv", "hash-empty", "", internal.RequestProcessed)
	require.NoError(t, err)

	exported, err := svc.exportProcessed()
	require.NoError(t, err)
	assert.Zero(t, exported)

	got, err := db.GetRequestByID(req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, internal.RequestExported, got.Status)
	assert.NoFileExists(t, ExportPath(cfg.OutputDir, req))

	pending, err := db.ListRequestsByStatus(internal.RequestProcessed, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
