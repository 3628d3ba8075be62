// Package listener watches the inbox directory for NDC list files, runs each
// new list as a batch and exports the results.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/config"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/pipeline"
	"github.com/ACF100/ndc-location-mapper/internal/storage"
)

// settleDelay lets a file finish being written before a cycle picks it up.
const settleDelay = 500 * time.Millisecond

const storeDirName = ".requests"

type Service struct {
	db     *storage.DB
	proc   *pipeline.ProcessingService
	cfg    config.Config
	log    *slog.Logger
	source Source
	store  *RequestStore
}

func NewService(db *storage.DB, proc *pipeline.ProcessingService, cfg config.Config, log *slog.Logger) *Service {
	return &Service{
		db:     db,
		proc:   proc,
		cfg:    cfg,
		log:    logger.OrDefault(log),
		source: DirSource{Dir: cfg.InboxDir},
		store:  NewRequestStore(db, filepath.Join(cfg.InboxDir, storeDirName)),
	}
}

type CycleResult struct {
	Found     int
	Stored    int
	Processed int
	Lookups   int
	Exported  int
}

// Run runs a cycle at start, on every poll tick and shortly after files
// change in the inbox. It returns when ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.InboxDir, 0o755); err != nil {
		return err
	}

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("inbox watch unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(s.cfg.InboxDir); err != nil {
			s.log.Warn("inbox watch unavailable, polling only", "dir", s.cfg.InboxDir, "error", err)
		} else {
			events, watchErrors = watcher.Events, watcher.Errors
		}
	}

	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.cycle(ctx)
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				settle = time.After(settleDelay)
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			s.log.Warn("inbox watch error", "error", err)
		case <-settle:
			settle = nil
			s.cycle(ctx)
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	res, err := s.RunCycle(ctx)
	if err != nil {
		s.log.Error("listener cycle failed", "error", err)
		return
	}
	s.log.Info("listener cycle done", "found", res.Found, "stored", res.Stored, "processed", res.Processed, "lookups", res.Lookups, "exported", res.Exported)
}

// RunCycle stores new inbox files, processes stored requests and, when auto
// export is on, exports processed ones.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	files, err := s.source.Collect(0)
	if err != nil {
		return res, err
	}
	res.Found = len(files)
	for _, f := range files {
		_, isNew, err := s.store.Store(f)
		if err != nil {
			return res, err
		}
		if isNew {
			res.Stored++
		}
	}

	res.Processed, res.Lookups, err = s.proc.ProcessPending(ctx, s.cfg.ListenerBatch)
	if err != nil {
		return res, err
	}

	if s.cfg.ListenerAutoExport {
		res.Exported, err = s.exportProcessed()
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Service) exportProcessed() (int, error) {
	requests, err := s.db.ListRequestsByStatus(internal.RequestProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, req := range requests {
		rows, err := s.db.GetRequestRows(req.ID)
		if err != nil {
			return exported, err
		}
		if len(rows) == 0 {
			// Nothing to write; it still leaves the processed queue.
			s.log.Warn("request produced no rows", "request_id", req.ID, "name", req.Name)
			_ = s.db.UpdateRequestStatus(req.ID, internal.RequestExported)
			continue
		}
		outputPath := ExportPath(s.cfg.OutputDir, req)
		if err := pipeline.ExportRowsToXLSX(rows, outputPath); err != nil {
			return exported, err
		}
		_ = s.db.UpdateRequestStatus(req.ID, internal.RequestExported)
		exported++
	}
	return exported, nil
}

// ExportPath is where the results of a request are written.
func ExportPath(outputDir string, req internal.RequestRow) string {
	base := strings.TrimSuffix(req.Name, filepath.Ext(req.Name))
	return filepath.Join(outputDir, "listener", fmt.Sprintf("%d_%s.xlsx", req.ID, sanitizeName(base)))
}

func sanitizeName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
