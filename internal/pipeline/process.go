package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/config"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/storage"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

// ProcessingService runs stored batch requests through the engine and records
// every lookup in the audit store.
type ProcessingService struct {
	db     *storage.DB
	engine *Engine
	cfg    config.Config
	log    *slog.Logger
}

func NewProcessingService(db *storage.DB, engine *Engine, cfg config.Config, log *slog.Logger) *ProcessingService {
	return &ProcessingService{db: db, engine: engine, cfg: cfg, log: logger.OrDefault(log)}
}

type ProcessResult struct {
	RequestID int
	Lookups   int
	Rows      int
	Counts    map[string]int
}

// ProcessPending processes up to limit stored requests, oldest first. A request
// whose file cannot be read is marked failed and skipped.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int) (int, int, error) {
	pending, err := s.db.ListRequestsByStatus(internal.RequestStored, limit)
	if err != nil {
		return 0, 0, err
	}
	processedRequests := 0
	processedLookups := 0
	for _, req := range pending {
		res, err := s.ProcessRequest(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return processedRequests, processedLookups, ctx.Err()
			}
			s.log.Warn("request failed", "request_id", req.ID, "name", req.Name, "error", err)
			_ = s.db.UpdateRequestStatus(req.ID, internal.RequestFailed)
			continue
		}
		processedRequests++
		processedLookups += res.Lookups
	}
	return processedRequests, processedLookups, nil
}

func (s *ProcessingService) ProcessRequest(ctx context.Context, req internal.RequestRow) (ProcessResult, error) {
	start := time.Now()
	ndcs, err := ReadNDCList(req.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}
	if len(ndcs) == 0 {
		return ProcessResult{}, fmt.Errorf("request %s lists no ndc", req.Name)
	}

	if err := s.db.ClearRequestLookups(req.ID); err != nil {
		return ProcessResult{}, err
	}

	results, err := s.engine.LookupBatch(ctx, ndcs, s.cfg.LookupConcurrency, nil)
	if err != nil {
		return ProcessResult{}, err
	}

	requestID := req.ID
	out := ProcessResult{RequestID: req.ID, Counts: map[string]int{}}
	for _, res := range results {
		if _, err := s.RecordLookup(res, &requestID); err != nil {
			return ProcessResult{}, err
		}
		out.Lookups++
		out.Rows += len(res.Rows)
		out.Counts[string(res.Status)]++
	}

	if err := s.db.UpdateRequestStatus(req.ID, internal.RequestProcessed); err != nil {
		return ProcessResult{}, err
	}
	counts := map[string]int{"lookups": out.Lookups, "rows": out.Rows}
	for k, v := range out.Counts {
		counts[k] = v
	}
	_ = s.db.InsertRun(uuid.NewString(), &requestID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, counts)

	s.log.Info("request processed", "request_id", req.ID, "lookups", out.Lookups, "rows", out.Rows)
	return out, nil
}

// RecordLookup writes one lookup and its rows to the audit store.
func (s *ProcessingService) RecordLookup(res LookupResult, requestID *int) (int64, error) {
	return s.db.InsertLookup(LookupRowFromResult(res, requestID), res.Rows)
}

func LookupRowFromResult(res LookupResult, requestID *int) internal.LookupRow {
	row := internal.LookupRow{
		TraceID:        res.TraceID,
		RequestID:      requestID,
		NDC:            res.NDC,
		NormalizedNDC:  res.NormalizedNDC,
		Status:         res.Status,
		ExtractMode:    optional(res.ExtractMode),
		Establishments: len(res.Establishments),
		DurationMs:     res.Duration.Milliseconds(),
	}
	if p := res.Product; p != nil {
		row.ProductName = optional(p.ProductName)
		row.LabelerName = optional(p.LabelerName)
		row.SPLID = p.SPLID
		row.ProductSource = optional(p.Source)
	}
	if res.Err != nil {
		row.Error = util.StringPtr(res.Err.Error())
	}
	return row
}
