// Package pipeline runs NDC lookups end to end: product resolution, label
// document extraction and row assembly, one NDC or a batch at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/catalog"
	"github.com/ACF100/ndc-location-mapper/internal/config"
	"github.com/ACF100/ndc-location-mapper/internal/identifier"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
	"github.com/ACF100/ndc-location-mapper/internal/spl"
)

// ErrInternal is reported for faults that are not a missing product, a missing
// establishment or a malformed document.
var ErrInternal = errors.New("pipeline: internal error")

// LookupResult is everything one lookup produced.
type LookupResult struct {
	TraceID       string
	NDC           string
	NormalizedNDC string
	Status        internal.LookupStatus
	Product       *internal.ProductRecord
	// ProductAttempts counts the product service requests made.
	ProductAttempts int
	ExtractMode     string
	ExtractOutcome  internal.Outcome
	Establishments  []internal.EstablishmentResult
	Rows            []internal.Row
	Duration        time.Duration
	Err             error
}

// Engine is built once per process around a loaded registry and shared by all
// lookups. It holds no per-lookup state.
type Engine struct {
	resolver *catalog.Resolver
	docs     spl.Fetcher
	registry spl.Registry
	log      *slog.Logger

	MaxEstablishments int
	NameMatchLimit    int
}

func NewEngine(cfg config.Config, client *catalog.Client, reg spl.Registry, log *slog.Logger) *Engine {
	log = logger.OrDefault(log)
	if reg == nil {
		reg = registry.NewIndex()
	}
	return &Engine{
		resolver:          catalog.NewResolver(client, log),
		docs:              client,
		registry:          reg,
		log:               log,
		MaxEstablishments: cfg.MaxEstablishments,
		NameMatchLimit:    cfg.NameMatchLimit,
	}
}

// Lookup resolves one NDC to its establishment rows. Missing products and
// failing services are reported through the result status. The error is
// non-nil only for ErrInternal.
func (e *Engine) Lookup(ctx context.Context, ndc string) (res LookupResult, err error) {
	start := time.Now()
	res = LookupResult{TraceID: uuid.NewString(), NDC: ndc}
	log := e.log.With("trace_id", res.TraceID, "ndc", ndc)

	defer func() {
		if p := recover(); p != nil {
			log.Error("lookup failed unexpectedly", "panic", p)
			res.Status = internal.LookupInternalError
			res.Rows = nil
			res.Err = fmt.Errorf("%w: %v", ErrInternal, p)
			err = res.Err
		}
		res.Duration = time.Since(start)
	}()

	if !identifier.ValidateNDC(ndc) {
		res.Status = internal.LookupInvalidNDC
		log.Info("invalid ndc")
		return res, nil
	}
	res.NormalizedNDC = identifier.NormalizeNDC(ndc)

	docs := newDocumentCache(e.docs)
	product := e.resolver.Resolve(ctx, ndc, func(ctx context.Context, setID string) string {
		doc, err := docs.FetchSPL(ctx, setID)
		if err != nil {
			return ""
		}
		return spl.DocumentLabeler(doc).Name
	})
	res.ProductAttempts = product.Attempts
	if !product.Found() {
		res.Status = internal.LookupNoProduct
		res.Err = product.Err
		log.Info("no product found", "attempts", product.Attempts, "outcome", product.Outcome)
		return res, nil
	}

	rec := product.Product
	res.Product = &rec
	log.Debug("product resolved", "source", rec.Source, "variant", product.Variant, "attempts", product.Attempts)

	if rec.SPLID != nil {
		extractor := spl.NewExtractor(docs, e.registry, log)
		if e.NameMatchLimit > 0 {
			extractor.NameMatchLimit = e.NameMatchLimit
		}
		ex := extractor.Extract(ctx, *rec.SPLID, ndc)
		res.ExtractMode = ex.Mode
		res.ExtractOutcome = ex.Outcome
		res.Establishments = ex.Establishments
		if ex.Err != nil {
			res.Err = ex.Err
		}
	}

	res.Rows = Assemble(rec, res.Establishments, e.MaxEstablishments)
	res.Status = internal.LookupOK
	log.Info("lookup done", "establishments", len(res.Establishments), "rows", len(res.Rows))
	return res, nil
}

// documentCache fetches each label document at most once per lookup, so the
// labeler fallback and the extractor share one download.
type documentCache struct {
	fetch spl.Fetcher
	docs  map[string]cachedDocument
}

type cachedDocument struct {
	body []byte
	err  error
}

func newDocumentCache(fetch spl.Fetcher) *documentCache {
	return &documentCache{fetch: fetch, docs: map[string]cachedDocument{}}
}

func (c *documentCache) FetchSPL(ctx context.Context, setID string) ([]byte, error) {
	if d, ok := c.docs[setID]; ok {
		return d.body, d.err
	}
	body, err := c.fetch.FetchSPL(ctx, setID)
	if ctx.Err() == nil {
		c.docs[setID] = cachedDocument{body: body, err: err}
	}
	return body, err
}
