package catalog

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/identifier"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
)

const unknownName = "Unknown"

var (
	reBracketed      = regexp.MustCompile(`\[([^\]]+)\]`)
	reTrailingSuffix = regexp.MustCompile(`(?i)\s+(inc|llc|corp|ltd|co\.?|company)\.?$`)
)

// ProductSource looks up one NDC spelling. A miss is ErrNotFound; anything else
// is a failed attempt.
type ProductSource interface {
	Name() string
	LookupProduct(ctx context.Context, variant string) (internal.ProductRecord, error)
}

// ProductResult is the outcome of resolving one NDC across all sources.
type ProductResult struct {
	Product  internal.ProductRecord
	Outcome  internal.Outcome
	Variant  string
	Attempts int
	// Err holds the last transport failure, if any, even when the outcome is
	// not_found.
	Err error
}

func (r ProductResult) Found() bool { return r.Outcome == internal.OutcomeFound }

// DocumentLabelerFunc reads the labeler named by a label document. It returns
// "" when the document names none.
type DocumentLabelerFunc func(ctx context.Context, setID string) string

// Resolver tries each source in order and, within a source, each NDC spelling in
// order, stopping at the first hit.
type Resolver struct {
	Sources []ProductSource
	log     *slog.Logger
}

func NewResolver(client *Client, log *slog.Logger) *Resolver {
	return &Resolver{
		Sources: []ProductSource{DailyMed{Client: client}, OpenFDA{Client: client}},
		log:     logger.OrDefault(log),
	}
}

// Resolve maps ndc to a product record. A generic or missing labeler name is
// replaced by a bracketed manufacturer in the title, then by docLabeler when
// given. Transport failures are absorbed; only a cancelled context yields an
// error outcome.
func (r *Resolver) Resolve(ctx context.Context, ndc string, docLabeler DocumentLabelerFunc) ProductResult {
	forms := identifier.SearchForms(ndc)
	result := ProductResult{Outcome: internal.OutcomeNotFound}

	for _, src := range r.Sources {
		for _, variant := range forms {
			if err := ctx.Err(); err != nil {
				result.Outcome = internal.OutcomeError
				result.Err = err
				return result
			}

			result.Attempts++
			rec, err := src.LookupProduct(ctx, variant)
			if err != nil {
				if !IsNotFound(err) {
					result.Err = err
					r.log.Debug("product lookup failed", "source", src.Name(), "variant", variant, "error", err)
				}
				continue
			}

			rec.NDC = ndc
			rec.ProductName = strings.TrimSpace(rec.ProductName)
			if rec.ProductName == "" {
				rec.ProductName = unknownName
			}
			rec.LabelerName = r.labeler(ctx, rec, docLabeler)

			result.Product = rec
			result.Outcome = internal.OutcomeFound
			result.Variant = variant
			return result
		}
	}

	if err := ctx.Err(); err != nil {
		result.Outcome = internal.OutcomeError
		result.Err = err
	}
	return result
}

func (r *Resolver) labeler(ctx context.Context, rec internal.ProductRecord, docLabeler DocumentLabelerFunc) string {
	if !IsGenericLabeler(rec.LabelerName) {
		return strings.TrimSpace(rec.LabelerName)
	}
	if name := BracketedManufacturer(rec.ProductName); name != "" {
		return name
	}
	if docLabeler != nil && rec.SPLID != nil {
		if name := strings.TrimSpace(docLabeler(ctx, *rec.SPLID)); name != "" {
			return name
		}
	}
	return unknownName
}

// IsGenericLabeler reports whether a labeler value carries no usable name.
func IsGenericLabeler(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "unknown", "n/a", "na", "none", "various", "not available":
		return true
	}
	return false
}

// BracketedManufacturer returns the last "[...]" tag of a product title, as in
// "ACETAMINOPHEN tablet [Acme Pharma Inc]", when it is longer than three
// characters once a corporate suffix is ignored.
func BracketedManufacturer(title string) string {
	matches := reBracketed.FindAllStringSubmatch(title, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		tag := strings.TrimSpace(matches[i][1])
		if len(strings.TrimSpace(reTrailingSuffix.ReplaceAllString(tag, ""))) > 3 {
			return tag
		}
	}
	return ""
}
