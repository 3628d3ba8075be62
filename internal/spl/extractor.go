package spl

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/catalog"
	"github.com/ACF100/ndc-location-mapper/internal/identifier"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

const (
	ModeStructured = "structured"
	ModeText       = "text"

	DefaultNameMatchLimit = 3

	identifierConfidence = 1.0
	labelerConfidence    = 0.75
	// Name matches are scaled so they always rank below identifier matches.
	nameConfidenceWeight = 0.5
)

// Fetcher retrieves a label document by set id.
type Fetcher interface {
	FetchSPL(ctx context.Context, setID string) ([]byte, error)
}

// Extraction is everything read from one label document for one NDC.
type Extraction struct {
	Establishments []internal.EstablishmentResult
	Hits           []Hit
	Blocks         int
	Mode           string
	Outcome        internal.Outcome
	Err            error
}

type Extractor struct {
	fetch Fetcher
	reg   Registry
	log   *slog.Logger

	NameMatchLimit int
}

func NewExtractor(fetch Fetcher, reg Registry, log *slog.Logger) *Extractor {
	return &Extractor{fetch: fetch, reg: reg, log: logger.OrDefault(log), NameMatchLimit: DefaultNameMatchLimit}
}

// Extract fetches the document and extracts it. A non-2xx answer is a
// not_found outcome; a transport failure is an error outcome. Neither returns
// establishments.
func (e *Extractor) Extract(ctx context.Context, setID, targetNDC string) Extraction {
	doc, err := e.fetch.FetchSPL(ctx, setID)
	if err != nil {
		var se *catalog.StatusError
		if errors.As(err, &se) {
			e.log.Warn("label document unavailable", "set_id", setID, "status", se.Code)
			return Extraction{Outcome: internal.OutcomeNotFound, Err: err}
		}
		e.log.Error("label document fetch failed", "set_id", setID, "error", err)
		return Extraction{Outcome: internal.OutcomeError, Err: err}
	}
	return e.ExtractDocument(doc, targetNDC)
}

// ExtractDocument scans a document for registry identifiers, falling back to
// organization names and then to the labeler's DUNS when nothing matches.
func (e *Extractor) ExtractDocument(doc []byte, targetNDC string) Extraction {
	ex := Extraction{Mode: ModeStructured}
	target := identifier.ExpandNDC(targetNDC)

	var blocks []Block
	root, err := Parse(doc)
	if err != nil {
		e.log.Debug("label document is not well-formed, scanning text", "error", err)
		ex.Mode = ModeText
		content := string(doc)
		ex.Hits = ScanText(content, e.reg)
		blocks = BlocksFromText(content)
	} else {
		ex.Hits = ScanTree(root, e.reg)
		blocks = BlocksFromTree(root)
	}
	ex.Blocks = len(blocks)

	seen := map[string]struct{}{}
	for _, h := range ex.Hits {
		if _, ok := seen[h.Match.Number]; ok {
			continue
		}
		seen[h.Match.Number] = struct{}{}
		ex.Establishments = append(ex.Establishments, e.fromHit(h, blocks, target, targetNDC))
	}

	if len(ex.Hits) == 0 {
		var names []OrgName
		if root != nil {
			names = OrganizationNames(root)
		} else {
			names = OrganizationNamesLenient(doc)
		}
		ex.Establishments = e.byName(names, blocks, target, targetNDC)
		if len(ex.Establishments) > 0 {
			e.log.Debug("no identifiers matched, using organization names", "matches", len(ex.Establishments))
		}
	}

	if len(ex.Establishments) == 0 {
		var lab Labeler
		if root != nil {
			lab = LabelerFromTree(root, doc)
		} else {
			lab = LabelerLenient(doc)
		}
		if res, ok := e.byLabeler(lab, blocks, target, targetNDC); ok {
			ex.Establishments = append(ex.Establishments, res)
		}
	}

	ex.Outcome = internal.OutcomeNotFound
	if len(ex.Establishments) > 0 {
		ex.Outcome = internal.OutcomeFound
	}
	return ex
}

// DocumentLabeler reads the labeler name from a document, using the lenient
// parser when the document is malformed.
func DocumentLabeler(doc []byte) Labeler {
	if root, err := Parse(doc); err == nil {
		return LabelerFromTree(root, doc)
	}
	return LabelerLenient(doc)
}

func (e *Extractor) fromHit(h Hit, blocks []Block, target identifier.Variants, targetNDC string) internal.EstablishmentResult {
	res := internal.EstablishmentResult{
		Facility:   *h.Facility,
		MatchKind:  h.Match.Kind,
		Location:   h.Match.Location,
		Context:    h.Match.Context,
		Confidence: identifierConfidence,
	}
	number := h.Match.Number
	if h.Match.Kind == internal.KindFEI {
		res.FEINumber = &number
	} else {
		res.DUNSNumber = &number
	}

	name := h.Facility.EstablishmentName
	block, ok := firstBlockWith(blocks, number)
	if ok && block.Name != "" {
		name = block.Name
	}
	applyOperations(&res, block, ok, target, targetNDC, name, true)
	return res
}

func (e *Extractor) byName(names []OrgName, blocks []Block, target identifier.Variants, targetNDC string) []internal.EstablishmentResult {
	limit := e.NameMatchLimit
	if limit <= 0 {
		limit = DefaultNameMatchLimit
	}

	var out []internal.EstablishmentResult
	seenRows := map[int]struct{}{}
	for _, n := range names {
		for _, m := range e.reg.FindByName(n.Name, limit) {
			if _, ok := seenRows[m.Record.RowNumber]; ok {
				continue
			}
			seenRows[m.Record.RowNumber] = struct{}{}

			res := internal.EstablishmentResult{
				Facility:   *m.Record,
				MatchKind:  internal.KindName,
				Location:   n.Location,
				Context:    "Organization name: " + n.Name + " | Registry name: " + m.Candidate,
				Confidence: nameConfidenceWeight * m.Score,
			}
			res.Facility.Provenance = internal.ProvenanceNameMatch
			key := m.Record.Key
			if m.Record.Kind == internal.KindFEI {
				res.FEINumber = &key
			} else {
				res.DUNSNumber = &key
			}

			block, ok := blockNamed(blocks, n.Name)
			applyOperations(&res, block, ok, target, targetNDC, n.Name, true)
			out = append(out, res)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func (e *Extractor) byLabeler(lab Labeler, blocks []Block, target identifier.Variants, targetNDC string) (internal.EstablishmentResult, bool) {
	if lab.DUNS == "" {
		return internal.EstablishmentResult{}, false
	}
	rec, _, ok := e.reg.LookupDUNS(lab.DUNS)
	if !ok {
		return internal.EstablishmentResult{}, false
	}

	duns := lab.DUNS
	res := internal.EstablishmentResult{
		Facility:   *rec,
		DUNSNumber: &duns,
		MatchKind:  internal.KindLabeler,
		Location:   "author/representedOrganization",
		Context:    "Labeler: " + util.FirstNonEmpty(lab.Name, unknownName),
		Confidence: labelerConfidence,
	}
	res.Facility.Provenance = internal.ProvenanceLabelerDUNS

	block, found := firstBlockWith(blocks, duns)
	applyOperations(&res, block, found, target, targetNDC, util.FirstNonEmpty(lab.Name, rec.EstablishmentName), false)
	return res, true
}

// applyOperations prefers NDC-specific operations, then general ones. When
// neither exists, inferred adds the placeholder operation.
func applyOperations(res *internal.EstablishmentResult, block Block, found bool, target identifier.Variants, targetNDC, name string, inferred bool) {
	if found {
		if ops := NDCOperations(block, target, targetNDC, name); !ops.Empty() {
			res.Operations, res.Quotes, res.Scope = ops.Labels, ops.Quotes, internal.ScopeNDCSpecific
			return
		}
		if ops := GeneralOperations(block, name); !ops.Empty() {
			res.Operations, res.Quotes, res.Scope = ops.Labels, ops.Quotes, internal.ScopeGeneral
			return
		}
	}
	if inferred {
		res.Operations, res.Scope = []string{OpInferred}, internal.ScopeInferred
		return
	}
	res.Scope = internal.ScopeNone
}

// blockNamed finds the block whose name folds to the same form as name, else
// the first block mentioning name.
func blockNamed(blocks []Block, name string) (Block, bool) {
	folded := util.FoldName(name)
	for _, b := range blocks {
		if b.Name != "" && util.FoldName(b.Name) == folded {
			return b, true
		}
	}
	for _, b := range blocks {
		if strings.Contains(b.Content, name) {
			return b, true
		}
	}
	return Block{}, false
}
