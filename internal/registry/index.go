// Package registry loads the facility spreadsheet and indexes every FEI and
// DUNS spelling it contains.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/identifier"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

const (
	MinFEIDigits  = 7
	MinDUNSDigits = 8

	DefaultNameMinLength = 4
)

// Index maps identifier variants to facility records. It is built once and
// only read afterwards, so concurrent lookups need no locking.
type Index struct {
	ByFEI  map[string]*internal.FacilityRecord
	ByDUNS map[string]*internal.FacilityRecord
	// Facilities lists every record in load order.
	Facilities []*internal.FacilityRecord

	NameMinLength int
}

// LoadReport summarizes a registry load for the operator.
type LoadReport struct {
	Source      string
	Format      string
	Sheet       string
	Rows        int
	Skipped     int
	FEIRecords  int
	DUNSRecords int
	FEIKeys     int
	DUNSKeys    int
	// Collisions counts variant keys that a later row took over from an
	// earlier, different row.
	Collisions int
	Warnings   []string
}

func (r LoadReport) Empty() bool {
	return r.FEIRecords == 0 && r.DUNSRecords == 0
}

func NewIndex() *Index {
	return &Index{
		ByFEI:         map[string]*internal.FacilityRecord{},
		ByDUNS:        map[string]*internal.FacilityRecord{},
		NameMinLength: DefaultNameMinLength,
	}
}

// Load reads a registry file. A missing or unreadable file is an error; a file
// without the required columns yields an empty index and a warning.
func Load(path string) (*Index, LoadReport, error) {
	table, err := ReadTable(path)
	if err != nil {
		return NewIndex(), LoadReport{Source: path, Warnings: []string{err.Error()}}, err
	}
	idx, report := BuildIndex(table)
	report.Source = path
	return idx, report, nil
}

// BuildIndex inserts every variant of every usable FEI and DUNS value. On a key
// collision the later row wins.
func BuildIndex(t Table) (*Index, LoadReport) {
	idx := NewIndex()
	report := LoadReport{Format: t.Format, Sheet: t.Sheet, Rows: len(t.Rows)}

	cols := DiscoverColumns(t.Header)
	if !cols.Usable() {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("registry not loaded: missing %s", strings.Join(cols.Missing(), " and ")))
		return idx, report
	}

	for i := range t.Rows {
		rowNumber := i + 2
		if i < len(t.RowNumbers) {
			rowNumber = t.RowNumbers[i]
		}

		address := cellValue(t.Cell(i, cols.Address))
		if address == "" {
			report.Skipped++
			continue
		}
		parsed := ParseAddress(address)

		firm := unknown
		if cols.FirmName >= 0 {
			if v := cellValue(t.Cell(i, cols.FirmName)); v != "" {
				firm = v
			}
		}

		base := internal.FacilityRecord{
			EstablishmentName: parsed.EstablishmentName,
			FirmName:          firm,
			AddressLine1:      parsed.Line1,
			City:              parsed.City,
			StateProvince:     parsed.StateProvince,
			Country:           parsed.Country,
			PostalCode:        parsed.PostalCode,
			RowNumber:         rowNumber,
		}

		if cols.FEI >= 0 {
			if raw := cellValue(t.Cell(i, cols.FEI)); len(util.Digits(raw)) >= MinFEIDigits {
				rec := base
				rec.Key = util.Digits(raw)
				rec.Kind = internal.KindFEI
				rec.OriginalID = raw
				rec.Provenance = internal.ProvenanceFEI
				report.Collisions += idx.insert(idx.ByFEI, &rec)
				report.FEIRecords++
			}
		}

		if cols.DUNS >= 0 {
			if raw := cellValue(t.Cell(i, cols.DUNS)); len(util.Digits(raw)) >= MinDUNSDigits {
				rec := base
				rec.Key = util.Digits(raw)
				rec.Kind = internal.KindDUNS
				rec.OriginalID = raw
				rec.Provenance = internal.ProvenanceDUNS
				report.Collisions += idx.insert(idx.ByDUNS, &rec)
				report.DUNSRecords++
			}
		}
	}

	report.FEIKeys = len(idx.ByFEI)
	report.DUNSKeys = len(idx.ByDUNS)
	if report.Collisions > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d identifier variants were claimed by more than one row; the later row was kept", report.Collisions))
	}
	return idx, report
}

func (idx *Index) insert(m map[string]*internal.FacilityRecord, rec *internal.FacilityRecord) int {
	collisions := 0
	for _, key := range identifier.ExpandIdentifier(rec.OriginalID) {
		if prev, ok := m[key]; ok && prev.RowNumber != rec.RowNumber {
			collisions++
		}
		m[key] = rec
	}
	idx.Facilities = append(idx.Facilities, rec)
	return collisions
}

// LookupFEI tries each spelling of id against the FEI map and returns the first
// hit together with the key that matched.
func (idx *Index) LookupFEI(id string) (*internal.FacilityRecord, string, bool) {
	return lookup(idx.ByFEI, id)
}

func (idx *Index) LookupDUNS(id string) (*internal.FacilityRecord, string, bool) {
	return lookup(idx.ByDUNS, id)
}

func lookup(m map[string]*internal.FacilityRecord, id string) (*internal.FacilityRecord, string, bool) {
	if len(m) == 0 {
		return nil, "", false
	}
	for _, v := range identifier.ExpandIdentifier(id) {
		if rec, ok := m[v]; ok {
			return rec, v, true
		}
	}
	return nil, "", false
}

// NameMatch is a registry record whose establishment or firm name overlaps a
// name found in a label document.
type NameMatch struct {
	Record    *internal.FacilityRecord
	Candidate string
	Score     float64
}

// FindByName returns up to limit records whose folded establishment or firm
// name contains, or is contained in, the folded query. Best scores first; ties
// keep load order. Each registry row is returned at most once.
func (idx *Index) FindByName(name string, limit int) []NameMatch {
	minLen := idx.NameMinLength
	if minLen <= 0 {
		minLen = DefaultNameMinLength
	}
	query := util.FoldName(name)
	if len(query) < minLen || limit <= 0 {
		return nil
	}

	var matches []NameMatch
	seenRows := map[int]struct{}{}
	for _, rec := range idx.Facilities {
		if _, ok := seenRows[rec.RowNumber]; ok {
			continue
		}
		best := NameMatch{}
		for _, candidate := range []string{rec.EstablishmentName, rec.FirmName} {
			if candidate == "" || candidate == unknown {
				continue
			}
			folded := util.FoldName(candidate)
			if len(folded) < minLen {
				continue
			}
			if !strings.Contains(folded, query) && !strings.Contains(query, folded) {
				continue
			}
			if score := util.DiceCoefficient(query, folded); best.Record == nil || score > best.Score {
				best = NameMatch{Record: rec, Candidate: candidate, Score: score}
			}
		}
		if best.Record != nil {
			seenRows[rec.RowNumber] = struct{}{}
			matches = append(matches, best)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// cellValue treats the textual spellings of a missing cell as empty.
func cellValue(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "nan", "none", "null", "n/a":
		return ""
	}
	return v
}
