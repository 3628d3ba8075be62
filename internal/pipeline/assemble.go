package pipeline

import (
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

const (
	DefaultMaxEstablishments = 10

	noOperations = "None found for this NDC"
)

// Assemble turns one product and its establishments into output rows. Without
// establishments a single placeholder row carries the product fields. Rows are
// deduplicated by resolved registry key, first occurrence first, and capped at
// max.
func Assemble(product internal.ProductRecord, establishments []internal.EstablishmentResult, max int) []internal.Row {
	if max <= 0 {
		max = DefaultMaxEstablishments
	}

	base := internal.Row{
		NDC:         product.NDC,
		ProductName: product.ProductName,
		LabelerName: product.LabelerName,
		SPLID:       product.SPLID,
	}

	var rows []internal.Row
	seen := map[string]struct{}{}
	for _, est := range establishments {
		key := establishmentKey(est)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, establishmentRow(base, est))
		if len(rows) == max {
			break
		}
	}

	if len(rows) == 0 {
		placeholder := base
		placeholder.SearchMethod = internal.RowStatusNoEstablish
		placeholder.Status = internal.RowStatusNoEstablish
		return []internal.Row{placeholder}
	}
	return rows
}

func establishmentKey(est internal.EstablishmentResult) string {
	if est.Facility.Key != "" {
		return string(est.Facility.Kind) + ":" + est.Facility.Key
	}
	return string(est.MatchKind) + ":" + util.Deref(est.FEINumber) + util.Deref(est.DUNSNumber)
}

func establishmentRow(base internal.Row, est internal.EstablishmentResult) internal.Row {
	f := est.Facility
	row := base
	row.FEINumber = est.FEINumber
	row.DUNSNumber = est.DUNSNumber
	row.EstablishmentName = optional(f.EstablishmentName)
	row.FirmName = optional(f.FirmName)
	row.AddressLine1 = optional(f.AddressLine1)
	row.City = optional(f.City)
	row.State = optional(f.StateProvince)
	row.Country = optional(f.Country)
	row.PostalCode = f.PostalCode
	row.Latitude = f.Latitude
	row.Longitude = f.Longitude

	ops := noOperations
	if len(est.Operations) > 0 {
		ops = strings.Join(est.Operations, ", ")
	}
	row.Operations = &ops
	if len(est.Quotes) > 0 {
		row.Quotes = util.StringPtr(strings.Join(est.Quotes, " | "))
	}

	row.SearchMethod = f.Provenance
	row.XMLLocation = optional(est.Location)
	row.MatchType = optional(string(est.MatchKind))
	row.XMLContext = est.Context
	row.Confidence = est.Confidence
	row.Status = internal.RowStatusOK
	return row
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
