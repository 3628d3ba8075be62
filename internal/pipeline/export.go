package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ACF100/ndc-location-mapper/internal"
)

const exportSheet = "Establishments"

// ExportRowsToXLSX writes rows under the fixed RowColumns header.
func ExportRowsToXLSX(rows []internal.Row, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, exportSheet); err != nil {
		return err
	}
	sheet = exportSheet

	for i, h := range internal.RowColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		for col, value := range RowValues(row) {
			cell, _ := excelize.CoordinatesToCellName(col+1, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// RowValues lists the cells of a row in RowColumns order. Missing values are
// empty strings.
func RowValues(row internal.Row) []any {
	return []any{
		row.NDC,
		row.ProductName,
		row.LabelerName,
		derefString(row.SPLID),
		derefString(row.FEINumber),
		derefString(row.DUNSNumber),
		derefString(row.EstablishmentName),
		derefString(row.FirmName),
		derefString(row.AddressLine1),
		derefString(row.City),
		derefString(row.State),
		derefString(row.Country),
		row.PostalCode,
		derefFloat(row.Latitude),
		derefFloat(row.Longitude),
		derefString(row.Operations),
		derefString(row.Quotes),
		row.SearchMethod,
		derefString(row.XMLLocation),
		derefString(row.MatchType),
		row.XMLContext,
		row.Confidence,
		row.Status,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
