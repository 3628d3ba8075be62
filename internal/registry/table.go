package registry

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("registry: unsupported file format")

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Table is a header row plus data rows, all cells as text.
type Table struct {
	Header []string
	Rows   [][]string
	// RowNumbers holds the 1-based source row number of each data row.
	RowNumbers []int
	Format     string
	Sheet      string
}

func ReadTable(path string) (Table, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}
	return ReadTableBytes(filepath.Base(path), blob)
}

// ReadTableBytes parses spreadsheet content. Spreadsheet extensions go through
// excelize first and fall back to CSV; CSV-like extensions go straight to CSV.
func ReadTableBytes(name string, content []byte) (Table, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".tsv", ".txt":
		return readCSV(content, ext == ".tsv")
	case ".xlsx", ".xlsm", ".xltx", ".xls", "":
		table, err := readXLSX(content)
		if err == nil {
			return table, nil
		}
		csvTable, csvErr := readCSV(content, false)
		if csvErr != nil {
			return Table{}, fmt.Errorf("read %s: %w", name, errors.Join(err, csvErr))
		}
		return csvTable, nil
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func readXLSX(content []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	var first *Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		table := tableFromRows(rows)
		table.Format = FormatXLSX
		table.Sheet = sheet
		if DiscoverColumns(table.Header).Usable() {
			return table, nil
		}
		if first == nil {
			first = &table
		}
	}
	if first == nil {
		return Table{Format: FormatXLSX}, nil
	}
	return *first, nil
}

func readCSV(content []byte, tab bool) (Table, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if tab {
		r.Comma = '\t'
	}

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, err
		}
		rows = append(rows, record)
	}
	table := tableFromRows(rows)
	table.Format = FormatCSV
	return table, nil
}

// tableFromRows takes the first non-empty row as the header.
func tableFromRows(rows [][]string) Table {
	table := Table{}
	headerFound := false
	for i, row := range rows {
		if !headerFound {
			if isBlankRow(row) {
				continue
			}
			table.Header = trimCells(row)
			headerFound = true
			continue
		}
		if isBlankRow(row) {
			continue
		}
		table.Rows = append(table.Rows, trimCells(row))
		table.RowNumbers = append(table.RowNumbers, i+1)
	}
	return table
}

func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
