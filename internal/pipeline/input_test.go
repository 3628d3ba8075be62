package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseNDCListText(t *testing.T) {
	content := []byte("# weekly batch\n50242-061-01\n\n0185-0674-01  # generic\n50242-061-01\n")
	got, err := ParseNDCList("batch.txt", content)
	require.NoError(t, err)
	assert.Equal(t, []string{"50242-061-01", "0185-0674-01"}, got)
}

func TestParseNDCListCSVColumn(t *testing.T) {
	content := []byte("product,NDC Code\nDrug A,50242-061-01\nDrug B,0185-0674-01\n")
	got, err := ParseNDCList("batch.csv", content)
	require.NoError(t, err)
	assert.Equal(t, []string{"50242-061-01", "0185-0674-01"}, got)
}

func TestParseNDCListXLSXWithoutHeader(t *testing.T) {
	content := mkXLSX(t, [][]any{{"50242-061-01"}, {"0185-0674-01"}})
	got, err := ParseNDCList("batch.xlsx", content)
	require.NoError(t, err)
	assert.Equal(t, []string{"50242-061-01", "0185-0674-01"}, got)

	got, err = ParseNDCList("batch.txt", content)
	require.NoError(t, err)
	assert.Equal(t, []string{"50242-061-01", "0185-0674-01"}, got)
}

func TestParseNDCListUnsupported(t *testing.T) {
	_, err := ParseNDCList("batch.pdf", []byte("%PDF"))
	assert.Error(t, err)
}

func TestReadNDCList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.txt")
	require.NoError(t, os.WriteFile(path, []byte("50242-061-01\n"), 0o644))

	got, err := ReadNDCList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"50242-061-01"}, got)

	_, err = ReadNDCList(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
