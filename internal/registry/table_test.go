package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTableXLSX(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{},
		{"FEI_NUMBER", "ADDRESS"},
		{"3004568091", "Acme Sterile Manufacturing, 1 Main St, Boston, MA 02110 USA"},
		{},
		{"1234567", "Beta, Somewhere"},
	})

	table, err := ReadTableBytes("registry.xlsx", blob)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, table.Format)
	assert.Equal(t, []string{"FEI_NUMBER", "ADDRESS"}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Len(t, table.RowNumbers, 2)
	assert.Equal(t, "1234567", table.Cell(1, 0))
	assert.Equal(t, "", table.Cell(1, 7))
}

func TestReadTableCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.csv")
	content := "\xef\xbb\xbfDUNS Number,Firm Name,Address\n" +
		"081234567,Beta Labs,\"Beta Pharma, 9 Elm Rd, Basel, Switzerland\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, table.Format)
	assert.Equal(t, "DUNS Number", table.Header[0])
	assert.Equal(t, "Beta Pharma, 9 Elm Rd, Basel, Switzerland", table.Cell(0, 2))
}

func TestReadTableFallsBackToCSV(t *testing.T) {
	table, err := ReadTableBytes("export.xlsx", []byte("fei_number,address\n3004568091,\"Acme, Boston\"\n"))
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, table.Format)
	assert.Len(t, table.Rows, 1)
}

func TestReadTableUnsupported(t *testing.T) {
	_, err := ReadTableBytes("registry.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
