package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal/identifier"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

// ReadNDCList reads the NDCs of a batch request file.
func ReadNDCList(path string) ([]string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseNDCList(filepath.Base(path), blob)
}

// ParseNDCList accepts plain text with one NDC per line ("#" starts a
// comment), or a csv/xlsx table. A table column whose header mentions "ndc" is
// used, else the first column; a first row that is itself an NDC is kept as
// data. Repeated NDCs are dropped.
func ParseNDCList(name string, content []byte) ([]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".list", "":
		if !looksLikeSpreadsheet(content) {
			return parseLines(content), nil
		}
		name += ".xlsx"
	}

	table, err := registry.ReadTableBytes(name, content)
	if err != nil {
		return nil, fmt.Errorf("read ndc list %s: %w", name, err)
	}

	col := -1
	for i, h := range table.Header {
		if strings.Contains(registry.NormalizeHeader(h), "ndc") {
			col = i
			break
		}
	}

	var out []string
	if col < 0 {
		col = 0
		if len(table.Header) > 0 && identifier.ValidateNDC(table.Header[0]) {
			out = append(out, strings.TrimSpace(table.Header[0]))
		}
	}
	for i := range table.Rows {
		out = append(out, table.Cell(i, col))
	}
	return util.Dedupe(trimAll(out)), nil
}

func parseLines(content []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		out = append(out, line)
	}
	return util.Dedupe(trimAll(out))
}

// looksLikeSpreadsheet spots a zip container behind a misleading extension.
func looksLikeSpreadsheet(content []byte) bool {
	return bytes.HasPrefix(content, []byte("PK\x03\x04"))
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
