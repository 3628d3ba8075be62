package registry

import "strings"

// Columns holds the discovered role of each header, -1 when absent.
type Columns struct {
	FEI      int
	DUNS     int
	Address  int
	FirmName int
}

// Usable reports whether a load can produce any record: an identifier column
// plus an address column.
func (c Columns) Usable() bool {
	return (c.FEI >= 0 || c.DUNS >= 0) && c.Address >= 0
}

// NormalizeHeader lowercases a header and drops spaces and underscores, so
// "FEI Number", "fei_number" and "FEINUMBER" compare equal.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "_", "")
	return strings.ReplaceAll(h, " ", "")
}

// DiscoverColumns assigns each header at most one role, checked in the order
// FEI, DUNS, address, firm name. When several headers qualify for a role the
// rightmost one wins.
func DiscoverColumns(header []string) Columns {
	cols := Columns{FEI: -1, DUNS: -1, Address: -1, FirmName: -1}
	for i, h := range header {
		n := NormalizeHeader(h)
		switch {
		case n == "":
		case strings.Contains(n, "fei") && strings.Contains(n, "number"), n == "fei":
			cols.FEI = i
		case strings.Contains(n, "duns") && strings.Contains(n, "number"), n == "duns":
			cols.DUNS = i
		case strings.Contains(n, "address"):
			cols.Address = i
		case strings.Contains(n, "firm") && strings.Contains(n, "name"):
			cols.FirmName = i
		}
	}
	return cols
}

// Missing names the roles that prevent a load, for the load report.
func (c Columns) Missing() []string {
	var out []string
	if c.FEI < 0 && c.DUNS < 0 {
		out = append(out, "FEI or DUNS number column")
	}
	if c.Address < 0 {
		out = append(out, "address column")
	}
	return out
}
