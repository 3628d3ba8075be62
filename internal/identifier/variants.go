// Package identifier generates the spellings under which an NDC, FEI or DUNS
// number may be stored by a registry, a label document or a search service.
// It never picks one canonical form: callers iterate a variant set against a
// mapping and take the first hit.
package identifier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal/util"
)

var paddedWidths = []int{8, 9, 10, 11, 12, 13, 14, 15}

// Variants is an ordered set of identifier spellings without duplicates or
// empty members.
type Variants []string

func (v Variants) Contains(s string) bool {
	for _, x := range v {
		if x == s {
			return true
		}
	}
	return false
}

func (v Variants) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(v))
	for _, x := range v {
		out[x] = struct{}{}
	}
	return out
}

// Intersects reports whether the two sets share at least one spelling.
func (v Variants) Intersects(other Variants) bool {
	if len(v) == 0 || len(other) == 0 {
		return false
	}
	small, large := v, other
	if len(small) > len(large) {
		small, large = large, small
	}
	set := large.Set()
	for _, x := range small {
		if _, ok := set[x]; ok {
			return true
		}
	}
	return false
}

// ExpandIdentifier returns every spelling of an FEI or DUNS style number:
// the trimmed input, digits only, leading zeros stripped, zero padded to
// widths 8 through 15, and one or two leading zeros removed. An input with no
// digits yields at most the trimmed input itself.
func ExpandIdentifier(raw string) Variants {
	trimmed := strings.TrimSpace(raw)
	digits := util.Digits(trimmed)

	out := []string{trimmed, digits, strings.TrimLeft(digits, "0")}
	if n, err := strconv.ParseUint(digits, 10, 64); err == nil {
		for _, width := range paddedWidths {
			out = append(out, fmt.Sprintf("%0*d", width, n))
		}
		out = append(out, strconv.FormatUint(n, 10))
	}

	switch {
	case strings.HasPrefix(digits, "00"):
		out = append(out, digits[1:], digits[2:])
	case strings.HasPrefix(digits, "0"):
		out = append(out, digits[1:])
	}

	return Variants(util.Dedupe(out))
}
