package identifier

import (
	"regexp"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal/util"
)

// MinSearchLength is the shortest NDC spelling worth sending to a search
// service or keeping in an NDC variant set.
const MinSearchLength = 6

var (
	reNotDigitDash = regexp.MustCompile(`[^\d\-]`)
	reDashedNDC    = regexp.MustCompile(`^\d{4,5}-\d{3,4}-\d{1,2}$`)
	reDigits10or11 = regexp.MustCompile(`^\d{10,11}$`)
	reDigits8or9   = regexp.MustCompile(`^\d{8,9}$`)
)

// ExpandNDC returns the NDC spellings that may denote the same product or
// package. Dashed three-segment input is re-segmented under the 5-4-2, 4-4-2,
// 5-3-2, 4-3-2 and 5-4-1 conventions by moving the padding zero between
// segments. Digit-only input is padded or unpadded across 8 to 11 digits.
// Base forms (labeler and product, package dropped) are included because
// registries often record codes at product granularity.
func ExpandNDC(raw string) Variants {
	trimmed := strings.TrimSpace(raw)
	clean := reNotDigitDash.ReplaceAllString(trimmed, "")
	digits := strings.ReplaceAll(clean, "-", "")

	out := []string{clean, digits}

	parts := splitSegments(clean)
	switch len(parts) {
	case 3:
		out = append(out, segmentForms(parts[0], parts[1], parts[2])...)
	case 2:
		out = append(out, productForms(parts[0], parts[1])...)
	}

	for _, v := range lengthVariants(digits) {
		out = append(out, v)
		if parts != nil {
			// Dashed input already fixes the segmentation.
			continue
		}
		formatted, ok := formatByLength(v)
		if !ok {
			continue
		}
		out = append(out, formatted)
		if parts := splitSegments(formatted); len(parts) == 3 {
			out = append(out, segmentForms(parts[0], parts[1], parts[2])...)
		}
	}

	kept := []string{trimmed}
	for _, v := range out {
		if len(v) >= MinSearchLength {
			kept = append(kept, v)
		}
	}
	return Variants(util.Dedupe(kept))
}

// SearchForms is the ordered list of spellings tried against a product search
// service: the NDC variant set plus the 10 and 11 digit canonical forms, all
// at least MinSearchLength long.
func SearchForms(ndc string) []string {
	candidates := append([]string{}, ExpandNDC(ndc)...)
	candidates = append(candidates,
		strings.ReplaceAll(ndc, "-", ""),
		NormalizeNDC(ndc),
		To11Digit(ndc),
		To10Digit(ndc),
	)

	out := make([]string, 0, len(candidates))
	for _, c := range util.Dedupe(candidates) {
		if len(c) >= MinSearchLength {
			out = append(out, c)
		}
	}
	return out
}

// ValidateNDC accepts dashed 4/5-3/4-1/2 codes, 8 to 11 digit strings, and
// anything that carries 8 to 11 digits once punctuation is dropped.
func ValidateNDC(ndc string) bool {
	trimmed := strings.TrimSpace(ndc)
	clean := reNotDigitDash.ReplaceAllString(trimmed, "")
	if reDashedNDC.MatchString(clean) || reDigits10or11.MatchString(clean) || reDigits8or9.MatchString(clean) {
		return true
	}

	normalized := NormalizeNDC(clean)
	if reDashedNDC.MatchString(normalized) || reDigits10or11.MatchString(normalized) {
		return true
	}

	n := len(util.Digits(trimmed))
	return n >= 8 && n <= 11
}

// NormalizeNDC renders an NDC in its display form. Valid dashed input is
// returned as is; 8 to 11 digit input is padded to 11 digits and shown 5-4-2.
// Anything else comes back with only digits and dashes kept.
func NormalizeNDC(ndc string) string {
	clean := reNotDigitDash.ReplaceAllString(strings.TrimSpace(ndc), "")
	if strings.Contains(clean, "-") {
		if reDashedNDC.MatchString(clean) {
			return clean
		}
		clean = strings.ReplaceAll(clean, "-", "")
	}

	digits := clean
	switch len(digits) {
	case 8:
		digits = "000" + digits
	case 9:
		digits = "00" + digits
	case 10:
		digits = "0" + digits
	}

	if len(digits) == 11 {
		return digits[:5] + "-" + digits[5:9] + "-" + digits[9:]
	}
	return clean
}

// Canonical11 returns the 11-digit 5-4-2 digit string for a dashed NDC whose
// segments fit the standard conventions, or for an 8 to 11 digit string.
func Canonical11(ndc string) (string, bool) {
	clean := reNotDigitDash.ReplaceAllString(strings.TrimSpace(ndc), "")
	if parts := splitSegments(clean); len(parts) == 3 {
		l, p, k := parts[0], parts[1], parts[2]
		if len(l) > 5 || len(p) > 4 || len(k) > 2 {
			return "", false
		}
		return leftPad(l, 5) + leftPad(p, 4) + leftPad(k, 2), true
	}

	digits := strings.ReplaceAll(clean, "-", "")
	if len(digits) < 8 || len(digits) > 11 {
		return "", false
	}
	return leftPad(digits, 11), true
}

func To11Digit(ndc string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(ndc), "-", "")
	if len(clean) == 10 {
		return "0" + clean
	}
	return clean
}

func To10Digit(ndc string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(ndc), "-", "")
	if len(clean) == 11 && strings.HasPrefix(clean, "0") {
		return clean[1:]
	}
	return clean
}

func splitSegments(clean string) []string {
	if !strings.Contains(clean, "-") {
		return nil
	}
	parts := strings.Split(clean, "-")
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return parts
}

// segmentForms expands labeler-product-package under every segment-length
// convention that can carry the same 11-digit value.
func segmentForms(labeler, product, pkg string) []string {
	if len(labeler) < 4 || len(labeler) > 5 || len(product) < 3 || len(product) > 4 || len(pkg) < 1 || len(pkg) > 2 {
		return nil
	}
	l5, p4, k2 := leftPad(labeler, 5), leftPad(product, 4), leftPad(pkg, 2)

	var out []string
	add := func(l, p, k string) {
		out = append(out, l+"-"+p+"-"+k, l+p+k)
		out = append(out, productForms(l, p)...)
	}

	add(l5, p4, k2)
	if l5[0] == '0' {
		add(l5[1:], p4, k2)
	}
	if p4[0] == '0' {
		add(l5, p4[1:], k2)
	}
	if l5[0] == '0' && p4[0] == '0' {
		add(l5[1:], p4[1:], k2)
	}
	if k2[0] == '0' {
		add(l5, p4, k2[1:])
	}
	return out
}

// productForms expands a labeler-product base code the same way, without a
// package segment.
func productForms(labeler, product string) []string {
	out := []string{labeler + "-" + product, labeler + product}
	if len(labeler) < 4 || len(labeler) > 5 || len(product) < 3 || len(product) > 4 {
		return out
	}
	l5, p4 := leftPad(labeler, 5), leftPad(product, 4)
	out = append(out, l5+"-"+p4, l5+p4)
	if l5[0] == '0' {
		out = append(out, l5[1:]+"-"+p4, l5[1:]+p4)
	}
	if p4[0] == '0' {
		out = append(out, l5+"-"+p4[1:], l5+p4[1:])
	}
	if l5[0] == '0' && p4[0] == '0' {
		out = append(out, l5[1:]+"-"+p4[1:], l5[1:]+p4[1:])
	}
	return out
}

// lengthVariants pads a digit string to 11 digits and strips leading zeros
// down to 8, keeping the input itself.
func lengthVariants(digits string) []string {
	n := len(digits)
	if n < 8 || n > 11 {
		return []string{digits}
	}
	out := []string{digits}
	for width := n + 1; width <= 11; width++ {
		out = append(out, leftPad(digits, width))
	}
	trimmed := digits
	for len(trimmed) > 8 && trimmed[0] == '0' {
		trimmed = trimmed[1:]
		out = append(out, trimmed)
	}
	return out
}

func formatByLength(digits string) (string, bool) {
	switch len(digits) {
	case 11:
		return digits[:5] + "-" + digits[5:9] + "-" + digits[9:], true
	case 10:
		return digits[:5] + "-" + digits[5:8] + "-" + digits[8:], true
	case 9:
		return digits[:4] + "-" + digits[4:7] + "-" + digits[7:], true
	case 8:
		return digits[:4] + "-" + digits[4:6] + "-" + digits[6:], true
	}
	return "", false
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
