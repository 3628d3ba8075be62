package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reNonAlnum = regexp.MustCompile(`[^a-z0-9\s]+`)
	reSpaces   = regexp.MustCompile(`\s+`)

	stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

var corporateSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "llc": {}, "corp": {}, "corporation": {},
	"ltd": {}, "limited": {}, "co": {}, "company": {}, "plc": {}, "gmbh": {},
	"ag": {}, "sa": {}, "srl": {}, "spa": {}, "bv": {}, "nv": {}, "lp": {}, "llp": {},
	"pvt": {}, "pte": {}, "kg": {}, "the": {},
}

var nameAbbreviations = map[string]string{
	"labs":  "laboratories",
	"lab":   "laboratory",
	"pharm": "pharma",
	"mfg":   "manufacturing",
	"intl":  "international",
	"natl":  "national",
	"assoc": "associates",
	"svcs":  "services",
	"tech":  "technologies",
}

// Digits keeps only ASCII digits.
func Digits(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// FoldName reduces an organization name to a comparison form: lowercase, no
// accents or punctuation, corporate suffixes dropped, common abbreviations
// expanded.
func FoldName(input string) string {
	s, _, err := transform.String(stripAccents, strings.ToLower(input))
	if err != nil {
		s = strings.ToLower(input)
	}
	s = strings.ReplaceAll(s, "&", " and ")
	s = reNonAlnum.ReplaceAllString(s, " ")

	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := corporateSuffixes[t]; ok {
			continue
		}
		if full, ok := nameAbbreviations[t]; ok {
			t = full
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

// Dedupe drops empty strings and repeats, keeping first-seen order.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func Truncate(input string, max int) string {
	r := []rune(input)
	if len(r) <= max {
		return input
	}
	return string(r[:max]) + "..."
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
