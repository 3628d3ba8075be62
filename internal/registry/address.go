package registry

import (
	"regexp"
	"strings"
)

const unknown = "Unknown"

var rePostalCode = regexp.MustCompile(`(\d{5}(?:-\d{4})?|\d{4,6})`)

// Address is the best-effort split of a free-text registry address.
type Address struct {
	EstablishmentName string
	Line1             string
	City              string
	StateProvince     string
	Country           string
	PostalCode        string
}

var countryAliases = []struct {
	country string
	tokens  []string
}{
	{"USA", []string{"USA", "US", "U.S.A.", "U.S.", "UNITED STATES", "UNITED STATES OF AMERICA"}},
	{"Germany", []string{"GERMANY", "DEUTSCHLAND"}},
	{"Switzerland", []string{"SWITZERLAND", "SCHWEIZ"}},
	{"Singapore", []string{"SINGAPORE"}},
}

// ParseAddress segments on commas and newlines: first segment is the
// establishment name, second the street line, second-to-last the city and the
// last the state or country. Segments that are not present stay "Unknown".
func ParseAddress(address string) Address {
	out := Address{
		EstablishmentName: unknown,
		Line1:             address,
		City:              unknown,
		StateProvince:     unknown,
		Country:           unknown,
	}

	parts := strings.Split(strings.ReplaceAll(address, "\n", ","), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if name := parts[0]; name != "" {
		out.EstablishmentName = name
	}
	if len(parts) >= 2 {
		out.Line1 = parts[1]
	}
	if len(parts) >= 3 {
		out.City = parts[len(parts)-2]
	}
	if len(parts) >= 4 {
		last := parts[len(parts)-1]
		out.StateProvince = last
		out.Country = countryOf(last)
	}

	if m := rePostalCode.FindStringSubmatch(address); m != nil {
		out.PostalCode = m[1]
	}
	return out
}

// countryOf maps a trailing address segment to a country name. Short aliases
// such as "US" must match a whole word so that "AUSTRIA" is not read as USA.
func countryOf(segment string) string {
	upper := strings.ToUpper(segment)
	words := strings.FieldsFunc(upper, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == '(' || r == ')'
	})
	for _, alias := range countryAliases {
		for _, token := range alias.tokens {
			if strings.Contains(token, " ") || len(token) > 3 && !strings.Contains(token, ".") {
				if strings.Contains(upper, token) {
					return alias.country
				}
				continue
			}
			for _, w := range words {
				if w == token {
					return alias.country
				}
			}
		}
	}
	return segment
}
