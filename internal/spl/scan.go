package spl

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

// FDARootOID is the id root the FDA uses for FEI numbers.
const FDARootOID = "1.3.6.1.4.1.519.1"

const (
	contextRadius = 100
	contextMax    = 200
)

var (
	reCandidate   = regexp.MustCompile(`^\d{7,15}$`)
	reIDExtension = regexp.MustCompile(`(?i)<id\b[^>]*\bextension\s*=\s*["']([^"']*)["'][^>]*>`)
)

// Registry is the part of the facility index the extractor needs.
type Registry interface {
	LookupFEI(id string) (*internal.FacilityRecord, string, bool)
	LookupDUNS(id string) (*internal.FacilityRecord, string, bool)
	FindByName(name string, limit int) []registry.NameMatch
}

// Hit is an identifier found in a document together with the registry record
// it resolved to.
type Hit struct {
	Match    internal.IdentifierMatch
	Facility *internal.FacilityRecord
	// Key is the registry key the number matched under.
	Key string
}

// IsCandidate reports whether an extension value looks like an FEI or DUNS
// number: 7 to 15 digits once trimmed.
func IsCandidate(extension string) bool {
	return reCandidate.MatchString(strings.TrimSpace(extension))
}

// resolve checks the FEI map first and the DUNS map only when FEI misses.
func resolve(reg Registry, extension string) (*internal.FacilityRecord, string, internal.IdentifierKind, bool) {
	if rec, key, ok := reg.LookupFEI(extension); ok {
		return rec, key, internal.KindFEI, true
	}
	if rec, key, ok := reg.LookupDUNS(extension); ok {
		return rec, key, internal.KindDUNS, true
	}
	return nil, "", "", false
}

// ScanTree resolves every candidate extension attribute of a parsed document
// against the registry, in document order.
func ScanTree(root *Node, reg Registry) []Hit {
	var hits []Hit
	root.Walk(func(n *Node) bool {
		ext := n.Attr("extension")
		if !IsCandidate(ext) {
			return true
		}
		rec, key, kind, ok := resolve(reg, ext)
		if !ok {
			return true
		}
		hits = append(hits, Hit{
			Match: internal.IdentifierMatch{
				Number:            util.Digits(ext),
				Kind:              kind,
				Location:          n.Path(),
				Context:           nodeContext(n),
				EstablishmentName: nearbyName(n),
			},
			Facility: rec,
			Key:      key,
		})
		return true
	})
	return hits
}

// nearbyName looks for a name-bearing child of the parent, then of the
// grandparent.
func nearbyName(n *Node) string {
	for p, depth := n.Parent, 0; p != nil && depth < 2; p, depth = p.Parent, depth+1 {
		if name := p.ChildText("name"); name != "" {
			return name
		}
	}
	return unknownName
}

func nodeContext(n *Node) string {
	var parts []string
	if p := n.Parent; p != nil {
		parts = append(parts, "Parent: "+p.Name)
		if name := p.ChildText("name"); name != "" {
			parts = append(parts, "Name: "+name)
		}
	}
	if len(n.Attrs) > 0 {
		attrs := make([]string, 0, len(n.Attrs))
		for _, a := range n.Attrs {
			attrs = append(attrs, fmt.Sprintf("%s='%s'", a.Name, a.Value))
		}
		parts = append(parts, "Attributes: "+strings.Join(attrs, ", "))
	}
	return strings.Join(parts, " | ")
}

// ScanText is the fallback for documents that do not parse. It finds id
// elements by pattern and reports line numbers instead of element paths.
func ScanText(content string, reg Registry) []Hit {
	var hits []Hit
	for _, m := range reIDExtension.FindAllStringSubmatchIndex(content, -1) {
		ext := html.UnescapeString(content[m[2]:m[3]])
		if !IsCandidate(ext) {
			continue
		}
		rec, key, kind, ok := resolve(reg, ext)
		if !ok {
			continue
		}

		ctx := textContext(content, m[0], m[1])
		name := unknownName
		if nm := reNameElement.FindStringSubmatch(ctx); nm != nil {
			name = strings.TrimSpace(nm[1])
		}
		hits = append(hits, Hit{
			Match: internal.IdentifierMatch{
				Number:            util.Digits(ext),
				Kind:              kind,
				Location:          fmt.Sprintf("Line %d (regex-based)", lineAt(content, m[0])),
				Context:           util.Truncate(ctx, contextMax),
				EstablishmentName: name,
			},
			Facility: rec,
			Key:      key,
		})
	}
	return hits
}

func textContext(content string, start, end int) string {
	from := max(0, start-contextRadius)
	to := min(len(content), end+contextRadius)
	return strings.TrimSpace(strings.ToValidUTF8(strings.ReplaceAll(content[from:to], "\n", " "), ""))
}
