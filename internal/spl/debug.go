package spl

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

// ExtensionInfo describes one id extension seen in a document.
type ExtensionInfo struct {
	Value     string
	Root      string
	Location  string
	FDARoot   bool
	Candidate bool
	Kind      internal.IdentifierKind
	// Facility is the registry record the value resolved to, if any.
	Facility *internal.FacilityRecord
}

// Inspection is a diagnostic view of a label document.
type Inspection struct {
	Mode              string
	ParseError        string
	Extensions        []ExtensionInfo
	Blocks            []Block
	OrganizationNames []OrgName
	Labeler           Labeler
}

// Inspect lists every id extension of a document, which of them carry the FDA
// root OID and which resolve in the registry, plus the establishment blocks.
func Inspect(doc []byte, reg Registry) Inspection {
	var out Inspection
	root, err := Parse(doc)
	if err != nil {
		out.Mode = ModeText
		out.ParseError = err.Error()
		content := string(doc)
		for _, m := range reIDExtension.FindAllStringSubmatchIndex(content, -1) {
			tag := content[m[0]:m[1]]
			a := parseAttrs(tag)
			out.Extensions = append(out.Extensions, extensionInfo(reg,
				html.UnescapeString(content[m[2]:m[3]]), a["root"],
				fmt.Sprintf("Line %d (regex-based)", lineAt(content, m[0]))))
		}
		out.Blocks = BlocksFromText(content)
		out.OrganizationNames = OrganizationNamesLenient(doc)
		out.Labeler = LabelerLenient(doc)
		return out
	}

	out.Mode = ModeStructured
	root.Walk(func(n *Node) bool {
		if n.HasAttr("extension") {
			out.Extensions = append(out.Extensions, extensionInfo(reg, n.Attr("extension"), n.Attr("root"), n.Path()))
		}
		return true
	})
	out.Blocks = BlocksFromTree(root)
	out.OrganizationNames = OrganizationNames(root)
	out.Labeler = LabelerFromTree(root, doc)
	return out
}

func extensionInfo(reg Registry, value, root, location string) ExtensionInfo {
	info := ExtensionInfo{
		Value:     value,
		Root:      root,
		Location:  location,
		FDARoot:   strings.TrimSpace(root) == FDARootOID,
		Candidate: IsCandidate(value),
	}
	if info.Candidate && reg != nil {
		if rec, _, kind, ok := resolve(reg, value); ok {
			info.Facility, info.Kind = rec, kind
		}
	}
	return info
}

// Resolved counts the extensions that matched a registry record.
func (in Inspection) Resolved() int {
	n := 0
	for _, e := range in.Extensions {
		if e.Facility != nil {
			n++
		}
	}
	return n
}

// Write prints the inspection as plain text.
func (in Inspection) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "parse mode: %s\n", in.Mode)
	if in.ParseError != "" {
		fmt.Fprintf(&b, "parse error: %s\n", in.ParseError)
	}
	fmt.Fprintf(&b, "id extensions: %d (resolved %d)\n", len(in.Extensions), in.Resolved())
	for _, e := range in.Extensions {
		flags := []string{}
		if e.FDARoot {
			flags = append(flags, "fda-root")
		}
		if e.Candidate {
			flags = append(flags, "candidate")
		}
		match := "-"
		if e.Facility != nil {
			match = fmt.Sprintf("%s %s (%s)", e.Kind, e.Facility.Key, e.Facility.EstablishmentName)
		}
		fmt.Fprintf(&b, "  %-16s root=%-22s [%s] %s\n    at %s\n", e.Value, e.Root, strings.Join(flags, ","), match, e.Location)
	}
	fmt.Fprintf(&b, "establishment blocks: %d\n", len(in.Blocks))
	for i, blk := range in.Blocks {
		fmt.Fprintf(&b, "  #%d %s: performances=%d business_operations=%d\n    at %s\n",
			i+1, util.FirstNonEmpty(blk.Name, unknownName), len(blk.Performances), len(blk.BusinessOperations), blk.Location)
	}
	fmt.Fprintf(&b, "organization names: %d\n", len(in.OrganizationNames))
	for _, n := range in.OrganizationNames {
		fmt.Fprintf(&b, "  %s\n", n.Name)
	}
	fmt.Fprintf(&b, "labeler: %s duns=%s\n", util.FirstNonEmpty(in.Labeler.Name, unknownName), util.FirstNonEmpty(in.Labeler.DUNS, "-"))
	_, err := io.WriteString(w, b.String())
	return err
}
