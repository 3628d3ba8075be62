package spl

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ACF100/ndc-location-mapper/internal/util"
)

const unknownName = "Unknown"

var reCorporateName = regexp.MustCompile(`(?i)<name[^>]*>([^<]+(?:Inc|LLC|Corp|Company|Ltd)[^<]*)</name>`)

// OrgName is an organization name found in a document and where it was found.
type OrgName struct {
	Name     string
	Location string
}

// OrganizationNames collects the names of elements whose tag contains
// "organization", deduplicated by folded form, in document order.
func OrganizationNames(root *Node) []OrgName {
	var out []OrgName
	seen := map[string]struct{}{}
	root.Walk(func(n *Node) bool {
		if !strings.Contains(strings.ToLower(n.Name), "organization") {
			return true
		}
		for _, c := range n.Children {
			if c.Name != "name" || c.Text == "" {
				continue
			}
			key := util.FoldName(c.Text)
			if _, ok := seen[key]; ok || key == "" {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, OrgName{Name: util.NormalizeSpaces(c.Text), Location: c.Path()})
		}
		return true
	})
	return out
}

// OrganizationNamesLenient does the same for markup that does not parse as
// XML. goquery lowercases tag names and tolerates unclosed elements, so a name
// counts when any ancestor is an organization element.
func OrganizationNamesLenient(doc []byte) []OrgName {
	q, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil
	}
	var out []OrgName
	seen := map[string]struct{}{}
	q.Find("name").Each(func(i int, s *goquery.Selection) {
		if !underOrganization(s) {
			return
		}
		text := util.NormalizeSpaces(ownText(s))
		key := util.FoldName(text)
		if _, ok := seen[key]; ok || key == "" {
			return
		}
		seen[key] = struct{}{}
		out = append(out, OrgName{Name: text, Location: "name element (lenient parse)"})
	})
	return out
}

func underOrganization(s *goquery.Selection) bool {
	found := false
	s.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if strings.Contains(goquery.NodeName(p), "organization") {
			found = true
			return false
		}
		return true
	})
	return found
}

// ownText is the text of s without the text of child elements, which matters
// when the lenient parser has nested unclosed siblings under it.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

// Labeler is the organization named in a document's author section.
type Labeler struct {
	Name string
	DUNS string
}

// LabelerFromTree reads the first author element's organization name and its
// first id extension of 8 or more digits. Documents without an author fall back
// to the first name that looks corporate.
func LabelerFromTree(root *Node, raw []byte) Labeler {
	var lab Labeler
	root.Walk(func(n *Node) bool {
		if lab.Name != "" || !strings.Contains(strings.ToLower(n.Name), "author") {
			return lab.Name == ""
		}
		n.Walk(func(org *Node) bool {
			if lab.Name != "" {
				return false
			}
			if !strings.Contains(strings.ToLower(org.Name), "organization") {
				return true
			}
			candidate := Labeler{}
			for _, x := range org.Find("name") {
				if x.Text != "" {
					candidate.Name = x.Text
					break
				}
			}
			for _, id := range org.Find("id") {
				if d := util.Digits(id.Attr("extension")); len(d) >= 8 {
					candidate.DUNS = d
					break
				}
			}
			if candidate.Name != "" {
				lab = candidate
				return false
			}
			return true
		})
		return lab.Name == ""
	})
	if lab.Name == "" {
		lab.Name = corporateName(raw)
	}
	return lab
}

// LabelerLenient reads the labeler from markup that does not parse as XML.
func LabelerLenient(doc []byte) Labeler {
	q, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return Labeler{Name: corporateName(doc)}
	}
	var lab Labeler
	q.Find("author").EachWithBreak(func(_ int, author *goquery.Selection) bool {
		org := author.Find("representedorganization, assignedorganization").First()
		if org.Length() == 0 {
			return true
		}
		lab.Name = util.NormalizeSpaces(ownText(org.Find("name").First()))
		org.Find("id").EachWithBreak(func(_ int, id *goquery.Selection) bool {
			if d := util.Digits(id.AttrOr("extension", "")); len(d) >= 8 {
				lab.DUNS = d
				return false
			}
			return true
		})
		return lab.Name == ""
	})
	if lab.Name == "" {
		lab.Name = corporateName(doc)
	}
	return lab
}

func corporateName(doc []byte) string {
	if m := reCorporateName.FindSubmatch(doc); m != nil {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}
