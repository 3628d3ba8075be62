package spl

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

const assignedEntity = "assignedEntity"

var (
	reEntityOpen  = regexp.MustCompile(`(?i)<assignedEntity\b[^>]*[^/]>|<assignedEntity>`)
	reEntityClose = regexp.MustCompile(`(?i)</assignedEntity\s*>`)
	rePerformance = regexp.MustCompile(`(?is)<performance\b[^>]*>.*?</performance>`)
	reBusinessOp  = regexp.MustCompile(`(?is)<businessOperation\b[^>]*>.*?</businessOperation>`)
	reCodeTag     = regexp.MustCompile(`(?is)<code\b([^>]*?)/?>`)
	reAnyTag      = regexp.MustCompile(`(?is)<[A-Za-z][\w:.-]*\b([^>]*?)/?>`)
	reAttr        = regexp.MustCompile(`([A-Za-z_][\w:.-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	reNameElement = regexp.MustCompile(`(?i)<name[^>]*>([^<]+)</name>`)
)

type attrs map[string]string

// BlocksFromTree returns one block per assignedEntity element. Nested
// assignedEntity elements form their own blocks and are left out of their
// parent's.
func BlocksFromTree(root *Node) []Block {
	var blocks []Block
	root.Walk(func(n *Node) bool {
		if n.Name == assignedEntity {
			blocks = append(blocks, blockFromNode(n))
		}
		return true
	})
	return blocks
}

func isEntity(n *Node) bool { return n.Name == assignedEntity }

func blockFromNode(entity *Node) Block {
	b := Block{Location: entity.Path(), Content: entity.Content(isEntity)}
	first := true
	entity.Walk(func(x *Node) bool {
		if !first && isEntity(x) {
			return false
		}
		first = false
		switch x.Name {
		case "name":
			if b.Name == "" && x.Text != "" {
				b.Name = x.Text
			}
		case "performance":
			b.Performances = append(b.Performances, newPerformance(nodeCodes(x)))
			return false
		case "businessOperation":
			b.BusinessOperations = append(b.BusinessOperations, newBusinessOperation(nodeAttrs(x)))
			return false
		}
		return true
	})
	return b
}

func nodeCodes(n *Node) []attrs {
	var out []attrs
	for _, c := range n.Find("code") {
		out = append(out, toAttrs(c.Attrs))
	}
	return out
}

// nodeAttrs returns the attributes of n and every descendant.
func nodeAttrs(n *Node) []attrs {
	var out []attrs
	n.Walk(func(x *Node) bool {
		a := toAttrs(x.Attrs)
		if x.Name == "code" {
			a["@code"] = "1"
		}
		out = append(out, a)
		return true
	})
	return out
}

func toAttrs(list []Attr) attrs {
	a := attrs{}
	for _, x := range list {
		a[x.Name] = x.Value
	}
	return a
}

// BlocksFromText finds assignedEntity spans in raw markup. A span runs from an
// opening tag to the first closing tag, or to the next opening tag when an
// entity is nested inside it, so every span covers one entity's own markup.
func BlocksFromText(content string) []Block {
	var blocks []Block
	opens := reEntityOpen.FindAllStringIndex(content, -1)
	for k, open := range opens {
		end := len(content)
		if c := reEntityClose.FindStringIndex(content[open[1]:]); c != nil {
			end = open[1] + c[1]
		}
		if k+1 < len(opens) && opens[k+1][0] < end {
			end = opens[k+1][0]
		}
		span := content[open[0]:end]

		b := Block{
			Location: fmt.Sprintf("Line %d (regex-based)", lineAt(content, open[0])),
			Content:  span,
		}
		if m := reNameElement.FindStringSubmatch(span); m != nil {
			b.Name = strings.TrimSpace(html.UnescapeString(m[1]))
		}
		for _, perf := range rePerformance.FindAllString(span, -1) {
			b.Performances = append(b.Performances, newPerformance(tagAttrs(reCodeTag, perf, true)))
		}
		for _, bo := range reBusinessOp.FindAllString(span, -1) {
			b.BusinessOperations = append(b.BusinessOperations, newBusinessOperation(tagAttrs(reAnyTag, bo, false)))
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func tagAttrs(re *regexp.Regexp, s string, allCodes bool) []attrs {
	var out []attrs
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		a := parseAttrs(m[1])
		if allCodes || strings.HasPrefix(strings.ToLower(strings.TrimLeft(m[0], "<")), "code") {
			a["@code"] = "1"
		}
		out = append(out, a)
	}
	return out
}

func parseAttrs(raw string) attrs {
	a := attrs{}
	for _, m := range reAttr.FindAllStringSubmatch(raw, -1) {
		name := m[1]
		if i := strings.LastIndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		// One of the two value groups is empty, depending on the quote used.
		a[name] = html.UnescapeString(m[2] + m[3])
	}
	return a
}

// newPerformance takes the first code found in the operation table as the
// operation and every NDC-system code as a named product.
func newPerformance(codes []attrs) Performance {
	var p Performance
	for _, c := range codes {
		code := strings.TrimSpace(c["code"])
		if code == "" {
			continue
		}
		if c["codeSystem"] == NDCCodeSystem {
			p.NDCs = append(p.NDCs, code)
			continue
		}
		if _, ok := OperationCodes[code]; ok && p.OperationCode == "" {
			p.OperationCode = code
		}
	}
	return p
}

func newBusinessOperation(elems []attrs) BusinessOperation {
	var bo BusinessOperation
	for _, a := range elems {
		if bo.DisplayName == "" && a["displayName"] != "" {
			bo.DisplayName = a["displayName"]
		}
		if a["@code"] != "" && a["code"] != "" {
			bo.Codes = append(bo.Codes, strings.TrimSpace(a["code"]))
		}
	}
	return bo
}

// firstBlockWith returns the first block whose content contains number.
func firstBlockWith(blocks []Block, number string) (Block, bool) {
	for _, b := range blocks {
		if b.Contains(number) {
			return b, true
		}
	}
	return Block{}, false
}

func lineAt(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}
