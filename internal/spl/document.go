// Package spl reads Structured Product Labeling documents: it finds the FEI and
// DUNS numbers they carry, the establishment blocks around them and the
// operations each establishment performs for a given NDC.
package spl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// Attr is an attribute with its namespace dropped.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of a parsed label document.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Line     int
	Parent   *Node
	Children []*Node
}

// Parse builds the element tree of a well-formed document. Any syntax error is
// returned so the caller can switch to the text scan.
func Parse(doc []byte) (*Node, error) {
	d := xml.NewDecoder(bytes.NewReader(doc))
	d.Strict = true
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	var (
		root  *Node
		stack []*Node
		text  []*strings.Builder
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse label document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := d.InputPos()
			n := &Node{Name: t.Name.Local, Line: line}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("parse label document: more than one root element")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				n.Parent = parent
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
			text = append(text, &strings.Builder{})
		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(text[len(text)-1].String())
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("parse label document: no root element")
	}
	return root, nil
}

func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

func (n *Node) HasAttr(name string) bool {
	for _, a := range n.Attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants in document order. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the descendants of n (n excluded) named name, in document order.
func (n *Node) Find(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		c.Walk(func(x *Node) bool {
			if x.Name == name {
				out = append(out, x)
			}
			return true
		})
	}
	return out
}

// Path describes the position of n from the root, e.g.
// /document/component/section/subject[2]/assignedEntity/id. Same-named
// siblings get a 1-based index.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent {
		part := cur.Name
		if cur.Parent != nil {
			pos, count := 0, 0
			for _, sib := range cur.Parent.Children {
				if sib.Name != cur.Name {
					continue
				}
				count++
				if sib == cur {
					pos = count
				}
			}
			if count > 1 {
				part += "[" + strconv.Itoa(pos) + "]"
			}
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// ChildText returns the text of the first direct child whose name contains
// sub, case-insensitively, and that has text.
func (n *Node) ChildText(sub string) string {
	sub = strings.ToLower(sub)
	for _, c := range n.Children {
		if c.Text != "" && strings.Contains(strings.ToLower(c.Name), sub) {
			return c.Text
		}
	}
	return ""
}

// Content concatenates text and attribute values of n and its descendants,
// skipping subtrees for which prune returns true.
func (n *Node) Content(prune func(*Node) bool) string {
	var b strings.Builder
	first := true
	n.Walk(func(x *Node) bool {
		if !first && prune != nil && prune(x) {
			return false
		}
		first = false
		for _, a := range x.Attrs {
			b.WriteString(a.Value)
			b.WriteByte(' ')
		}
		if x.Text != "" {
			b.WriteString(x.Text)
			b.WriteByte(' ')
		}
		return true
	})
	return b.String()
}
