package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Node is one element of a leniently parsed feed. Attributes are merged into the element,
// character data (including CDATA) is accumulated in Text.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node

	inner []byte
}

// Child returns the first child with the given name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children with the given name, in document order.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// childrenLocal matches on the local part of the name, ignoring any prefix.
func (n *Node) childrenLocal(local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if strings.EqualFold(localName(c.Name), local) {
			out = append(out, c)
		}
	}
	return out
}

// Attr returns an attribute value or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Attrs[name])
}

// InnerText is the element's text including all descendant text, in document order.
func (n *Node) InnerText() string {
	if n == nil {
		return ""
	}
	if n.inner != nil {
		return string(n.inner)
	}
	if len(n.Children) == 0 {
		return n.Text
	}
	parts := []string{n.Text}
	for _, c := range n.Children {
		parts = append(parts, c.InnerText())
	}
	return strings.Join(parts, " ")
}

// ChildText resolves the first named child that yields non-empty text.
func (n *Node) ChildText(names ...string) string {
	for _, name := range names {
		for _, c := range n.ChildrenNamed(name) {
			if text := ExtractText(FieldOf(c)); text != "" {
				return text
			}
		}
	}
	return ""
}

// Find returns the first descendant (depth-first) with the given name.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// well-known namespaces are mapped to their conventional prefix whatever the document calls them.
var namespacePrefixes = map[string]string{
	"http://search.yahoo.com/mrss/":               "media",
	"http://search.yahoo.com/mrss":                "media",
	"http://purl.org/rss/1.0/modules/content/":    "content",
	"http://purl.org/dc/elements/1.1/":            "dc",
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#": "rdf",
	"http://www.w3.org/2005/Atom":                 "atom",
}

type treeBuilder struct {
	aliases map[string]string
}

// Parse builds a Node tree from XML without failing on recoverable defects: mismatched end tags
// close the nearest matching element, stray end tags are ignored, unknown entities pass through.
// A syntax error after the root element opened returns the tree built so far.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	b := treeBuilder{aliases: map[string]string{}}

	var (
		root  *Node
		stack []*Node
	)

	for {
		tok, err := dec.RawToken()
		if err != nil {
			if errors.Is(err, io.EOF) || root != nil {
				break
			}
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := b.element(t)
			for _, open := range stack {
				if len(open.inner) > 0 {
					open.inner = append(open.inner, ' ')
				}
			}
			switch {
			case len(stack) > 0:
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			case root == nil:
				root = node
			default:
				root.Children = append(root.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			name := b.qualify(t.Name)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Name == name {
					stack = stack[:i]
					break
				}
			}

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			top.Text += string(t)
			for _, open := range stack {
				open.inner = append(open.inner, t...)
			}
		}
	}

	if root == nil {
		return nil, errors.New("parse xml: no root element")
	}
	return root, nil
}

func (b *treeBuilder) element(t xml.StartElement) *Node {
	// declarations first so the element's own prefix resolves through them.
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" {
			if prefix, ok := namespacePrefixes[strings.TrimSpace(a.Value)]; ok {
				b.aliases[a.Name.Local] = prefix
			}
		}
	}

	node := &Node{Name: b.qualify(t.Name)}
	if len(t.Attr) > 0 {
		node.Attrs = make(map[string]string, len(t.Attr))
		for _, a := range t.Attr {
			if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
				continue
			}
			node.Attrs[b.qualify(a.Name)] = a.Value
		}
	}
	return node
}

func (b *treeBuilder) qualify(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	prefix := name.Space
	if alias, ok := b.aliases[prefix]; ok {
		prefix = alias
	}
	return prefix + ":" + name.Local
}

func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}
