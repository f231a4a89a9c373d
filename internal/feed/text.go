package feed

import "strings"

// TextKind tags the shape a text-bearing feed field arrived in.
type TextKind uint8

const (
	TextEmpty TextKind = iota
	// TextPlain is bare character data: <title>Deal</title>.
	TextPlain
	// TextWrapped is text nested inside child markup: <title><span>Deal</span></title>.
	TextWrapped
	// TextAttributed is an element carrying attributes, with or without text:
	// <category term="tech"/>, <title type="html">Deal</title>.
	TextAttributed
)

// TextField is the tagged union over the field shapes seen in RSS, Atom and RDF.
type TextField struct {
	Kind  TextKind
	Text  string
	Attrs map[string]string
}

// attributes that carry the human-readable value when the element has no text.
var textCarriers = []string{"term", "label", "title", "value", "href", "url"}

// FieldOf classifies a node.
func FieldOf(n *Node) TextField {
	switch {
	case n == nil:
		return TextField{}
	case len(n.Attrs) > 0:
		return TextField{Kind: TextAttributed, Text: strings.TrimSpace(n.InnerText()), Attrs: n.Attrs}
	case len(n.Children) > 0:
		return TextField{Kind: TextWrapped, Text: strings.TrimSpace(n.InnerText())}
	default:
		return TextField{Kind: TextPlain, Text: strings.TrimSpace(n.Text)}
	}
}

// ExtractText resolves a field to its text.
func ExtractText(f TextField) string {
	switch f.Kind {
	case TextPlain, TextWrapped:
		return f.Text
	case TextAttributed:
		if f.Text != "" {
			return f.Text
		}
		for _, key := range textCarriers {
			if v := strings.TrimSpace(f.Attrs[key]); v != "" {
				return v
			}
		}
	}
	return ""
}
