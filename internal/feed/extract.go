package feed

import "strings"

// MaxSearchDepth bounds the fallback search for item collections.
const MaxSearchDepth = 5

var itemNames = []string{"item", "entry"}

// ExtractItems finds the item elements of an RSS 2.0, Atom or RDF document, falling back
// to a depth-limited search for any element holding item or entry children.
func ExtractItems(root *Node) []*Node {
	if root == nil {
		return nil
	}

	switch strings.ToLower(localName(root.Name)) {
	case "rss":
		if items := root.Child("channel").ChildrenNamed("item"); len(items) > 0 {
			return items
		}
	case "feed":
		if entries := root.ChildrenNamed("entry"); len(entries) > 0 {
			return entries
		}
	case "rdf":
		if items := root.ChildrenNamed("item"); len(items) > 0 {
			return items
		}
	}

	return searchItems(root, 0)
}

func searchItems(n *Node, depth int) []*Node {
	if n == nil || depth > MaxSearchDepth {
		return nil
	}
	for _, name := range itemNames {
		if found := n.childrenLocal(name); len(found) > 0 {
			return found
		}
	}
	for _, c := range n.Children {
		if found := searchItems(c, depth+1); len(found) > 0 {
			return found
		}
	}
	return nil
}
