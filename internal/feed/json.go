package feed

import (
	"encoding/json"
	"sort"
	"strconv"
)

// FromJSON converts a decoded JSON value into a Node so API payloads share the feed normalizer.
// Members of the top-level object become child elements. Scalar members of nested objects
// become attributes, the way feeds carry link and enclosure metadata. Arrays repeat the element.
func FromJSON(name string, value any) *Node {
	return fromJSON(name, value, true)
}

func fromJSON(name string, value any, top bool) *Node {
	node := &Node{Name: name}

	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			member := v[k]
			if !top && isScalar(member) {
				if node.Attrs == nil {
					node.Attrs = map[string]string{}
				}
				node.Attrs[k] = scalarText(member)
				continue
			}
			node.Children = append(node.Children, expand(k, member)...)
		}
	case []any:
		for _, el := range v {
			node.Children = append(node.Children, fromJSON(name, el, false))
		}
	default:
		node.Text = scalarText(v)
	}

	return node
}

func expand(name string, value any) []*Node {
	arr, ok := value.([]any)
	if !ok {
		return []*Node{fromJSON(name, value, false)}
	}
	nodes := make([]*Node, 0, len(arr))
	for _, el := range arr {
		nodes = append(nodes, fromJSON(name, el, false))
	}
	return nodes
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
