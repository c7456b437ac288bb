// Package microdata implements the Microdata Extractor: walking a parsed
// HTML document and converting itemscope/itemtype/itemprop/itemref markup
// into a tree of typed property bags. This is pageloom's configuration
// format (internal/config builds ServerConfig/HostConfig/PluginConfig from
// its output) and also the shape of the user database file.
package microdata

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/pageloom/pageloom/internal/htmldoc"
)

// Value is either a text string or, for a nested itemscope property, an
// Item. Exactly one of Text or Item is meaningful at a time.
type Value struct {
	Text string
	Item *Item
}

// IsItem reports whether this value is a nested Item rather than text.
func (v Value) IsItem() bool { return v.Item != nil }

// Item is a microdata item: an optional id, a schema type URI, and an
// ordered multimap of property name to values. Property order within a
// name follows document order.
type Item struct {
	ID    string
	Type  string
	Props map[string][]Value
}

// Get returns the first value for name, if any.
func (it *Item) Get(name string) (Value, bool) {
	vs := it.Props[name]
	if len(vs) == 0 {
		return Value{}, false
	}
	return vs[0], true
}

// GetText is a convenience for the common case of a single text property.
func (it *Item) GetText(name string) (string, bool) {
	v, ok := it.Get(name)
	if !ok || v.IsItem() {
		return "", false
	}
	return v.Text, true
}

// All returns every value for name, in document order.
func (it *Item) All(name string) []Value {
	return it.Props[name]
}

// AllItems returns the nested Items among All(name), skipping any stray
// text values under the same property name.
func (it *Item) AllItems(name string) []*Item {
	var out []*Item
	for _, v := range it.Props[name] {
		if v.Item != nil {
			out = append(out, v.Item)
		}
	}
	return out
}

// Extract walks root and returns every top-level Item: an element with
// itemscope that is not itself a declared property of an ancestor item
// (those are nested and owned by that ancestor, reachable via its Props).
func Extract(root *html.Node) []*Item {
	var items []*Item
	htmldoc.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if _, hasScope := htmldoc.Attr(n, "itemscope"); hasScope {
				if _, hasProp := htmldoc.Attr(n, "itemprop"); !hasProp {
					items = append(items, buildItem(n, root, map[string]bool{}))
				}
			}
		}
		return true
	})
	return items
}

func buildItem(el *html.Node, docRoot *html.Node, visited map[string]bool) *Item {
	item := &Item{Props: make(map[string][]Value)}
	if id, ok := htmldoc.Attr(el, "id"); ok {
		item.ID = id
		visited[id] = true
	}
	if t, ok := htmldoc.Attr(el, "itemtype"); ok {
		item.Type = t
	}

	collectProps(el, item, visited, docRoot, true)

	if ref, ok := htmldoc.Attr(el, "itemref"); ok {
		for _, id := range strings.Fields(ref) {
			if visited[id] {
				continue // itemref cycle guard
			}
			visited[id] = true
			target := htmldoc.FindID(docRoot, id)
			if target == nil {
				continue
			}
			collectProps(target, item, visited, docRoot, false)
		}
	}
	return item
}

// collectProps walks n's subtree gathering itemprop values into item, up
// to the next itemscope boundary. skipSelfCheck is true when n is item's
// own scope-owning element (so n's own attributes are not reinterpreted
// as a property or a nested scope); it is false for itemref targets, which
// may themselves carry itemprop or itemscope.
func collectProps(n *html.Node, item *Item, visited map[string]bool, docRoot *html.Node, skipSelfCheck bool) {
	if !skipSelfCheck && n.Type == html.ElementNode {
		if _, hasScope := htmldoc.Attr(n, "itemscope"); hasScope {
			if propAttr, hasProp := htmldoc.Attr(n, "itemprop"); hasProp {
				nested := buildItem(n, docRoot, cloneVisited(visited))
				addProps(item, propAttr, Value{Item: nested})
			}
			return // nested scope boundary: do not descend further
		}
		if propAttr, hasProp := htmldoc.Attr(n, "itemprop"); hasProp {
			addProps(item, propAttr, Value{Text: extractValue(n)})
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectProps(c, item, visited, docRoot, false)
	}
}

func addProps(item *Item, propAttr string, v Value) {
	for _, name := range strings.Fields(propAttr) {
		item.Props[name] = append(item.Props[name], v)
	}
}

func cloneVisited(v map[string]bool) map[string]bool {
	out := make(map[string]bool, len(v))
	for k := range v {
		out[k] = true
	}
	return out
}

// urlAttrByTag names the URL-bearing attribute for element kinds whose
// microdata value is a URL rather than their text content.
var urlAttrByTag = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"iframe": "src",
	"source": "src",
	"track":  "src",
}

// extractValue applies the element-kind-sensitive value extraction rule.
func extractValue(n *html.Node) string {
	switch n.Data {
	case "meta":
		if v, ok := htmldoc.Attr(n, "content"); ok {
			return v
		}
	case "time":
		if v, ok := htmldoc.Attr(n, "datetime"); ok {
			return v
		}
	default:
		if attrName, ok := urlAttrByTag[n.Data]; ok {
			if v, ok := htmldoc.Attr(n, attrName); ok {
				return v
			}
		}
	}
	return htmldoc.TextContent(n)
}
