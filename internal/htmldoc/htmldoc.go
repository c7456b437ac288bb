// Package htmldoc implements the HTML Document Model: parsing bytes into a
// mutable DOM, navigating it, editing it in place, and serializing it back
// preserving structural wrappers. Built on golang.org/x/net/html, whose
// parser is itself spec-error-tolerant, matching the "malformed input is
// tolerated" failure mode.
package htmldoc

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document wraps a parsed HTML tree. Root is the *html.Node for the
// document (or, for a fragment parse, the synthetic body-like context node
// whose children are the fragment's top-level nodes).
type Document struct {
	Root *html.Node
	// fragment is true when Root's children are a parsed fragment, not a
	// full document; Serialize then emits only the children.
	fragment bool
}

// Parse reads a full HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{Root: root}, nil
}

// ParseBytes is a convenience wrapper around Parse.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

// contextChains maps a tag to the chain of ancestor tags (innermost first)
// within which elements of that tag are legal (table cells, rows, list
// items, select options). It is consulted only by WrapperContextFor;
// ParseFragment does not build these chains.
var contextChains = map[atom.Atom][]atom.Atom{
	atom.Td:     {atom.Tr, atom.Tbody, atom.Table},
	atom.Th:     {atom.Tr, atom.Tbody, atom.Table},
	atom.Tr:     {atom.Tbody, atom.Table},
	atom.Tbody:  {atom.Table},
	atom.Thead:  {atom.Table},
	atom.Tfoot:  {atom.Table},
	atom.Li:     {atom.Ul},
	atom.Option: {atom.Select},
}

// ParseFragment parses an HTML fragment in the context of contextTag,
// returning the resulting top-level nodes. contextTag is the tag name the
// fragment will be inserted under (e.g. "tr" for a table-cell fragment).
// The fragment is parsed once against a single detached context element
// of that tag; no further ancestor wrappers are synthesized, and the
// context element is never part of the returned nodes.
func ParseFragment(data []byte, contextTag string) ([]*html.Node, error) {
	a := atom.Lookup([]byte(contextTag))
	ctxNode := &html.Node{
		Type:     html.ElementNode,
		Data:     contextTag,
		DataAtom: a,
	}

	nodes, err := html.ParseFragment(bytes.NewReader(data), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse fragment (context %s): %w", contextTag, err)
	}
	return nodes, nil
}

// WrapperContextFor reports the innermost context tag a fragment destined
// to replace/append under parent must be parsed with, given parent's tag.
// Most elements need no wrapper; parent returns itself.
func WrapperContextFor(parent *html.Node) string {
	if parent == nil || parent.Type != html.ElementNode {
		return "body"
	}
	if _, ok := contextChains[parent.DataAtom]; ok {
		return parent.Data
	}
	return parent.Data
}

// Serialize renders the document (or fragment) back to bytes.
func (d *Document) Serialize(w io.Writer) error {
	if d.fragment {
		for n := d.Root.FirstChild; n != nil; n = n.NextSibling {
			if err := html.Render(w, n); err != nil {
				return fmt.Errorf("htmldoc: serialize: %w", err)
			}
		}
		return nil
	}
	if err := html.Render(w, d.Root); err != nil {
		return fmt.Errorf("htmldoc: serialize: %w", err)
	}
	return nil
}

// SerializeBytes is a convenience wrapper around Serialize.
func (d *Document) SerializeBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OuterHTML renders a single node (and its subtree) to a string, the unit
// the selector engine concatenates for a selector GET response.
func OuterHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("htmldoc: outer html: %w", err)
	}
	return buf.String(), nil
}

// Attr returns the value of attribute name on n and whether it was present.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute name to value on n, adding it if absent.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveChildren detaches all of parent's children.
func RemoveChildren(parent *html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		c = next
	}
}

// ReplaceNode substitutes old with each of the given replacement nodes, in
// order, preserving old's former position among its siblings. old is
// detached from its parent. replacements must not already be attached to
// a tree.
func ReplaceNode(old *html.Node, replacements ...*html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	for _, r := range replacements {
		parent.InsertBefore(r, old)
	}
	parent.RemoveChild(old)
}

// AppendChildren appends each of the given nodes as parent's last children,
// in order. nodes must not already be attached to a tree.
func AppendChildren(parent *html.Node, nodes ...*html.Node) {
	for _, n := range nodes {
		parent.AppendChild(n)
	}
}

// Remove detaches n from its parent. A no-op if n has no parent.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// TextContent returns the normalized (whitespace-collapsed) text content of
// n's subtree, the value extraction fallback the microdata extractor uses
// for element kinds with no dedicated attribute.
func TextContent(n *html.Node) string {
	var buf bytes.Buffer
	collectText(n, &buf)
	return normalizeWhitespace(buf.String())
}

func collectText(n *html.Node, buf *bytes.Buffer) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, buf)
	}
}

func normalizeWhitespace(s string) string {
	var buf bytes.Buffer
	lastSpace := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
		if isSpace {
			if !lastSpace {
				buf.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		buf.WriteRune(r)
		lastSpace = false
	}
	out := buf.String()
	// Trim a single leading/trailing collapsed space, matching the
	// common "normalized text" expectation without over-trimming interior
	// runs that were already collapsed above.
	for len(out) > 0 && out[0] == ' ' {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return out
}

// Clone deep-copies n and its subtree, detached from any tree, so the copy
// can be inserted elsewhere. Needed because an *html.Node can only ever be
// attached at one place at a time.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// FindID returns the first descendant of n (or n itself) whose id
// attribute equals id, or nil.
func FindID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := Attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// Walk calls fn for n and every descendant, in document (pre-)order,
// stopping early if fn returns false.
func Walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}
