// Package selector implements the CSS Selector Engine: compiling a
// selector string, enumerating matching element handles in document
// order, and the four edit operations (select, replace, append, remove)
// the selector handler built-in drives. Compilation and matching are
// delegated to andybalholm/cascadia; traversal convenience comes from
// PuerkitoBio/goquery, which wraps an already-parsed *html.Node tree
// without re-parsing it.
package selector

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/pageloom/pageloom/internal/htmldoc"
)

// ErrEmpty is returned by Compile for a blank selector expression.
var ErrEmpty = errors.New("selector: empty expression")

// Selector is a compiled CSS selector, possibly a comma-separated group;
// cascadia.Compile already treats a group as a single matcher that unions
// its branches.
type Selector struct {
	expr string
	m    cascadia.Selector
}

// Compile parses expr into a Selector. The supported grammar is cascadia's:
// type/id/class/attribute selectors, :first-child/:last-child/
// :first-of-type/:last-of-type, descendant/child/adjacent-sibling/
// general-sibling combinators, and comma-separated lists.
func Compile(expr string) (*Selector, error) {
	if len(expr) == 0 {
		return nil, ErrEmpty
	}
	m, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("selector: compile %q: %w", expr, err)
	}
	return &Selector{expr: expr, m: m}, nil
}

// String returns the original selector expression.
func (s *Selector) String() string { return s.expr }

// Select returns matching elements under root, in document order. An empty
// result is not an error.
func Select(root *html.Node, s *Selector) []*html.Node {
	doc := goquery.NewDocumentFromNode(root)
	return doc.FindMatcher(s.m).Nodes
}

// Replace implements the PUT semantics of the selector handler: matches are
// collected before any edit is applied (so mutation never invalidates the
// iterator), then fragment is parsed once. If the fragment is a single
// element, a clone replaces each match. If it is a multi-element fragment,
// the whole fragment replaces only the first match and every other match
// is simply detached, so the net result is one copy of the fragment across
// all matches. Returns the nodes that replaced the first match (or were
// inserted in its place), for the caller to render the "new outer HTML of
// the first match" response body.
func Replace(root *html.Node, s *Selector, fragment []byte) ([]*html.Node, error) {
	matches := Select(root, s)
	if len(matches) == 0 {
		return nil, nil
	}

	first := matches[0]
	parentCtx := htmldoc.WrapperContextFor(first.Parent)
	parsed, err := htmldoc.ParseFragment(fragment, parentCtx)
	if err != nil {
		return nil, err
	}

	if len(parsed) == 1 {
		var inserted []*html.Node
		for _, match := range matches {
			clone := htmldoc.Clone(parsed[0])
			htmldoc.ReplaceNode(match, clone)
			inserted = append(inserted, clone)
		}
		return inserted, nil
	}

	// Multi-element fragment: the whole thing replaces the first match;
	// remaining matches are removed without individual replacement.
	clones := make([]*html.Node, len(parsed))
	for i, n := range parsed {
		clones[i] = htmldoc.Clone(n)
	}
	htmldoc.ReplaceNode(first, clones...)
	for _, match := range matches[1:] {
		htmldoc.Remove(match)
	}
	return clones, nil
}

// Append implements the POST semantics: fragment is appended as the last
// children of every match, each match getting its own clone.
func Append(root *html.Node, s *Selector, fragment []byte) error {
	matches := Select(root, s)
	for _, match := range matches {
		ctx := htmldoc.WrapperContextFor(match)
		parsed, err := htmldoc.ParseFragment(fragment, ctx)
		if err != nil {
			return err
		}
		clones := make([]*html.Node, len(parsed))
		for i, n := range parsed {
			clones[i] = htmldoc.Clone(n)
		}
		htmldoc.AppendChildren(match, clones...)
	}
	return nil
}

// Remove implements the DELETE semantics: every match is detached from its
// parent. Matches are collected up front per the same mutation-safety rule.
func Remove(root *html.Node, s *Selector) int {
	matches := Select(root, s)
	for _, match := range matches {
		htmldoc.Remove(match)
	}
	return len(matches)
}
