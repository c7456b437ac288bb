package htmldoc_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/pageloom/pageloom/internal/htmldoc"
)

func findFirstP(root *html.Node) *html.Node {
	var found *html.Node
	htmldoc.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "p" {
			found = n
			return false
		}
		return true
	})
	return found
}

func TestParseBytesAndSerializeBytesRoundTrip(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte(`<html><body><p id="a">hi</p></body></html>`))
	require.NoError(t, err)

	out, err := doc.SerializeBytes()
	require.NoError(t, err)
	require.Contains(t, string(out), `<p id="a">hi</p>`)
}

func TestFindIDLocatesElementByID(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte(`<html><body><div><span id="target">x</span></div></body></html>`))
	require.NoError(t, err)

	n := htmldoc.FindID(doc.Root, "target")
	require.NotNil(t, n)
	v, ok := htmldoc.Attr(n, "id")
	require.True(t, ok)
	require.Equal(t, "target", v)
}

func TestFindIDMissingReturnsNil(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte(`<html><body></body></html>`))
	require.NoError(t, err)
	require.Nil(t, htmldoc.FindID(doc.Root, "nope"))
}

func TestAttrAndSetAttr(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte(`<html><body><p class="old">x</p></body></html>`))
	require.NoError(t, err)

	n := findFirstP(doc.Root)
	require.NotNil(t, n)

	v, ok := htmldoc.Attr(n, "class")
	require.True(t, ok)
	require.Equal(t, "old", v)

	htmldoc.SetAttr(n, "class", "new")
	v2, _ := htmldoc.Attr(n, "class")
	require.Equal(t, "new", v2)

	htmldoc.SetAttr(n, "data-x", "added")
	v3, ok3 := htmldoc.Attr(n, "data-x")
	require.True(t, ok3)
	require.Equal(t, "added", v3)
}

func TestTextContentNormalizesWhitespace(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte("<html><body><p>  hello   \n  world  </p></body></html>"))
	require.NoError(t, err)
	n := findFirstP(doc.Root)
	require.Equal(t, "hello world", htmldoc.TextContent(n))
}

func TestCloneProducesDetachedCopy(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte(`<html><body><p id="orig">text</p></body></html>`))
	require.NoError(t, err)
	n := findFirstP(doc.Root)

	clone := htmldoc.Clone(n)
	require.Nil(t, clone.Parent)
	require.Equal(t, "text", htmldoc.TextContent(clone))
}

func TestReplaceNodeSwapsPosition(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte(`<html><body><p id="a">a</p><p id="b">b</p></body></html>`))
	require.NoError(t, err)
	a := htmldoc.FindID(doc.Root, "a")
	require.NotNil(t, a)

	replacement, err := htmldoc.ParseFragment([]byte(`<p id="c">c</p>`), "body")
	require.NoError(t, err)
	htmldoc.ReplaceNode(a, replacement...)

	out, err := doc.SerializeBytes()
	require.NoError(t, err)
	require.Contains(t, string(out), `id="c"`)
	require.NotContains(t, string(out), `id="a"`)
}

func TestRemoveDetachesNode(t *testing.T) {
	doc, err := htmldoc.ParseBytes([]byte(`<html><body><p id="a">a</p></body></html>`))
	require.NoError(t, err)
	a := htmldoc.FindID(doc.Root, "a")
	require.NotNil(t, a)

	htmldoc.Remove(a)
	out, err := doc.SerializeBytes()
	require.NoError(t, err)
	require.NotContains(t, string(out), `id="a"`)
}
