package microdata_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/pageloom/pageloom/internal/microdata"
)

func parse(t *testing.T, doc string) *html.Node {
	t.Helper()
	n, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return n
}

func TestExtractSimpleItem(t *testing.T) {
	root := parse(t, `<html><body>
	<div itemscope itemtype="Plugin">
	  <span itemprop="name">ratelimit</span>
	  <span itemprop="library">file://ratelimit</span>
	</div>
	</body></html>`)

	items := microdata.Extract(root)
	require.Len(t, items, 1)
	require.Equal(t, "Plugin", items[0].Type)
	name, ok := items[0].GetText("name")
	require.True(t, ok)
	require.Equal(t, "ratelimit", name)
}

func TestExtractNestedItem(t *testing.T) {
	root := parse(t, `<html><body>
	<div itemscope itemtype="Host">
	  <span itemprop="name">example.com</span>
	  <div itemprop="plugin" itemscope itemtype="Plugin">
	    <span itemprop="name">cors</span>
	  </div>
	</div>
	</body></html>`)

	items := microdata.Extract(root)
	require.Len(t, items, 1)
	nested := items[0].AllItems("plugin")
	require.Len(t, nested, 1)
	name, ok := nested[0].GetText("name")
	require.True(t, ok)
	require.Equal(t, "cors", name)
}

func TestExtractItemrefPullsInReferencedProps(t *testing.T) {
	root := parse(t, `<html><body>
	<div id="shared"><span itemprop="realm">pageloom</span></div>
	<div itemscope itemtype="Plugin" itemref="shared">
	  <span itemprop="name">basicauth</span>
	</div>
	</body></html>`)

	items := microdata.Extract(root)
	require.Len(t, items, 1)
	realm, ok := items[0].GetText("realm")
	require.True(t, ok)
	require.Equal(t, "pageloom", realm)
}

func TestExtractURLAttributeValue(t *testing.T) {
	root := parse(t, `<html><body>
	<div itemscope itemtype="Link">
	  <a itemprop="target" href="https://example.com/doc.html">doc</a>
	</div>
	</body></html>`)

	items := microdata.Extract(root)
	require.Len(t, items, 1)
	target, ok := items[0].GetText("target")
	require.True(t, ok)
	require.Equal(t, "https://example.com/doc.html", target)
}

func TestExtractSkipsNestedScopeAsTopLevelItem(t *testing.T) {
	root := parse(t, `<html><body>
	<div itemscope itemtype="Host">
	  <div itemprop="plugin" itemscope itemtype="Plugin"><span itemprop="name">x</span></div>
	</div>
	</body></html>`)

	items := microdata.Extract(root)
	require.Len(t, items, 1)
	require.Equal(t, "Host", items[0].Type)
}
