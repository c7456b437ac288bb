package builtin

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

const selectorDoc = `<html><body><ul id="list"><li class="item">one</li><li class="item">two</li></ul></body></html>`

func writeSelectorDoc(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.html"), []byte(selectorDoc), 0o644))
}

func newSelectorReq(t *testing.T, method, rangeExpr string, body []byte) *pluginapi.Request {
	t.Helper()
	var httpReq *http.Request
	if body != nil {
		httpReq = httptest.NewRequest(method, "/page.html", bytes.NewReader(body))
	} else {
		httpReq = httptest.NewRequest(method, "/page.html", nil)
	}
	if rangeExpr != "" {
		httpReq.Header.Set("Range", "selector="+rangeExpr)
	}
	return &pluginapi.Request{HTTP: httpReq, CanonicalPath: "page.html", Metadata: make(map[string]string)}
}

func TestSelectorHandlerWithoutRangeHeaderContinues(t *testing.T) {
	root := t.TempDir()
	writeSelectorDoc(t, root)
	h := &SelectorHandler{}
	req := newSelectorReq(t, http.MethodGet, "", nil)
	action, _, err := h.HandleRequest(context.Background(), &pluginapi.Context{HostRoot: root}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)
}

func TestSelectorHandlerGetReturnsMatchedFragments(t *testing.T) {
	root := t.TempDir()
	writeSelectorDoc(t, root)
	h := &SelectorHandler{}
	req := newSelectorReq(t, http.MethodGet, ".item", nil)
	action, resp, err := h.HandleRequest(context.Background(), &pluginapi.Context{HostRoot: root}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionRespond, action)
	require.Equal(t, http.StatusPartialContent, resp.Status)
	require.Contains(t, string(resp.Body), "one")
	require.Contains(t, string(resp.Body), "two")
}

func TestSelectorHandlerGetNoMatchIsRangeNotSatisfiable(t *testing.T) {
	root := t.TempDir()
	writeSelectorDoc(t, root)
	h := &SelectorHandler{}
	req := newSelectorReq(t, http.MethodGet, ".missing", nil)
	_, resp, err := h.HandleRequest(context.Background(), &pluginapi.Context{HostRoot: root}, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.Status)
}

func TestSelectorHandlerPutReplacesMatch(t *testing.T) {
	root := t.TempDir()
	writeSelectorDoc(t, root)
	h := &SelectorHandler{}
	req := newSelectorReq(t, http.MethodPut, "#list", []byte(`<ul id="list"><li class="item">replaced</li></ul>`))
	_, resp, err := h.HandleRequest(context.Background(), &pluginapi.Context{HostRoot: root}, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Contains(t, string(resp.Body), "replaced")

	data, err := os.ReadFile(filepath.Join(root, "page.html"))
	require.NoError(t, err)
	require.Contains(t, string(data), "replaced")
	require.NotContains(t, string(data), "one")
}

func TestSelectorHandlerPostAppendsToMatch(t *testing.T) {
	root := t.TempDir()
	writeSelectorDoc(t, root)
	h := &SelectorHandler{}
	req := newSelectorReq(t, http.MethodPost, "#list", []byte(`<li class="item">three</li>`))
	_, resp, err := h.HandleRequest(context.Background(), &pluginapi.Context{HostRoot: root}, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	data, err := os.ReadFile(filepath.Join(root, "page.html"))
	require.NoError(t, err)
	require.Contains(t, string(data), "three")
	require.Contains(t, string(data), "two")
}

func TestSelectorHandlerDeleteRemovesMatches(t *testing.T) {
	root := t.TempDir()
	writeSelectorDoc(t, root)
	h := &SelectorHandler{}
	req := newSelectorReq(t, http.MethodDelete, ".item", nil)
	_, resp, err := h.HandleRequest(context.Background(), &pluginapi.Context{HostRoot: root}, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.Status)

	data, err := os.ReadFile(filepath.Join(root, "page.html"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "one")
	require.NotContains(t, string(data), "two")
}

func TestSelectorHandlerNonHTMLPathContinues(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), []byte(`{}`), 0o644))
	h := &SelectorHandler{}

	httpReq := httptest.NewRequest(http.MethodGet, "/data.json", nil)
	httpReq.Header.Set("Range", "selector=.item")
	req := &pluginapi.Request{HTTP: httpReq, CanonicalPath: "data.json", Metadata: make(map[string]string)}

	action, _, err := h.HandleRequest(context.Background(), &pluginapi.Context{HostRoot: root}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)
}
