package builtin

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/pageloom/pageloom/internal/htmldoc"
	"github.com/pageloom/pageloom/internal/pluginapi"
	"github.com/pageloom/pageloom/internal/selector"
)

// SelectorHandler reinterprets the Range header's "selector" unit as a
// CSS-selector-addressed read/write/append/delete on an HTML resource.
// Non-HTML files and requests without the selector Range unit pass
// through to the file handler untouched.
type SelectorHandler struct{}

// NewSelectorHandler is this plugin's pluginapi.Factory.
func NewSelectorHandler(raw map[string]string) (pluginapi.Plugin, error) {
	return &SelectorHandler{}, nil
}

func (h *SelectorHandler) Name() string { return "selector-handler" }

func (h *SelectorHandler) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (h *SelectorHandler) Shutdown(ctx context.Context) error { return nil }

func (h *SelectorHandler) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}

func (h *SelectorHandler) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (h *SelectorHandler) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	expr, ok := selectorFromRange(req.HTTP)
	if !ok || !isHTMLPath(req.CanonicalPath) {
		return pluginapi.ActionContinue, nil, nil
	}

	path, err := resolveUnderRoot(pctx.HostRoot, req.CanonicalPath)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}

	sel, err := selector.Compile(expr)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}

	switch req.HTTP.Method {
	case http.MethodGet:
		return h.handleGet(path, sel)
	case http.MethodPut:
		return h.handlePut(req, path, sel)
	case http.MethodPost:
		return h.handlePost(req, path, sel)
	case http.MethodDelete:
		return h.handleDelete(path, sel)
	default:
		return pluginapi.ActionContinue, nil, nil
	}
}

func (h *SelectorHandler) handleGet(path string, sel *selector.Selector) (pluginapi.Action, *pluginapi.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusNotFound, "Not found"), nil
	}
	doc, err := htmldoc.ParseBytes(data)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	matches := selector.Select(doc.Root, sel)
	if len(matches) == 0 {
		return pluginapi.ActionRespond, textResponse(http.StatusRequestedRangeNotSatisfiable, "Range not satisfiable"), nil
	}

	var body string
	for _, m := range matches {
		outer, err := htmldoc.OuterHTML(m)
		if err != nil {
			return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
		}
		body += outer
	}

	resp := pluginapi.NewResponse(http.StatusPartialContent)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	resp.Header.Set("Content-Range", "selector "+sel.String())
	resp.Body = []byte(body)
	return pluginapi.ActionRespond, resp, nil
}

func (h *SelectorHandler) handlePut(req *pluginapi.Request, path string, sel *selector.Selector) (pluginapi.Action, *pluginapi.Response, error) {
	fragment, err := readBody(req)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusNotFound, "Not found"), nil
	}
	doc, err := htmldoc.ParseBytes(data)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	inserted, err := selector.Replace(doc.Root, sel, fragment)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}
	if len(inserted) == 0 {
		// Zero-match PUT: treated as range not satisfiable rather than a
		// silent no-op, consistent with GET/POST/DELETE on an empty match set.
		return pluginapi.ActionRespond, textResponse(http.StatusRequestedRangeNotSatisfiable, "Range not satisfiable"), nil
	}

	out, err := doc.SerializeBytes()
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	if err := atomicWriteFile(path, out, 0o644); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	outer, err := htmldoc.OuterHTML(inserted[0])
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	resp := pluginapi.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	resp.Body = []byte(outer)
	return pluginapi.ActionRespond, resp, nil
}

func (h *SelectorHandler) handlePost(req *pluginapi.Request, path string, sel *selector.Selector) (pluginapi.Action, *pluginapi.Response, error) {
	fragment, err := readBody(req)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusNotFound, "Not found"), nil
	}
	doc, err := htmldoc.ParseBytes(data)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	matches := selector.Select(doc.Root, sel)
	if len(matches) == 0 {
		return pluginapi.ActionRespond, textResponse(http.StatusRequestedRangeNotSatisfiable, "Range not satisfiable"), nil
	}

	if err := selector.Append(doc.Root, sel, fragment); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}

	out, err := doc.SerializeBytes()
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	if err := atomicWriteFile(path, out, 0o644); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	return pluginapi.ActionRespond, pluginapi.NewResponse(http.StatusOK), nil
}

func (h *SelectorHandler) handleDelete(path string, sel *selector.Selector) (pluginapi.Action, *pluginapi.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusNotFound, "Not found"), nil
	}
	doc, err := htmldoc.ParseBytes(data)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	n := selector.Remove(doc.Root, sel)
	if n == 0 {
		return pluginapi.ActionRespond, textResponse(http.StatusRequestedRangeNotSatisfiable, "Range not satisfiable"), nil
	}

	out, err := doc.SerializeBytes()
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	if err := atomicWriteFile(path, out, 0o644); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	return pluginapi.ActionRespond, pluginapi.NewResponse(http.StatusNoContent), nil
}

func readBody(req *pluginapi.Request) ([]byte, error) {
	if req.Body != nil {
		return req.Body, nil
	}
	if req.HTTP.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.HTTP.Body)
	if err != nil {
		return nil, err
	}
	req.Body = data
	return data, nil
}
