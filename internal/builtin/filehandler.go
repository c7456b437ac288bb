package builtin

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// FileHandler serves static files under the host root.
type FileHandler struct{}

// NewFileHandler is this plugin's pluginapi.Factory.
func NewFileHandler(raw map[string]string) (pluginapi.Plugin, error) {
	return &FileHandler{}, nil
}

func (h *FileHandler) Name() string { return "file-handler" }

func (h *FileHandler) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (h *FileHandler) Shutdown(ctx context.Context) error { return nil }

func (h *FileHandler) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}

func (h *FileHandler) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

var supportedMethods = []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions}

func (h *FileHandler) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	path, err := resolveUnderRoot(pctx.HostRoot, req.CanonicalPath)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}
	if strings.HasSuffix(req.CanonicalPath, "/") || req.CanonicalPath == "" {
		path = filepath.Join(path, "index.html")
	}

	switch req.HTTP.Method {
	case http.MethodGet, http.MethodHead:
		return h.handleGet(req, path)
	case http.MethodPut:
		return h.handlePut(req, path)
	case http.MethodDelete:
		return h.handleDelete(path)
	case http.MethodOptions:
		resp := pluginapi.NewResponse(http.StatusNoContent)
		methods := append([]string(nil), supportedMethods...)
		sort.Strings(methods)
		resp.Header.Set("Allow", strings.Join(methods, ", "))
		return pluginapi.ActionRespond, resp, nil
	default:
		return pluginapi.ActionContinue, nil, nil
	}
}

func (h *FileHandler) handleGet(req *pluginapi.Request, path string) (pluginapi.Action, *pluginapi.Response, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return pluginapi.ActionRespond, textResponse(http.StatusNotFound, "Not found"), nil
	}

	resp := pluginapi.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", contentTypeFor(path))
	resp.Header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	resp.Header.Set("ETag", weakETag(info.Size(), info.ModTime().UnixNano()))

	if req.HTTP.Method == http.MethodHead {
		return pluginapi.ActionRespond, resp, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	resp.Body = data
	return pluginapi.ActionRespond, resp, nil
}

func (h *FileHandler) handlePut(req *pluginapi.Request, path string) (pluginapi.Action, *pluginapi.Response, error) {
	body, err := readBody(req)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Bad request"), nil
	}
	_, statErr := os.Stat(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	if err := atomicWriteFile(path, body, 0o644); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Internal server error"), nil
	}
	status := http.StatusCreated
	if statErr == nil {
		status = http.StatusOK
	}
	return pluginapi.ActionRespond, pluginapi.NewResponse(status), nil
}

func (h *FileHandler) handleDelete(path string) (pluginapi.Action, *pluginapi.Response, error) {
	if err := os.Remove(path); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusNotFound, "Not found"), nil
	}
	return pluginapi.ActionRespond, pluginapi.NewResponse(http.StatusNoContent), nil
}

// weakETag builds a weak validator from size and modification time,
// avoiding a content hash read for every GET.
func weakETag(size int64, mtimeNano int64) string {
	return `W/"` + strconv.FormatInt(size, 36) + "-" + strconv.FormatInt(mtimeNano, 36) + `"`
}
