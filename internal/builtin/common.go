// Package builtin implements the concrete, in-process plugins pageloom
// ships with: the two handlers (selector, file) and the request-pipeline
// plugins every host's pipeline is assembled from (basic auth,
// authorization, OAuth2, access log, CORS, compression, security headers,
// rate limit, redirect, health check, directory scope, WebSocket upgrade,
// error handler, config reload).
package builtin

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

const selectorRangeUnit = "selector="

// selectorFromRange extracts the CSS selector expression from a
// "Range: selector=<css>" header, reporting whether that unit was used.
func selectorFromRange(req *http.Request) (string, bool) {
	v := req.Header.Get("Range")
	if !strings.HasPrefix(v, selectorRangeUnit) {
		return "", false
	}
	return strings.TrimPrefix(v, selectorRangeUnit), true
}

// htmlExtensions are the file extensions the selector handler treats as
// HTML resources; everything else passes through to the file handler
// unchanged regardless of the Range header.
var htmlExtensions = map[string]bool{
	".html": true,
	".htm":  true,
}

func isHTMLPath(path string) bool {
	return htmlExtensions[strings.ToLower(filepath.Ext(path))]
}

// contentTypeByExt is the explicit extension table the file handler uses,
// including the .mjs special case.
var contentTypeByExt = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".mjs":  "application/javascript; charset=utf-8",
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".xml":  "application/xml",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".wasm": "application/wasm",
	".woff": "font/woff",
	".woff2": "font/woff2",
}

func contentTypeFor(path string) string {
	if ct, ok := contentTypeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// resolveUnderRoot joins canonicalPath under root and rejects escapes, the
// same canonicalization both handlers rely on (req.CanonicalPath is
// already ".."-free by construction, this is belt-and-suspenders).
func resolveUnderRoot(root, canonicalPath string) (string, error) {
	clean := filepath.Clean("/" + canonicalPath)
	full := filepath.Join(root, clean)
	if !strings.HasPrefix(full, filepath.Clean(root)+string(filepath.Separator)) && full != filepath.Clean(root) {
		return "", fmt.Errorf("path %q escapes document root", canonicalPath)
	}
	return full, nil
}

// atomicWriteFile writes data to path via a temp file in the same
// directory followed by a rename, so a crash never leaves a partial file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pageloom-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func textResponse(status int, body string) *pluginapi.Response {
	resp := pluginapi.NewResponse(status)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Body = []byte(body)
	return resp
}

func boolValue(raw map[string]string, key string, def bool) bool {
	v, ok := raw[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func intValue(raw map[string]string, key string, def int) int {
	v, ok := raw[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
