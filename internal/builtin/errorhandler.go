package builtin

import (
	"context"
	"fmt"
	"os"

	"github.com/pageloom/pageloom/internal/httperror"
	"github.com/pageloom/pageloom/internal/pluginapi"
)

// ErrorHandler rewrites 4xx/5xx response bodies to the configured custom
// error pages, falling back to the canonical plain-text body when no page
// was configured for that status.
type ErrorHandler struct {
	pagePaths map[int]string
	pages     map[int][]byte
}

// NewErrorHandler is this plugin's pluginapi.Factory. Recognized config
// keys: "page.<status>" -> file path of a custom error page, e.g.
// "page.404" = "/errors/404.html".
func NewErrorHandler(raw map[string]string) (pluginapi.Plugin, error) {
	paths := make(map[int]string)
	for k, v := range raw {
		var status int
		if _, err := fmt.Sscanf(k, "page.%d", &status); err != nil {
			continue
		}
		paths[status] = v
	}
	return &ErrorHandler{pagePaths: paths}, nil
}

func (e *ErrorHandler) Name() string { return "error-handler" }

func (e *ErrorHandler) Init(ctx context.Context, pctx *pluginapi.Context) error {
	pages := make(map[int][]byte, len(e.pagePaths))
	for status, path := range e.pagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("error-handler: reading page for status %d: %w", status, err)
		}
		pages[status] = data
	}
	e.pages = pages
	return nil
}

func (e *ErrorHandler) Shutdown(ctx context.Context) error { return nil }

func (e *ErrorHandler) Policy() pluginapi.Policy {
	return pluginapi.Policy{ErrorsOnly: true}
}

func (e *ErrorHandler) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	return pluginapi.ActionContinue, nil, nil
}

func (e *ErrorHandler) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	if resp.Status < 400 {
		return nil
	}
	contentType, body := httperror.Body(resp.Status, e.pages)
	resp.Header.Set("Content-Type", contentType)
	resp.Body = body
	return nil
}
