package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// Redirect answers matching requests with an HTTP redirect instead of
// passing them further down the pipeline, e.g. enforcing a canonical host
// or moving a path to a new location.
type Redirect struct {
	from   string
	to     string
	status int
}

// NewRedirect is this plugin's pluginapi.Factory. Recognized config keys:
// "from" (path prefix, required), "to" (replacement prefix, required),
// "permanent" (bool, default false -> 302, true -> 301).
func NewRedirect(raw map[string]string) (pluginapi.Plugin, error) {
	from := raw["from"]
	to := raw["to"]
	if from == "" || to == "" {
		return nil, fmt.Errorf("redirect: both from and to configuration keys are required")
	}
	status := http.StatusFound
	if boolValue(raw, "permanent", false) {
		status = http.StatusMovedPermanently
	}
	return &Redirect{from: from, to: to, status: status}, nil
}

func (r *Redirect) Name() string { return "redirect" }

func (r *Redirect) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (r *Redirect) Shutdown(ctx context.Context) error { return nil }

func (r *Redirect) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (r *Redirect) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	if !strings.HasPrefix(req.CanonicalPath, r.from) {
		return pluginapi.ActionContinue, nil, nil
	}
	target := r.to + strings.TrimPrefix(req.CanonicalPath, r.from)
	if q := req.HTTP.URL.RawQuery; q != "" {
		target += "?" + q
	}
	resp := pluginapi.NewResponse(r.status)
	resp.Header.Set("Location", target)
	return pluginapi.ActionRespond, resp, nil
}

func (r *Redirect) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}
