package builtin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// ReloadTrigger answers a configured path by invoking a supplied callback
// that asks the lifecycle supervisor to rebuild its configuration and
// swap the running pipeline, complementing the process-signal reload
// path with an in-band HTTP one.
type ReloadTrigger struct {
	path    string
	trigger func(ctx context.Context) error
}

// NewReloadTriggerFactory returns a pluginapi.Factory bound to trigger,
// since the actual reload action lives in internal/lifecycle, above this
// package.
func NewReloadTriggerFactory(trigger func(ctx context.Context) error) func(map[string]string) (pluginapi.Plugin, error) {
	return func(raw map[string]string) (pluginapi.Plugin, error) {
		path := raw["path"]
		if path == "" {
			path = "/_reload"
		}
		if trigger == nil {
			return nil, fmt.Errorf("reload: no trigger callback supplied")
		}
		return &ReloadTrigger{path: path, trigger: trigger}, nil
	}
}

func (r *ReloadTrigger) Name() string { return "reload-trigger" }

func (r *ReloadTrigger) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (r *ReloadTrigger) Shutdown(ctx context.Context) error { return nil }

func (r *ReloadTrigger) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (r *ReloadTrigger) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	if !matchesPath(req.CanonicalPath, r.path) || req.HTTP.Method != http.MethodPost {
		return pluginapi.ActionContinue, nil, nil
	}
	if err := r.trigger(ctx); err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusInternalServerError, "Reload failed"), nil
	}
	return pluginapi.ActionRespond, textResponse(http.StatusOK, "Reloaded"), nil
}

func (r *ReloadTrigger) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}
