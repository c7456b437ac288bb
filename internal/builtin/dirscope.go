package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// SubPipelineBuilder builds the nested pipeline a directory-scope instance
// runs, deferred to the caller (internal/lifecycle) so this package does not
// need to depend on the loader or plugin manager.
type SubPipelineBuilder func(ctx context.Context, nested []pluginapi.NestedPluginConfig) (SubPipeline, error)

// SubPipeline is the minimal surface DirectoryScope needs from a nested
// *pipeline.Pipeline, kept narrow so this package has no import cycle with
// internal/pipeline.
type SubPipeline interface {
	Execute(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) *pluginapi.Response
	Shutdown(ctx context.Context) error
}

// DirectoryScope wraps a sub-pipeline that only runs for requests whose
// canonical path falls under a configured prefix, letting one host layer
// extra plugins (a different authorization rule set, a stricter rate
// limit) onto a sub-tree of its document root without a second host
// entry. A short-circuit inside the nested pipeline surfaces as an
// ordinary ActionRespond to the outer pipeline.
type DirectoryScope struct {
	prefix  string
	build   SubPipelineBuilder
	nested  []pluginapi.NestedPluginConfig
	sub     SubPipeline
}

// NewDirectoryScopeFactory returns a pluginapi.Factory bound to build,
// since constructing the nested pipeline needs the plugin manager/loader
// that lives above this package.
func NewDirectoryScopeFactory(build SubPipelineBuilder) func(map[string]string) (pluginapi.Plugin, error) {
	return func(raw map[string]string) (pluginapi.Plugin, error) {
		prefix := raw["path"]
		if prefix == "" {
			return nil, fmt.Errorf("dirscope: missing path configuration key")
		}
		return &DirectoryScope{prefix: prefix, build: build}, nil
	}
}

func (d *DirectoryScope) Name() string { return "directory-scope" }

func (d *DirectoryScope) Init(ctx context.Context, pctx *pluginapi.Context) error {
	d.nested = pctx.Nested
	sub, err := d.build(ctx, d.nested)
	if err != nil {
		return fmt.Errorf("dirscope: building nested pipeline: %w", err)
	}
	d.sub = sub
	return nil
}

func (d *DirectoryScope) Shutdown(ctx context.Context) error {
	if d.sub == nil {
		return nil
	}
	return d.sub.Shutdown(ctx)
}

func (d *DirectoryScope) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (d *DirectoryScope) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	if !strings.HasPrefix(req.CanonicalPath, d.prefix) {
		return pluginapi.ActionContinue, nil, nil
	}
	resp := d.sub.Execute(ctx, pctx, req)
	return pluginapi.ActionRespond, resp, nil
}

func (d *DirectoryScope) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}
