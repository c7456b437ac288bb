package lifecycle

import (
	"context"
	"fmt"

	"github.com/pageloom/pageloom/internal/config"
	"github.com/pageloom/pageloom/internal/pipeline"
	"github.com/pageloom/pageloom/internal/plugin"
	"github.com/pageloom/pageloom/internal/plugin/loader"
	"github.com/pageloom/pageloom/internal/pluginapi"
	"github.com/pageloom/pageloom/internal/sharedstate"
)

// buildPipeline constructs and registers every plugin instance a single
// host's PluginConfig list names, in order, returning the resulting
// pipeline.Pipeline. Each instance is registered under a key scoped to
// the host and its position in the list, since a host's pipeline can
// list the same plugin type more than once with different configuration
// (e.g. two directory-scope instances for two different sub-trees).
func buildPipeline(ctx context.Context, manager *plugin.Manager, ld *loader.Loader, hostname string, configs []*config.PluginConfig, hostRoot string, sc *config.ServerConfig, shared *sharedstate.Store) (*pipeline.Pipeline, error) {
	all := make([]*config.PluginConfig, 0, len(sc.Plugins)+len(configs))
	all = append(all, sc.Plugins...)
	all = append(all, configs...)

	plugins := make([]pluginapi.Plugin, 0, len(all))
	for i, pc := range all {
		p, err := instantiate(ctx, manager, ld, fmt.Sprintf("%s/%d", hostname, i), pc, hostRoot, shared)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return pipeline.New(hostname, plugins), nil
}

// buildNestedPipeline is the builtin.SubPipelineBuilder the directory-
// scope plugin uses: it has no hostname or host root of its own (it
// inherits its owner's via pluginapi.Context at call time), so those
// fields are left for Execute to supply through pctx instead of being
// baked into construction here.
func buildNestedPipeline(ctx context.Context, manager *plugin.Manager, ld *loader.Loader, nested []pluginapi.NestedPluginConfig, shared *sharedstate.Store) (pipelineAdapter, error) {
	plugins := make([]pluginapi.Plugin, 0, len(nested))
	for i, n := range nested {
		pc := &config.PluginConfig{LibraryURI: n.LibraryURI, Values: n.Config}
		p, err := instantiate(ctx, manager, ld, fmt.Sprintf("nested/%d", i), pc, "", shared)
		if err != nil {
			return pipelineAdapter{}, err
		}
		plugins = append(plugins, p)
	}
	return pipelineAdapter{p: pipeline.New("nested", plugins)}, nil
}

// pipelineAdapter satisfies builtin.SubPipeline without internal/builtin
// needing to import internal/pipeline directly.
type pipelineAdapter struct {
	p *pipeline.Pipeline
}

func (a pipelineAdapter) Execute(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) *pluginapi.Response {
	return a.p.Execute(ctx, pctx, req)
}

func (a pipelineAdapter) Shutdown(ctx context.Context) error {
	return a.p.Shutdown(ctx)
}

func instantiate(ctx context.Context, manager *plugin.Manager, ld *loader.Loader, key string, pc *config.PluginConfig, hostRoot string, shared *sharedstate.Store) (pluginapi.Plugin, error) {
	p, err := ld.Load(pc.LibraryURI, pc.Values)
	if err != nil {
		return nil, fmt.Errorf("loading plugin %q: %w", pc.LibraryURI, err)
	}

	nested := make([]pluginapi.NestedPluginConfig, 0, len(pc.Nested))
	for _, n := range pc.Nested {
		nested = append(nested, toNestedConfig(n))
	}

	pctx := &pluginapi.Context{
		HostRoot: hostRoot,
		Shared:   shared,
		Config:   pc.Values,
		Nested:   nested,
	}

	if err := manager.RegisterAs(ctx, key, p, pctx); err != nil {
		return nil, err
	}
	return p, nil
}

func toNestedConfig(pc *config.PluginConfig) pluginapi.NestedPluginConfig {
	nested := make([]pluginapi.NestedPluginConfig, 0, len(pc.Nested))
	for _, n := range pc.Nested {
		nested = append(nested, toNestedConfig(n))
	}
	return pluginapi.NestedPluginConfig{LibraryURI: pc.LibraryURI, Config: pc.Values, Nested: nested}
}
