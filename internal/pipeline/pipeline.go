// Package pipeline implements the Plugin Pipeline: ordered request-phase
// plugins (the first to respond short-circuits), then a response phase
// that observes or mutates the outgoing response. Directory-scoped nested
// pipelines need no special engine support: the directory-scope built-in
// is itself a pluginapi.Plugin that owns and runs its own *Pipeline
// internally, so a short-circuit inside it surfaces as an ordinary
// ActionRespond from the outer pipeline's point of view.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// Pipeline is the ordered list of plugins applied to one host's requests
// (or one directory-scope plugin's sub-pipeline).
type Pipeline struct {
	name    string
	plugins []pluginapi.Plugin
	logger  *slog.Logger
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a Pipeline over plugins, run in the given order for both
// phases. Response-phase order matching request-phase order is a
// deliberate choice: later plugins observe a response already shaped by
// earlier ones in both directions, which keeps access-log (typically
// last) seeing what every other plugin decided.
func New(name string, plugins []pluginapi.Plugin, opts ...Option) *Pipeline {
	p := &Pipeline{name: name, plugins: plugins, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plugins returns the ordered plugin list, for introspection and reload
// bookkeeping.
func (p *Pipeline) Plugins() []pluginapi.Plugin { return p.plugins }

// Execute runs the full request/response cycle and returns the final
// response. It never panics on a plugin error: an unexpected plugin error
// is logged and turned into a 500.
func (p *Pipeline) Execute(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) *pluginapi.Response {
	resp := p.runRequestPhase(ctx, pctx, req)
	p.runResponsePhase(ctx, pctx, req, resp)
	return resp
}

func (p *Pipeline) runRequestPhase(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) *pluginapi.Response {
	for _, plugin := range p.plugins {
		action, resp, err := plugin.HandleRequest(ctx, pctx, req)
		if err != nil {
			p.logger.Error("plugin request-phase error", "plugin", plugin.Name(), "pipeline", p.name, "err", err)
			return errorResponse(http.StatusInternalServerError)
		}
		switch action {
		case pluginapi.ActionRespond:
			if resp == nil {
				resp = errorResponse(http.StatusInternalServerError)
			}
			return resp
		case pluginapi.ActionError:
			return errorResponse(http.StatusInternalServerError)
		case pluginapi.ActionContinue:
			// fall through to next plugin
		}
	}
	return errorResponse(http.StatusNotFound)
}

func (p *Pipeline) runResponsePhase(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) {
	for _, plugin := range p.plugins {
		if !participatesInResponsePhase(plugin, resp) {
			continue
		}
		if err := plugin.HandleResponse(ctx, pctx, req, resp); err != nil {
			p.logger.Error("plugin response-phase error", "plugin", plugin.Name(), "pipeline", p.name, "err", err)
		}
	}
}

func participatesInResponsePhase(plugin pluginapi.Plugin, resp *pluginapi.Response) bool {
	pa, ok := plugin.(pluginapi.PolicyAware)
	if !ok {
		return true
	}
	policy := pa.Policy()
	if policy.ErrorsOnly {
		return resp.Status >= 400
	}
	return policy.RunOnEveryResponse
}

func errorResponse(status int) *pluginapi.Response {
	resp := pluginapi.NewResponse(status)
	resp.Body = []byte(http.StatusText(status))
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}

// Shutdown tears down every plugin instance in reverse registration order.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(p.plugins) - 1; i >= 0; i-- {
		if err := p.plugins[i].Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
