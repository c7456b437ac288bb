package builtin

import (
	"context"

	"github.com/pageloom/pageloom/internal/plugin/loader"
	"github.com/pageloom/pageloom/internal/pluginapi"
)

// Hooks carries the callbacks built-ins need that only make sense above
// this package (building a nested pipeline, triggering a config reload).
// Registry wires these into the plugins that need them; every other
// built-in is self-contained and ignores Hooks entirely.
type Hooks struct {
	BuildSubPipeline SubPipelineBuilder
	TriggerReload    func(ctx context.Context) error
}

// Registry returns every built-in plugin's factory keyed by base name,
// ready to hand to loader.New. The key is the name a PluginConfig's
// library URI resolves to before any dynamic-library probing happens, so
// e.g. a host configured with library URI "basic-auth" gets this
// in-process implementation instead of a file lookup.
func Registry(hooks Hooks) loader.BuiltinRegistry {
	reg := loader.BuiltinRegistry{
		"selector-handler":  NewSelectorHandler,
		"file-handler":      NewFileHandler,
		"basic-auth":        NewBasicAuth,
		"authorization":     NewAuthorization,
		"oauth2-bearer":     NewOAuth2Bearer,
		"access-log":        NewAccessLog,
		"cors":              NewCORS,
		"compression":       NewCompression,
		"security-headers":  NewSecurityHeaders,
		"rate-limit":        NewRateLimit,
		"redirect":          NewRedirect,
		"health-check":      NewHealthCheck,
		"websocket-upgrade": NewWebSocketUpgrade,
		"error-handler":     NewErrorHandler,
	}
	if hooks.BuildSubPipeline != nil {
		reg["directory-scope"] = pluginapi.Factory(NewDirectoryScopeFactory(hooks.BuildSubPipeline))
	}
	if hooks.TriggerReload != nil {
		reg["reload-trigger"] = pluginapi.Factory(NewReloadTriggerFactory(hooks.TriggerReload))
	}
	return reg
}
