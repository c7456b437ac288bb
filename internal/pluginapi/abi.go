package pluginapi

import "fmt"

// Factory is the single symbol a dynamic plugin library must export under
// the name SymbolFactory. It is pageloom's realization of the stable
// ABI boundary: instead of a hand-rolled C-linkage calling convention, the
// dynamic library is a Go plugin (-buildmode=plugin) exporting one
// constructor function. The stdlib plugin package resolves it by name and
// the loader calls it once per configured instance, exactly as
// plugin_create(keys, values, count) would.
//
// raw carries the plugin's string-keyed configuration, unknown keys
// preserved and ignored by the plugin itself (forward-compatibility, per
// the config loader's contract).
type Factory func(raw map[string]string) (Plugin, error)

// SymbolFactory is the exported identifier the loader looks up via
// plugin.Lookup after plugin.Open succeeds.
const SymbolFactory = "PageloomPlugin"

// ManifestSymbol identifies a plugin's self-description, looked up
// alongside SymbolFactory. It is optional; plugins that omit it are
// assumed to accept any configuration.
const ManifestSymbol = "PageloomManifest"

// Manifest is what a plugin may optionally export to self-describe,
// trimmed from a full application-plugin manifest down to what this
// pipeline needs: identity and declared configuration keys.
type Manifest struct {
	Name        string
	Version     string
	Description string

	// ConfigKeys lists the configuration keys this plugin recognizes.
	// Informational only: the config loader never rejects unknown keys.
	ConfigKeys []string
}

// LoadError wraps a failure to resolve or invoke a plugin library,
// distinguishing symbol-resolution failures from constructor failures so
// the loader can report which stage broke.
type LoadError struct {
	LibraryPath string
	Stage       string // "open", "lookup", "construct"
	Err         error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %s: %s: %v", e.LibraryPath, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
