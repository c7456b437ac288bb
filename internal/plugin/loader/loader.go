// Package loader implements plugin resolution: turning a PluginConfig's
// library URI into a live pluginapi.Plugin instance, either from the
// in-process built-in registry or by opening a dynamic library via the
// standard library's plugin package. It also watches the plugin directory
// with fsnotify so a hot reload can detect a changed library.
package loader

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"plugin"
	"runtime"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	pluginpkg "github.com/pageloom/pageloom/internal/plugin"
	"github.com/pageloom/pageloom/internal/pluginapi"
)

// BuiltinRegistry maps a plugin's base name (the library URI's path
// component, minus directory and extension) to the in-process factory
// that constructs it. Built-ins are a pure in-process implementation of
// the same Plugin contract a dynamically loaded library satisfies.
type BuiltinRegistry map[string]pluginapi.Factory

// Loader resolves plugin library URIs to instances and keeps opened
// dynamic libraries resident as long as any instance from them exists.
// The Go runtime itself never actually unloads a plugin .so, so this
// cache mainly avoids repeat Open calls and gives reload a single place
// to reason about "still in use".
type Loader struct {
	dir      string
	builtins BuiltinRegistry
	logger   *slog.Logger
	sandbox  pluginpkg.ResourcePolicy

	mu   sync.Mutex
	libs map[string]*plugin.Plugin // resolved path -> opened library

	watcher  *fsnotify.Watcher
	onChange func(path string)
}

// Option configures a Loader at construction.
type Option func(*Loader)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithChangeHandler registers a callback invoked with the changed file's
// path whenever WatchDir observes a create/write/remove event in dir.
// internal/lifecycle registers no handler and never calls WatchDir, so
// a running server does not reload on plugin-directory changes.
func WithChangeHandler(fn func(path string)) Option {
	return func(ld *Loader) { ld.onChange = fn }
}

// WithResourcePolicy overrides the ResourcePolicy every dynamically
// loaded (non-builtin) instance is sandboxed under. Built-ins are never
// wrapped, since they are trusted in-process code.
func WithResourcePolicy(policy pluginpkg.ResourcePolicy) Option {
	return func(ld *Loader) { ld.sandbox = policy }
}

// New returns a Loader that probes dir for dynamic libraries and
// recognizes the names in builtins before ever touching the filesystem.
func New(dir string, builtins BuiltinRegistry, opts ...Option) *Loader {
	ld := &Loader{
		dir:      dir,
		builtins: builtins,
		logger:   slog.Default(),
		sandbox:  pluginpkg.DefaultResourcePolicy(),
		libs:     make(map[string]*plugin.Plugin),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load resolves libraryURI and constructs an instance with raw as its
// configuration. Built-ins are checked first by base name; anything else
// is treated as a dynamic library path, probed with the platform's shared
// library suffix if libraryURI has no extension.
func (l *Loader) Load(libraryURI string, raw map[string]string) (pluginapi.Plugin, error) {
	base := baseName(libraryURI)
	if factory, ok := l.builtins[base]; ok {
		p, err := factory(raw)
		if err != nil {
			return nil, fmt.Errorf("builtin plugin %q: %w", base, err)
		}
		return p, nil
	}

	path, err := l.resolvePath(libraryURI)
	if err != nil {
		return nil, err
	}

	lib, err := l.openLibrary(path)
	if err != nil {
		return nil, err
	}

	sym, err := lib.Lookup(pluginapi.SymbolFactory)
	if err != nil {
		return nil, &pluginapi.LoadError{LibraryPath: path, Stage: "lookup", Err: err}
	}
	factory, ok := sym.(pluginapi.Factory)
	if !ok {
		return nil, &pluginapi.LoadError{
			LibraryPath: path,
			Stage:       "lookup",
			Err:         fmt.Errorf("symbol %s has unexpected type", pluginapi.SymbolFactory),
		}
	}

	p, err := factory(raw)
	if err != nil {
		return nil, &pluginapi.LoadError{LibraryPath: path, Stage: "construct", Err: err}
	}
	return pluginpkg.NewSandbox(p, l.sandbox), nil
}

// openLibrary opens path once, caching the handle, matching the "keep
// resident" lifetime invariant.
func (l *Loader) openLibrary(path string) (*plugin.Plugin, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lib, ok := l.libs[path]; ok {
		return lib, nil
	}

	lib, err := plugin.Open(path)
	if err != nil {
		return nil, &pluginapi.LoadError{LibraryPath: path, Stage: "open", Err: err}
	}
	l.libs[path] = lib
	return lib, nil
}

// platformSuffixes are the dynamic library extensions to probe, in order,
// for a library URI with no explicit extension.
func platformSuffixes() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{".dylib", ".so"}
	case "windows":
		return []string{".dll"}
	default:
		return []string{".so"}
	}
}

// resolvePath turns a file:// library URI into a filesystem path,
// probing platformSuffixes() under l.dir when the URI has no extension.
func (l *Loader) resolvePath(libraryURI string) (string, error) {
	u, err := url.Parse(libraryURI)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("plugin library URI %q is not a file:// URL", libraryURI)
	}

	p := u.Path
	if filepath.Ext(p) != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(l.dir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("plugin library %q: %w", p, err)
		}
		return p, nil
	}

	base := filepath.Base(p)
	for _, suffix := range platformSuffixes() {
		candidate := filepath.Join(l.dir, base+suffix)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("plugin %q: no library found under %s with a recognized suffix", base, l.dir)
}

func baseName(libraryURI string) string {
	u, err := url.Parse(libraryURI)
	path := libraryURI
	if err == nil && u.Path != "" {
		path = u.Path
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// WatchDir starts an fsnotify watch on the plugin directory. Events are
// forwarded to the onChange callback, if one was registered. Call Close
// to stop watching.
func (l *Loader) WatchDir() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("loader: start watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return fmt.Errorf("loader: watch %s: %w", l.dir, err)
	}
	l.watcher = w
	go l.watchLoop(w)
	return nil
}

func (l *Loader) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			l.handleFSEvent(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Warn("plugin directory watch error", "err", err)
		}
	}
}

func (l *Loader) handleFSEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	l.logger.Info("plugin directory change observed", "path", event.Name, "op", event.Op.String())
	if l.onChange != nil {
		l.onChange(event.Name)
	}
}

// Close stops the directory watch, if one was started.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
