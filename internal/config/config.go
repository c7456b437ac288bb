// Package config implements the Config Loader: materializing ServerConfig,
// HostConfig, and PluginConfig trees from an HTML document via the
// microdata extractor. The loader fails fast, before any socket is bound,
// on missing required fields, duplicate host names, and malformed plugin
// library URIs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pageloom/pageloom/internal/htmldoc"
	"github.com/pageloom/pageloom/internal/microdata"
)

// ErrInvalid wraps every fail-fast configuration error so callers can
// distinguish "config is wrong" from I/O or parse failures with errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// PluginConfig is a plugin library URI, its string-keyed configuration
// (unknown keys preserved and ignored, per the forward-compatibility
// contract), and an ordered list of nested PluginConfig for directory-
// scoped sub-pipelines.
type PluginConfig struct {
	LibraryURI string
	Name       string
	Values     map[string]string
	Nested     []*PluginConfig
}

// HostConfig is one virtual host: lowercased hostname, canonicalized
// document root, and its ordered plugin pipeline.
type HostConfig struct {
	Hostname string
	HostRoot string
	Plugins  []*PluginConfig
}

// ServerConfig is the root of one loaded configuration. Never mutated in
// place: reload builds a fresh instance and the caller swaps an atomic
// pointer to it.
type ServerConfig struct {
	BindAddress string
	BindPort    int
	Plugins     []*PluginConfig
	Hosts       []*HostConfig
}

// HostByName finds a HostConfig by its lowercased, port-stripped name.
func (sc *ServerConfig) HostByName(name string) (*HostConfig, bool) {
	name = NormalizeHostname(name)
	for _, h := range sc.Hosts {
		if h.Hostname == name {
			return h, true
		}
	}
	return nil, false
}

// NormalizeHostname lowercases name and strips a trailing :port.
func NormalizeHostname(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// Load reads and parses the configuration file at path.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	sc, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return sc, nil
}

// LoadBytes parses an in-memory HTML configuration document.
func LoadBytes(data []byte) (*ServerConfig, error) {
	doc, err := htmldoc.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	items := microdata.Extract(doc.Root)

	var serverItems []*microdata.Item
	var hostItems []*microdata.Item
	for _, it := range items {
		switch schemaName(it.Type) {
		case "ServerConfig":
			serverItems = append(serverItems, it)
		case "HostConfig":
			hostItems = append(hostItems, it)
		}
	}

	if len(serverItems) == 0 {
		return nil, fmt.Errorf("%w: no ServerConfig item found", ErrInvalid)
	}
	if len(serverItems) > 1 {
		return nil, fmt.Errorf("%w: more than one ServerConfig item found", ErrInvalid)
	}
	scItem := serverItems[0]

	bindAddr, ok := scItem.GetText("bindAddress")
	if !ok || bindAddr == "" {
		return nil, fmt.Errorf("%w: ServerConfig missing bindAddress", ErrInvalid)
	}
	bindPortText, ok := scItem.GetText("bindPort")
	if !ok || bindPortText == "" {
		return nil, fmt.Errorf("%w: ServerConfig missing bindPort", ErrInvalid)
	}
	bindPort, err := strconv.Atoi(strings.TrimSpace(bindPortText))
	if err != nil {
		return nil, fmt.Errorf("%w: ServerConfig bindPort %q is not a number", ErrInvalid, bindPortText)
	}

	sc := &ServerConfig{BindAddress: bindAddr, BindPort: bindPort}

	for _, pi := range scItem.AllItems("plugin") {
		pc, err := parsePlugin(pi)
		if err != nil {
			return nil, fmt.Errorf("server plugin: %w", err)
		}
		sc.Plugins = append(sc.Plugins, pc)
	}

	seen := make(map[string]bool, len(hostItems))
	for _, hi := range hostItems {
		hc, err := parseHost(hi)
		if err != nil {
			return nil, err
		}
		if seen[hc.Hostname] {
			return nil, fmt.Errorf("%w: duplicate hostname %q", ErrInvalid, hc.Hostname)
		}
		seen[hc.Hostname] = true
		sc.Hosts = append(sc.Hosts, hc)
	}

	return sc, nil
}

func parseHost(item *microdata.Item) (*HostConfig, error) {
	hostname, ok := item.GetText("hostname")
	if !ok || hostname == "" {
		return nil, fmt.Errorf("%w: HostConfig missing hostname", ErrInvalid)
	}
	rootText, ok := item.GetText("hostRoot")
	if !ok || rootText == "" {
		return nil, fmt.Errorf("%w: HostConfig %q missing hostRoot", ErrInvalid, hostname)
	}
	abs, err := filepath.Abs(rootText)
	if err != nil {
		return nil, fmt.Errorf("%w: HostConfig %q hostRoot: %v", ErrInvalid, hostname, err)
	}

	hc := &HostConfig{Hostname: NormalizeHostname(hostname), HostRoot: filepath.Clean(abs)}
	for _, pi := range item.AllItems("plugin") {
		pc, err := parsePlugin(pi)
		if err != nil {
			return nil, fmt.Errorf("host %q plugin: %w", hostname, err)
		}
		hc.Plugins = append(hc.Plugins, pc)
	}
	return hc, nil
}

func parsePlugin(item *microdata.Item) (*PluginConfig, error) {
	lib, ok := item.GetText("library")
	if !ok || lib == "" {
		return nil, fmt.Errorf("%w: plugin item missing library URI", ErrInvalid)
	}
	u, err := url.Parse(lib)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("%w: plugin library URI %q is not a resolvable file:// URL", ErrInvalid, lib)
	}

	pc := &PluginConfig{LibraryURI: lib, Values: make(map[string]string)}
	if name, ok := item.GetText("name"); ok {
		pc.Name = name
	}

	for key, vals := range item.Props {
		if key == "library" || key == "name" || key == "plugin" {
			continue
		}
		if len(vals) == 0 || vals[0].IsItem() {
			continue
		}
		// Unknown keys are preserved and ignored by the loader itself;
		// only the plugin that declares them interprets their meaning.
		pc.Values[key] = vals[0].Text
	}

	for _, pi := range item.AllItems("plugin") {
		nested, err := parsePlugin(pi)
		if err != nil {
			return nil, err
		}
		pc.Nested = append(pc.Nested, nested)
	}

	return pc, nil
}

// schemaName returns the last path/fragment segment of a schema type URI,
// e.g. "https://pageloom.dev/schema/ServerConfig" -> "ServerConfig". Bare
// type names pass through unchanged so test fixtures can skip full URIs.
func schemaName(uri string) string {
	if i := strings.LastIndexAny(uri, "/#"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
