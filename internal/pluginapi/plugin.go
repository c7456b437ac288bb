// Package pluginapi defines the contracts shared by every plugin that can
// run inside a pageloom pipeline, whether it is linked in as a built-in or
// loaded at runtime from a dynamic library.
//
// Built-ins implement the Plugin interface directly and are registered
// in-process. Externally-loaded plugins are adapted to the same interface
// by internal/plugin/loader, which opens the library as a Go plugin
// (-buildmode=plugin), calls its exported SymbolFactory constructor and
// wraps the instance so the pipeline never has to tell the two apart.
package pluginapi

import (
	"context"
	"net/http"
)

// Action reports what a plugin wants the pipeline to do after a call.
type Action int

const (
	// ActionContinue lets the next plugin in the phase run.
	ActionContinue Action = iota
	// ActionRespond short-circuits the request phase with Response.
	ActionRespond
	// ActionError aborts the request with an unexpected-error response.
	ActionError
)

// Request wraps the parsed HTTP request with the fields the pipeline adds:
// the canonical, document-root-rooted path, the request-scoped metadata map,
// and the resolved host name. A Request is owned by the pipeline for the
// duration of one request and must not be retained past it.
type Request struct {
	HTTP *http.Request

	// CanonicalPath is document-root-rooted and ".."-free.
	CanonicalPath string

	// Host is the lowercased, port-stripped Host header used to select the
	// HostConfig this request is running against.
	Host string

	// Metadata is shared by every plugin in both phases of this request.
	// Conventional keys: MetaUser, MetaRoles.
	Metadata map[string]string

	// Body is the request body, read lazily by whichever plugin needs it
	// (the selector handler and file handler PUT/POST paths). It is not
	// duplicated for plugins that do not read it.
	Body     []byte
	bodyRead bool
}

// Conventional metadata keys. Authentication plugins write MetaUser and
// MetaRoles; authorization and logging read them. MetaRequestID is
// stamped by the HTTP front-end before the pipeline ever runs.
const (
	MetaUser      = "pageloom.user"
	MetaRoles     = "pageloom.roles"
	MetaRequestID = "pageloom.requestID"
)

// RequestIDHeader is the header pageloom reads an inbound correlation ID
// from, and echoes back on the response, so a request ID survives a hop
// across service boundaries rather than resetting at pageloom's edge.
const RequestIDHeader = "X-Request-ID"

// Response is the outgoing response a plugin produces or mutates.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse builds a Response with an initialized header map.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// Context carries read-only references every plugin call receives: server
// and host configuration, their document roots, and the shared-state map
// scoped to the whole server. It is passed by shared reference, never
// copied, so plugins must treat it as read-only aside from SharedState.
type Context struct {
	ServerBindAddress string
	ServerBindPort    int
	HostName          string
	HostRoot          string

	// Shared is the server-wide read-mostly key/value store plugins use to
	// publish and read values across requests and across plugin instances.
	Shared SharedState

	// Config is this plugin instance's own typed configuration, the
	// string-keyed map produced by the config loader from its microdata
	// Item. Nested plugin configs are carried separately in Nested.
	Config map[string]string

	// Nested holds configuration for any sub-pipeline this plugin instance
	// owns (the directory-scope plugin is the only built-in that uses this).
	Nested []NestedPluginConfig
}

// NestedPluginConfig is a PluginConfig belonging to a directory-scoped
// sub-pipeline, carried through to the plugin that owns it.
type NestedPluginConfig struct {
	LibraryURI string
	Config     map[string]string
	Nested     []NestedPluginConfig
}

// SharedState is the server-wide, read-mostly key/value store plugins use
// to communicate across requests. Implemented by internal/sharedstate.
type SharedState interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Keys() []string
}

// Plugin is the contract every request-pipeline participant satisfies.
// Built-ins implement it directly; internal/plugin/loader adapts dynamic
// libraries to it.
type Plugin interface {
	// Name returns the plugin's stable identifier, used in logs and in
	// authorization/route matching.
	Name() string

	// Init prepares the plugin instance with its typed configuration.
	// Called once per instance, before it serves any request.
	Init(ctx context.Context, pctx *Context) error

	// HandleRequest runs in the request phase. It may read or mutate
	// req.Metadata. Returning ActionRespond means resp is the final
	// response for this request; later request-phase plugins do not run.
	HandleRequest(ctx context.Context, pctx *Context, req *Request) (Action, *Response, error)

	// HandleResponse runs in the response phase. It may observe or mutate
	// resp in place. Plugins that only care about certain statuses check
	// resp.Status themselves; the pipeline decides whether to invoke it
	// from the plugin's Policy (see PolicyAware).
	HandleResponse(ctx context.Context, pctx *Context, req *Request, resp *Response) error

	// Shutdown releases any resources the instance holds. Called exactly
	// once, on reload or process teardown.
	Shutdown(ctx context.Context) error
}

// Policy describes a plugin's participation rules beyond the Plugin
// interface itself: whether it runs on every response, including
// short-circuited ones, or only on error responses.
type Policy struct {
	// RunOnEveryResponse is true for plugins like access-log, compression,
	// security-headers, and CORS that must observe every outgoing response.
	RunOnEveryResponse bool

	// ErrorsOnly is true for the error-handler plugin, which only runs
	// when resp.Status is 4xx or 5xx.
	ErrorsOnly bool
}

// PolicyAware is implemented by plugins that need non-default response
// phase participation. Plugins that don't implement it default to running
// on every response.
type PolicyAware interface {
	Policy() Policy
}
