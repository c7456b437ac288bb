package builtin

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// WebSocketUpgrade detects a WebSocket handshake on a configured path and
// echoes frames back on the upgraded connection, giving a host a minimal
// bidirectional channel without a separate server process. Grounded on
// gorilla/websocket, already in the dependency set.
type WebSocketUpgrade struct {
	path     string
	upgrader websocket.Upgrader
}

// NewWebSocketUpgrade is this plugin's pluginapi.Factory. Recognized
// config keys: "path" (default "/ws").
func NewWebSocketUpgrade(raw map[string]string) (pluginapi.Plugin, error) {
	path := raw["path"]
	if path == "" {
		path = "/ws"
	}
	return &WebSocketUpgrade{
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

func (w *WebSocketUpgrade) Name() string { return "websocket-upgrade" }

func (w *WebSocketUpgrade) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (w *WebSocketUpgrade) Shutdown(ctx context.Context) error { return nil }

func (w *WebSocketUpgrade) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (w *WebSocketUpgrade) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	if req.CanonicalPath != strings.TrimPrefix(w.path, "/") && req.CanonicalPath != w.path {
		return pluginapi.ActionContinue, nil, nil
	}
	if !websocket.IsWebSocketUpgrade(req.HTTP) {
		return pluginapi.ActionContinue, nil, nil
	}

	rw, ok := req.HTTP.Context().Value(responseWriterKey{}).(http.ResponseWriter)
	if !ok {
		return pluginapi.ActionRespond, textResponse(http.StatusUpgradeRequired, "WebSocket upgrade required"), nil
	}

	conn, err := w.upgrader.Upgrade(rw, req.HTTP, nil)
	if err != nil {
		return pluginapi.ActionRespond, textResponse(http.StatusBadRequest, "Upgrade failed"), nil
	}
	go echoLoop(conn)

	// The upgrade already wrote the handshake response directly to the
	// wire; the pipeline's own response writing is a no-op for this
	// request, signalled with an empty 101 placeholder.
	resp := pluginapi.NewResponse(http.StatusSwitchingProtocols)
	resp.Header.Set("X-Pageloom-Hijacked", "true")
	return pluginapi.ActionRespond, resp, nil
}

func (w *WebSocketUpgrade) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}

// responseWriterKey is the context key the HTTP front-end uses to thread
// the raw http.ResponseWriter through to plugins that need to hijack the
// connection themselves, since pluginapi.Request only carries *http.Request.
type responseWriterKey struct{}

// ResponseWriterKey exposes responseWriterKey to internal/httpserver so it
// can stash the ResponseWriter on the request context before invoking the
// pipeline.
var ResponseWriterKey = responseWriterKey{}

func echoLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}
