package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

func TestWebSocketUpgradeIgnoresNonMatchingPath(t *testing.T) {
	p, err := NewWebSocketUpgrade(map[string]string{"path": "/ws"})
	require.NoError(t, err)
	w := p.(*WebSocketUpgrade)

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	req := &pluginapi.Request{HTTP: httpReq, CanonicalPath: "a.html"}

	action, _, err := w.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)
}

func TestWebSocketUpgradeIgnoresNonUpgradeRequest(t *testing.T) {
	p, err := NewWebSocketUpgrade(map[string]string{"path": "/ws"})
	require.NoError(t, err)
	w := p.(*WebSocketUpgrade)

	httpReq := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req := &pluginapi.Request{HTTP: httpReq, CanonicalPath: "ws"}

	action, _, err := w.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)
}

func TestWebSocketUpgradeWithoutResponseWriterInContextFails(t *testing.T) {
	p, err := NewWebSocketUpgrade(map[string]string{"path": "/ws"})
	require.NoError(t, err)
	w := p.(*WebSocketUpgrade)

	httpReq := httptest.NewRequest(http.MethodGet, "/ws", nil)
	httpReq.Header.Set("Connection", "Upgrade")
	httpReq.Header.Set("Upgrade", "websocket")
	httpReq.Header.Set("Sec-WebSocket-Version", "13")
	httpReq.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req := &pluginapi.Request{HTTP: httpReq, CanonicalPath: "ws"}

	action, resp, err := w.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionRespond, action)
	require.Equal(t, http.StatusUpgradeRequired, resp.Status)
}

func TestNewWebSocketUpgradeDefaultsPath(t *testing.T) {
	p, err := NewWebSocketUpgrade(nil)
	require.NoError(t, err)
	w := p.(*WebSocketUpgrade)
	require.Equal(t, "/ws", w.path)
}
