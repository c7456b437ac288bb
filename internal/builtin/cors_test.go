package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

func TestCORSPreflightRespondsWithAllowHeaders(t *testing.T) {
	p, err := NewCORS(map[string]string{"origins": "https://app.test"})
	require.NoError(t, err)
	c := p.(*CORS)

	httpReq := httptest.NewRequest(http.MethodOptions, "/a.html", nil)
	httpReq.Header.Set("Origin", "https://app.test")
	httpReq.Header.Set("Access-Control-Request-Method", "PUT")
	req := &pluginapi.Request{HTTP: httpReq, Metadata: make(map[string]string)}

	action, resp, err := c.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionRespond, action)
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.Equal(t, "https://app.test", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSDisallowedOriginGetsNoHeaders(t *testing.T) {
	p, err := NewCORS(map[string]string{"origins": "https://app.test"})
	require.NoError(t, err)
	c := p.(*CORS)

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	httpReq.Header.Set("Origin", "https://evil.test")
	req := &pluginapi.Request{HTTP: httpReq, Metadata: make(map[string]string)}

	action, _, err := c.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)

	resp := pluginapi.NewResponse(http.StatusOK)
	require.NoError(t, c.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSSimpleRequestStampsResponseHeaders(t *testing.T) {
	p, err := NewCORS(map[string]string{"origins": "*"})
	require.NoError(t, err)
	c := p.(*CORS)

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	httpReq.Header.Set("Origin", "https://app.test")
	req := &pluginapi.Request{HTTP: httpReq, Metadata: make(map[string]string)}

	action, _, err := c.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)

	resp := pluginapi.NewResponse(http.StatusOK)
	require.NoError(t, c.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
