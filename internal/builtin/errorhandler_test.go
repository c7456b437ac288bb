package builtin

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

func TestErrorHandlerFallsBackToCanonicalBody(t *testing.T) {
	e, err := NewErrorHandler(nil)
	require.NoError(t, err)
	eh := e.(*ErrorHandler)
	require.NoError(t, eh.Init(context.Background(), &pluginapi.Context{}))

	resp := pluginapi.NewResponse(http.StatusNotFound)
	require.NoError(t, eh.HandleResponse(context.Background(), &pluginapi.Context{}, &pluginapi.Request{}, resp))
	require.Equal(t, "Not found", string(resp.Body))
}

func TestErrorHandlerUsesConfiguredPage(t *testing.T) {
	dir := t.TempDir()
	pagePath := filepath.Join(dir, "404.html")
	require.NoError(t, os.WriteFile(pagePath, []byte("<h1>custom 404</h1>"), 0o644))

	e, err := NewErrorHandler(map[string]string{"page.404": pagePath})
	require.NoError(t, err)
	eh := e.(*ErrorHandler)
	require.NoError(t, eh.Init(context.Background(), &pluginapi.Context{}))

	resp := pluginapi.NewResponse(http.StatusNotFound)
	require.NoError(t, eh.HandleResponse(context.Background(), &pluginapi.Context{}, &pluginapi.Request{}, resp))
	require.Equal(t, "<h1>custom 404</h1>", string(resp.Body))
}

func TestErrorHandlerIgnoresSuccessResponses(t *testing.T) {
	e, err := NewErrorHandler(nil)
	require.NoError(t, err)
	eh := e.(*ErrorHandler)
	require.NoError(t, eh.Init(context.Background(), &pluginapi.Context{}))

	resp := pluginapi.NewResponse(http.StatusOK)
	resp.Body = []byte("unchanged")
	require.NoError(t, eh.HandleResponse(context.Background(), &pluginapi.Context{}, &pluginapi.Request{}, resp))
	require.Equal(t, "unchanged", string(resp.Body))
}

func TestErrorHandlerInitFailsOnMissingPageFile(t *testing.T) {
	e, err := NewErrorHandler(map[string]string{"page.500": "/no/such/file.html"})
	require.NoError(t, err)
	eh := e.(*ErrorHandler)
	require.Error(t, eh.Init(context.Background(), &pluginapi.Context{}))
}
