package builtin

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

func TestAccessLogRecordsRequestAndResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a := &AccessLog{logger: logger}

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	req := &pluginapi.Request{HTTP: httpReq, CanonicalPath: "a.html", Host: "example.com", Metadata: map[string]string{pluginapi.MetaUser: "alice", pluginapi.MetaRequestID: "req-123"}}

	action, _, err := a.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)
	require.Contains(t, req.Metadata, "_accessLogStart")

	resp := pluginapi.NewResponse(http.StatusOK)
	require.NoError(t, a.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))

	out := buf.String()
	require.True(t, strings.Contains(out, "method=GET"))
	require.True(t, strings.Contains(out, "path=a.html"))
	require.True(t, strings.Contains(out, "user=alice"))
	require.True(t, strings.Contains(out, "status=200"))
	require.True(t, strings.Contains(out, "request_id=req-123"))
}

func TestAccessLogHandlesMissingStartTime(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a := &AccessLog{logger: logger}

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	req := &pluginapi.Request{HTTP: httpReq, Metadata: make(map[string]string)}
	resp := pluginapi.NewResponse(http.StatusOK)

	require.NoError(t, a.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))
	require.Contains(t, buf.String(), "status=200")
}
