package builtin

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

func newCompressionReq(t *testing.T, acceptEncoding string) *pluginapi.Request {
	t.Helper()
	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	if acceptEncoding != "" {
		httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	}
	return &pluginapi.Request{HTTP: httpReq}
}

func TestCompressionEncodesLargeBodyWhenAccepted(t *testing.T) {
	p, err := NewCompression(map[string]string{"minLength": "4"})
	require.NoError(t, err)
	c := p.(*Compression)

	req := newCompressionReq(t, "gzip, deflate")
	body := strings.Repeat("hello world ", 50)
	resp := pluginapi.NewResponse(http.StatusOK)
	resp.Body = []byte(body)

	require.NoError(t, c.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	require.Equal(t, "Accept-Encoding", resp.Header.Get("Vary"))

	r, err := gzip.NewReader(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, body, string(decoded))
}

func TestCompressionSkipsSmallBody(t *testing.T) {
	p, err := NewCompression(nil)
	require.NoError(t, err)
	c := p.(*Compression)

	req := newCompressionReq(t, "gzip")
	resp := pluginapi.NewResponse(http.StatusOK)
	resp.Body = []byte("tiny")

	require.NoError(t, c.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))
	require.Empty(t, resp.Header.Get("Content-Encoding"))
	require.Equal(t, "tiny", string(resp.Body))
}

func TestCompressionSkipsWithoutAcceptEncoding(t *testing.T) {
	p, err := NewCompression(map[string]string{"minLength": "1"})
	require.NoError(t, err)
	c := p.(*Compression)

	req := newCompressionReq(t, "")
	resp := pluginapi.NewResponse(http.StatusOK)
	resp.Body = []byte(strings.Repeat("x", 100))

	require.NoError(t, c.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))
	require.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestCompressionSkipsAlreadyEncoded(t *testing.T) {
	p, err := NewCompression(map[string]string{"minLength": "1"})
	require.NoError(t, err)
	c := p.(*Compression)

	req := newCompressionReq(t, "gzip")
	resp := pluginapi.NewResponse(http.StatusOK)
	resp.Body = []byte(strings.Repeat("x", 100))
	resp.Header.Set("Content-Encoding", "identity")

	require.NoError(t, c.HandleResponse(context.Background(), &pluginapi.Context{}, req, resp))
	require.Equal(t, "identity", resp.Header.Get("Content-Encoding"))
}
