package builtin

import (
	"bytes"
	"context"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// Compression gzip-encodes response bodies for clients that advertise
// support via Accept-Encoding, using klauspost/compress's gzip
// implementation for its faster encoder rather than the stdlib package.
type Compression struct {
	level     int
	minLength int
}

// NewCompression is this plugin's pluginapi.Factory. Recognized config
// keys: "level" (1-9, default gzip.DefaultCompression), "minLength"
// (bytes, default 256 — bodies smaller than this are not worth the
// framing overhead).
func NewCompression(raw map[string]string) (pluginapi.Plugin, error) {
	level := intValue(raw, "level", gzip.DefaultCompression)
	minLength := intValue(raw, "minLength", 256)
	return &Compression{level: level, minLength: minLength}, nil
}

func (c *Compression) Name() string { return "compression" }

func (c *Compression) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (c *Compression) Shutdown(ctx context.Context) error { return nil }

func (c *Compression) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: true}
}

func (c *Compression) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	return pluginapi.ActionContinue, nil, nil
}

func (c *Compression) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	if len(resp.Body) < c.minLength {
		return nil
	}
	if resp.Header.Get("Content-Encoding") != "" {
		return nil
	}
	if !strings.Contains(req.HTTP.Header.Get("Accept-Encoding"), "gzip") {
		return nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return err
	}
	if _, err := w.Write(resp.Body); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	resp.Body = buf.Bytes()
	resp.Header.Set("Content-Encoding", "gzip")
	resp.Header.Set("Vary", "Accept-Encoding")
	return nil
}
