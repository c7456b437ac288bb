// Package httpserver implements the HTTP Front-End: accepting connections,
// parsing the request, resolving which host's pipeline owns it by Host
// header, and invoking that pipeline. The router itself is a single
// gin.Engine behind an atomically-swappable host table, grounded on the
// teacher's dynamic-engine-behind-a-RWMutex pattern (internal/api's
// dynEngine/dynMu and its NoRoute catch-all), adapted from "route by YAML
// or plugin handler name" to "route by Host header to a per-host plugin
// pipeline".
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pageloom/pageloom/internal/builtin"
	"github.com/pageloom/pageloom/internal/pluginapi"
)

// HostPipeline pairs a resolved host's document root and shared context
// with the pipeline that serves it.
type HostPipeline struct {
	Hostname string
	HostRoot string
	Pipeline Pipeline
}

// Pipeline is the minimal surface Server needs from *pipeline.Pipeline,
// kept narrow to avoid an import cycle between httpserver and pipeline.
type Pipeline interface {
	Execute(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) *pluginapi.Response
}

// Table is the atomically-swapped routing table: every configured host's
// name, lowercased and port-stripped, to its pipeline.
type Table struct {
	Hosts       map[string]*HostPipeline
	Shared      pluginapi.SharedState
	BindAddress string
	BindPort    int
}

// Server wraps a gin.Engine whose single catch-all route loads the
// current Table and dispatches by Host header, same shape as the
// teacher's NoRoute-backed dynamic engine but without a second engine
// layer: pageloom's "route" is always "the current host's pipeline".
type Server struct {
	engine *gin.Engine
	http   *http.Server
	table  atomic.Pointer[Table]
	logger *slog.Logger

	mu       sync.Mutex
	draining bool
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server, serving whatever Table is installed
// via SetTable. The engine has no routes registered at construction; the
// very first request triggers host resolution against the current Table.
func New(opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	engine.NoRoute(s.handle)
	engine.NoMethod(s.handle)
	return s
}

// ServeHTTP lets Server stand in directly for its gin.Engine, useful for
// tests that want to exercise routing without a real listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// SetTable atomically installs a new routing table, the operation a
// reload performs once its new pipelines are fully built. In-flight
// requests keep running against whichever Table they already loaded;
// every request after the swap sees the new one, so no request ever
// observes a mix of old and new plugins.
func (s *Server) SetTable(t *Table) {
	s.table.Store(t)
}

func (s *Server) handle(c *gin.Context) {
	t := s.table.Load()
	if t == nil {
		c.Data(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("Service unavailable"))
		return
	}

	hostname := hostOnly(c.Request.Host)
	hp, ok := t.Hosts[hostname]
	if !ok {
		c.Data(http.StatusNotFound, "text/plain; charset=utf-8", []byte("Not found"))
		return
	}

	canonical := canonicalPath(c.Request.URL.Path)
	ctx := context.WithValue(c.Request.Context(), builtin.ResponseWriterKey, http.ResponseWriter(c.Writer))
	httpReq := c.Request.WithContext(ctx)

	requestID := c.Request.Header.Get(pluginapi.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	c.Writer.Header().Set(pluginapi.RequestIDHeader, requestID)

	req := &pluginapi.Request{
		HTTP:          httpReq,
		CanonicalPath: canonical,
		Host:          hostname,
		Metadata:      map[string]string{pluginapi.MetaRequestID: requestID},
	}
	pctx := &pluginapi.Context{
		ServerBindAddress: t.BindAddress,
		ServerBindPort:    t.BindPort,
		HostName:          hp.Hostname,
		HostRoot:          hp.HostRoot,
		Shared:            t.Shared,
	}

	resp := hp.Pipeline.Execute(ctx, pctx, req)
	writeResponse(c, resp)
}

func writeResponse(c *gin.Context, resp *pluginapi.Response) {
	if resp.Header.Get("X-Pageloom-Hijacked") == "true" {
		// The WebSocket-upgrade plugin already wrote the handshake and
		// took over the connection directly.
		return
	}
	for k, vals := range resp.Header {
		for _, v := range vals {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Data(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
}

// hostOnly lowercases host and strips a trailing :port.
func hostOnly(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}

// canonicalPath strips the leading slash and resolves "." and ".."
// segments so every handler downstream sees a document-root-rooted,
// traversal-free path.
func canonicalPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	segments := strings.Split(p, "/")
	var out []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return strings.Join(out, "/")
}

// Serve starts accepting connections on addr and blocks until the
// context is cancelled or ListenAndServe returns a non-shutdown error.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpserver: graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
