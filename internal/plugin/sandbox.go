package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// ResourcePolicy bounds what an externally-loaded plugin instance may do:
// a request-handling rate limit and a per-call timeout, trimmed to the
// two dimensions that matter for a request-pipeline plugin (there is no
// DB/cache/HTTP surface to meter here). Built-ins never need this; it
// exists for the trust boundary around dynamically loaded, non-built-in
// plugins.
type ResourcePolicy struct {
	MaxCallsPerSecond float64
	CallTimeout       time.Duration
}

// DefaultResourcePolicy is deliberately conservative: plugins start with
// minimal access until an operator explicitly widens their policy.
func DefaultResourcePolicy() ResourcePolicy {
	return ResourcePolicy{MaxCallsPerSecond: 100, CallTimeout: 5 * time.Second}
}

type callDepthKey struct{}

// maxCallDepth bounds plugin-to-plugin metadata propagation loops.
const maxCallDepth = 10

// ErrCallDepthExceeded is returned when nested plugin invocation would
// exceed maxCallDepth.
var ErrCallDepthExceeded = fmt.Errorf("plugin call depth exceeded (max %d)", maxCallDepth)

func callDepth(ctx context.Context) int {
	if v, ok := ctx.Value(callDepthKey{}).(int); ok {
		return v
	}
	return 0
}

// WithIncrementedDepth returns a context carrying one more level of plugin
// nesting, and the new depth. Callers should reject the call if the
// returned depth exceeds maxCallDepth.
func WithIncrementedDepth(ctx context.Context) (context.Context, int) {
	depth := callDepth(ctx) + 1
	return context.WithValue(ctx, callDepthKey{}, depth), depth
}

// StatsSnapshot reports a sandboxed instance's observed usage, as returned
// by Sandbox.Stats.
type StatsSnapshot struct {
	Name          string
	CallsObserved int64
	Throttled     int64
}

// Sandbox wraps a pluginapi.Plugin with a rate limiter and call-depth
// guard. Construct one per externally-loaded instance; built-ins are
// registered directly with the Manager instead.
type Sandbox struct {
	inner  pluginapi.Plugin
	name   string
	policy ResourcePolicy
	lim    *rate.Limiter

	mu    sync.Mutex
	calls int64
	drops int64
}

// NewSandbox wraps inner with policy.
func NewSandbox(inner pluginapi.Plugin, policy ResourcePolicy) *Sandbox {
	burst := int(policy.MaxCallsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Sandbox{
		inner:  inner,
		name:   inner.Name(),
		policy: policy,
		lim:    rate.NewLimiter(rate.Limit(policy.MaxCallsPerSecond), burst),
	}
}

func (s *Sandbox) Name() string { return s.name }

func (s *Sandbox) Init(ctx context.Context, pctx *pluginapi.Context) error {
	return s.inner.Init(ctx, pctx)
}

func (s *Sandbox) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	if depth := callDepth(ctx); depth > maxCallDepth {
		return pluginapi.ActionError, nil, ErrCallDepthExceeded
	}

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if !s.lim.Allow() {
		s.mu.Lock()
		s.drops++
		s.mu.Unlock()
		resp := pluginapi.NewResponse(429)
		resp.Body = []byte("plugin rate limit exceeded")
		return pluginapi.ActionRespond, resp, nil
	}

	callCtx := ctx
	if s.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.policy.CallTimeout)
		defer cancel()
	}
	return s.inner.HandleRequest(callCtx, pctx, req)
}

func (s *Sandbox) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return s.inner.HandleResponse(ctx, pctx, req, resp)
}

func (s *Sandbox) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

// Policy satisfies pluginapi.PolicyAware by delegating to inner when it
// implements the interface, defaulting to "run on every response"
// otherwise.
func (s *Sandbox) Policy() pluginapi.Policy {
	if pa, ok := s.inner.(pluginapi.PolicyAware); ok {
		return pa.Policy()
	}
	return pluginapi.Policy{RunOnEveryResponse: true}
}

// Stats reports this instance's observed usage.
func (s *Sandbox) Stats() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{Name: s.name, CallsObserved: s.calls, Throttled: s.drops}
}
