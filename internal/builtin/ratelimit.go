package builtin

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// RateLimit throttles requests per client IP using a token bucket per
// key, keyed the same way a hand-rolled map[string]*bucket limiter would
// be, but backed by x/time/rate.Limiter instead of hand-rolled bucket
// arithmetic.
type RateLimit struct {
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// NewRateLimit is this plugin's pluginapi.Factory. Recognized config
// keys: "requestsPerSecond" (default 10), "burst" (default same as rate).
func NewRateLimit(raw map[string]string) (pluginapi.Plugin, error) {
	rps := intValue(raw, "requestsPerSecond", 10)
	burst := intValue(raw, "burst", rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		limiters: make(map[string]*limiterEntry),
	}, nil
}

func (r *RateLimit) Name() string { return "rate-limit" }

func (r *RateLimit) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (r *RateLimit) Shutdown(ctx context.Context) error { return nil }

func (r *RateLimit) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (r *RateLimit) keyFor(req *pluginapi.Request) string {
	host, _, err := net.SplitHostPort(req.HTTP.RemoteAddr)
	if err != nil {
		return req.HTTP.RemoteAddr
	}
	return host
}

func (r *RateLimit) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictIdleLocked()

	e, ok := r.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func (r *RateLimit) evictIdleLocked() {
	cutoff := time.Now().Add(-r.idleTTL)
	for k, e := range r.limiters {
		if e.lastUse.Before(cutoff) {
			delete(r.limiters, k)
		}
	}
}

func (r *RateLimit) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	key := r.keyFor(req)
	if !r.limiterFor(key).Allow() {
		return pluginapi.ActionRespond, textResponse(http.StatusTooManyRequests, "Too many requests"), nil
	}
	return pluginapi.ActionContinue, nil, nil
}

func (r *RateLimit) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}
