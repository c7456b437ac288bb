package builtin

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// CORS adds Cross-Origin Resource Sharing headers and answers preflight
// OPTIONS requests directly, following the header set gin-contrib/cors
// produces, reimplemented against the Response header map since a
// pipeline plugin has no gin.Context to hand that package.
type CORS struct {
	origins    []string
	methods    string
	headers    string
	credential bool
	maxAge     string
}

// NewCORS is this plugin's pluginapi.Factory. Recognized config keys:
// "origins" (space-separated, default "*"), "methods" (default
// "GET, POST, PUT, DELETE, OPTIONS"), "headers" (default
// "Content-Type, Authorization, Range"), "credentials" (bool, default
// false), "maxAge" (seconds, default 600).
func NewCORS(raw map[string]string) (pluginapi.Plugin, error) {
	origins := strings.Fields(raw["origins"])
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := raw["methods"]
	if methods == "" {
		methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	headers := raw["headers"]
	if headers == "" {
		headers = "Content-Type, Authorization, Range"
	}
	return &CORS{
		origins:    origins,
		methods:    methods,
		headers:    headers,
		credential: boolValue(raw, "credentials", false),
		maxAge:     strconv.Itoa(intValue(raw, "maxAge", 600)),
	}, nil
}

func (c *CORS) Name() string { return "cors" }

func (c *CORS) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (c *CORS) Shutdown(ctx context.Context) error { return nil }

func (c *CORS) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: true}
}

func (c *CORS) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, o := range c.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			if o == "*" && !c.credential {
				return "*"
			}
			return origin
		}
	}
	return ""
}

func (c *CORS) applyHeaders(h http.Header, origin string) {
	allowed := c.allowedOrigin(origin)
	if allowed == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowed)
	h.Set("Vary", "Origin")
	if c.credential {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (c *CORS) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	origin := req.HTTP.Header.Get("Origin")
	if origin == "" {
		return pluginapi.ActionContinue, nil, nil
	}

	if req.HTTP.Method == http.MethodOptions && req.HTTP.Header.Get("Access-Control-Request-Method") != "" {
		resp := pluginapi.NewResponse(http.StatusNoContent)
		c.applyHeaders(resp.Header, origin)
		resp.Header.Set("Access-Control-Allow-Methods", c.methods)
		resp.Header.Set("Access-Control-Allow-Headers", c.headers)
		resp.Header.Set("Access-Control-Max-Age", c.maxAge)
		return pluginapi.ActionRespond, resp, nil
	}

	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	req.Metadata["_corsOrigin"] = origin
	return pluginapi.ActionContinue, nil, nil
}

func (c *CORS) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	if origin := req.Metadata["_corsOrigin"]; origin != "" {
		c.applyHeaders(resp.Header, origin)
	}
	return nil
}
