package builtin

import (
	"context"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// SecurityHeaders stamps a fixed set of defensive response headers as a
// response-phase pipeline plugin instead of gin middleware.
type SecurityHeaders struct {
	frameOptions   string
	contentType    string
	referrerPolicy string
	hsts           string
}

// NewSecurityHeaders is this plugin's pluginapi.Factory. Recognized
// config keys: "frameOptions" (default "DENY"), "referrerPolicy" (default
// "strict-origin-when-cross-origin"), "hsts" (default
// "max-age=63072000; includeSubDomains").
func NewSecurityHeaders(raw map[string]string) (pluginapi.Plugin, error) {
	frameOptions := raw["frameOptions"]
	if frameOptions == "" {
		frameOptions = "DENY"
	}
	referrerPolicy := raw["referrerPolicy"]
	if referrerPolicy == "" {
		referrerPolicy = "strict-origin-when-cross-origin"
	}
	hsts := raw["hsts"]
	if hsts == "" {
		hsts = "max-age=63072000; includeSubDomains"
	}
	return &SecurityHeaders{
		frameOptions:   frameOptions,
		contentType:    "nosniff",
		referrerPolicy: referrerPolicy,
		hsts:           hsts,
	}, nil
}

func (s *SecurityHeaders) Name() string { return "security-headers" }

func (s *SecurityHeaders) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (s *SecurityHeaders) Shutdown(ctx context.Context) error { return nil }

func (s *SecurityHeaders) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: true}
}

func (s *SecurityHeaders) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	return pluginapi.ActionContinue, nil, nil
}

func (s *SecurityHeaders) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	resp.Header.Set("X-Frame-Options", s.frameOptions)
	resp.Header.Set("X-Content-Type-Options", s.contentType)
	resp.Header.Set("Referrer-Policy", s.referrerPolicy)
	resp.Header.Set("Strict-Transport-Security", s.hsts)
	return nil
}
