package builtin

import (
	"context"
	"log/slog"
	"time"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// AccessLog writes one structured log line per request, carrying the
// resolved username and the final response status.
type AccessLog struct {
	logger *slog.Logger
}

// NewAccessLog is this plugin's pluginapi.Factory.
func NewAccessLog(raw map[string]string) (pluginapi.Plugin, error) {
	return &AccessLog{logger: slog.Default()}, nil
}

func (a *AccessLog) Name() string { return "access-log" }

func (a *AccessLog) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (a *AccessLog) Shutdown(ctx context.Context) error { return nil }

func (a *AccessLog) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: true}
}

type accessLogStartKey struct{}

func (a *AccessLog) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	req.Metadata["_accessLogStart"] = time.Now().Format(time.RFC3339Nano)
	return pluginapi.ActionContinue, nil, nil
}

func (a *AccessLog) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	var elapsed time.Duration
	if raw, ok := req.Metadata["_accessLogStart"]; ok {
		if start, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			elapsed = time.Since(start)
		}
	}

	a.logger.Info("request",
		"method", req.HTTP.Method,
		"path", req.CanonicalPath,
		"host", req.Host,
		"status", resp.Status,
		"user", req.Metadata[pluginapi.MetaUser],
		"request_id", req.Metadata[pluginapi.MetaRequestID],
		"duration", elapsed.String(),
	)
	return nil
}
