package builtin

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// HealthCheck answers a configured path with 200 OK without touching the
// filesystem, short-circuiting the pipeline before the file or selector
// handler ever runs. In verbose mode it also reports whatever other
// plugins have published into the host's shared state, giving operators
// a stats/introspection endpoint without a dedicated metrics stack.
//
// Because it sits in every host's pipeline, it is also the natural place
// to observe request/response counts and durations: it records one
// sample per request (labeled by host and final status) and answers a
// second configured path with the resulting Prometheus exposition text.
type HealthCheck struct {
	path        string
	metricsPath string
	verbose     bool
}

// NewHealthCheck is this plugin's pluginapi.Factory. Recognized config
// keys: "path" (default "/healthz"), "verbose" (bool, default false),
// "metricsPath" (default "/metrics").
func NewHealthCheck(raw map[string]string) (pluginapi.Plugin, error) {
	path := raw["path"]
	if path == "" {
		path = "/healthz"
	}
	metricsPath := raw["metricsPath"]
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &HealthCheck{path: path, metricsPath: metricsPath, verbose: boolValue(raw, "verbose", false)}, nil
}

func (h *HealthCheck) Name() string { return "health-check" }

func (h *HealthCheck) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (h *HealthCheck) Shutdown(ctx context.Context) error { return nil }

// Policy runs on every response, not just its own, so request counts and
// durations cover the whole pipeline rather than only hits on its own
// paths.
func (h *HealthCheck) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: true}
}

func (h *HealthCheck) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	req.Metadata["_healthCheckStart"] = strconv.FormatInt(time.Now().UnixNano(), 10)

	if matchesPath(req.CanonicalPath, h.metricsPath) {
		return pluginapi.ActionRespond, h.serveMetrics(req), nil
	}

	if !matchesPath(req.CanonicalPath, h.path) {
		return pluginapi.ActionContinue, nil, nil
	}

	if !h.verbose || pctx.Shared == nil {
		return pluginapi.ActionRespond, textResponse(http.StatusOK, "OK"), nil
	}

	var b strings.Builder
	b.WriteString("OK\n")
	keys := pctx.Shared.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := pctx.Shared.Get(k)
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return pluginapi.ActionRespond, textResponse(http.StatusOK, b.String()), nil
}

func (h *HealthCheck) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	raw, ok := req.Metadata["_healthCheckStart"]
	if !ok {
		return nil
	}
	startNanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	elapsed := time.Duration(time.Now().UnixNano() - startNanos)
	globalPipelineMetrics().observe(req.Host, resp.Status, elapsed)
	return nil
}

// serveMetrics renders the default Prometheus registry's exposition text
// through the same request/response shape every other plugin uses, so
// the metrics endpoint is just another pipeline response rather than a
// separate listener.
func (h *HealthCheck) serveMetrics(req *pluginapi.Request) *pluginapi.Response {
	rec := newResponseRecorder()
	promhttp.Handler().ServeHTTP(rec, req.HTTP)
	resp := pluginapi.NewResponse(rec.status)
	for k, vals := range rec.header {
		for _, v := range vals {
			resp.Header.Add(k, v)
		}
	}
	resp.Body = rec.body
	return resp
}

func matchesPath(canonical, configured string) bool {
	return canonical == strings.TrimPrefix(configured, "/") || canonical == configured
}

// responseRecorder is a minimal http.ResponseWriter, enough for
// promhttp.Handler to write into without depending on net/http/httptest
// from production code.
type responseRecorder struct {
	status int
	header http.Header
	body   []byte
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{status: http.StatusOK, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

// pipelineMetrics holds the Prometheus instruments health-check updates
// on every response. Registered once per process via promauto, mirroring
// the teacher's sync.Once-guarded metrics singletons.
type pipelineMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetricsInst *pipelineMetrics
)

func globalPipelineMetrics() *pipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetricsInst = &pipelineMetrics{
			requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pageloom",
				Subsystem: "pipeline",
				Name:      "requests_total",
				Help:      "Requests served, labeled by host and response status",
			}, []string{"host", "status"}),
			requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pageloom",
				Subsystem: "pipeline",
				Name:      "request_duration_seconds",
				Help:      "Pipeline execution duration per host",
				Buckets:   prometheus.DefBuckets,
			}, []string{"host"}),
		}
	})
	return pipelineMetricsInst
}

func (m *pipelineMetrics) observe(host string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}
