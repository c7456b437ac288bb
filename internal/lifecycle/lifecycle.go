// Package lifecycle supervises one running server generation: building
// the pipeline table from a ServerConfig, installing it on the HTTP
// front-end, and rebuilding it from scratch on SIGHUP or an HTTP reload
// trigger, always swapping the
// new table in only after it is fully built so a failed reload leaves
// the previous generation serving traffic.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pageloom/pageloom/internal/builtin"
	"github.com/pageloom/pageloom/internal/config"
	"github.com/pageloom/pageloom/internal/httpserver"
	"github.com/pageloom/pageloom/internal/pipeline"
	"github.com/pageloom/pageloom/internal/plugin"
	"github.com/pageloom/pageloom/internal/plugin/loader"
	"github.com/pageloom/pageloom/internal/pluginapi"
	"github.com/pageloom/pageloom/internal/sharedstate"
)

// Supervisor owns the config path, the current Manager generation, and
// the HTTP server whose routing table it keeps up to date.
type Supervisor struct {
	configPath string
	pluginDir  string
	server     *httpserver.Server
	logger     *slog.Logger

	mu          sync.Mutex
	manager     *plugin.Manager
	ld          *loader.Loader
	shared      *sharedstate.Store
	bindAddress string
	bindPort    int
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New builds a Supervisor for configPath, serving dynamic libraries from
// pluginDir in addition to the in-process built-in registry.
func New(configPath, pluginDir string, server *httpserver.Server, opts ...Option) *Supervisor {
	s := &Supervisor{
		configPath: configPath,
		pluginDir:  pluginDir,
		server:     server,
		logger:     slog.Default(),
		shared:     sharedstate.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs the initial config load and pipeline build, failing
// fast if either errors, then begins watching for SIGHUP in the
// background.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return fmt.Errorf("lifecycle: initial load: %w", err)
	}

	go s.watchSignals(ctx)
	return nil
}

// TriggerReload is the callback the reload-trigger built-in and SIGHUP
// handler both call. It never tears down the running generation until
// the replacement is fully built.
func (s *Supervisor) TriggerReload(ctx context.Context) error {
	return s.reload(ctx)
}

// BindAddr returns the host:port the most recently loaded configuration
// asked to listen on, valid only after Start has returned successfully.
func (s *Supervisor) BindAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s:%d", s.bindAddress, s.bindPort)
}

func (s *Supervisor) watchSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			s.logger.Info("reload triggered by SIGHUP")
			if err := s.reload(ctx); err != nil {
				s.logger.Error("reload failed, keeping previous pipeline", "err", err)
			}
		}
	}
}

// reload builds an entirely new Manager, pipeline set, and routing
// table from the on-disk configuration, only swapping it into the
// running server once every host pipeline is constructed. The previous
// generation's plugins are shut down only after the swap succeeds, so a
// config error or broken plugin never interrupts traffic.
func (s *Supervisor) reload(ctx context.Context) error {
	sc, err := config.Load(s.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s.mu.Lock()
	prevManager := s.manager
	s.mu.Unlock()

	manager := plugin.NewManager(plugin.WithLogger(s.logger))

	// ld is captured by the BuildSubPipeline closure below before it is
	// assigned; that's safe because the closure only runs later, when a
	// directory-scope plugin instance initializes, by which point ld
	// already holds the real *loader.Loader built on the next line.
	var ld *loader.Loader
	ld = loader.New(s.pluginDir, builtin.Registry(builtin.Hooks{
		TriggerReload: s.TriggerReload,
		BuildSubPipeline: func(ctx context.Context, nested []pluginapi.NestedPluginConfig) (builtin.SubPipeline, error) {
			return buildNestedPipeline(ctx, manager, ld, nested, s.shared)
		},
	}), loader.WithLogger(s.logger))

	hosts := make(map[string]*httpserver.HostPipeline, len(sc.Hosts))
	for _, hc := range sc.Hosts {
		p, err := buildPipeline(ctx, manager, ld, hc.Hostname, hc.Plugins, hc.HostRoot, sc, s.shared)
		if err != nil {
			return fmt.Errorf("host %q: %w", hc.Hostname, err)
		}
		hosts[hc.Hostname] = &httpserver.HostPipeline{Hostname: hc.Hostname, HostRoot: hc.HostRoot, Pipeline: p}
	}

	table := &httpserver.Table{
		Hosts:       hosts,
		Shared:      s.shared,
		BindAddress: sc.BindAddress,
		BindPort:    sc.BindPort,
	}
	s.server.SetTable(table)

	s.mu.Lock()
	s.manager = manager
	s.ld = ld
	s.bindAddress = sc.BindAddress
	s.bindPort = sc.BindPort
	s.mu.Unlock()

	if prevManager != nil {
		if err := prevManager.ShutdownAll(ctx); err != nil {
			s.logger.Warn("previous generation shutdown reported errors", "err", err)
		}
	}
	return nil
}
