// Command pageloom runs the HTTP server described by a pageloom
// configuration document: binding the configured address, resolving
// each virtual host's plugin pipeline, and serving requests until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pageloom/pageloom/internal/httpserver"
	"github.com/pageloom/pageloom/internal/lifecycle"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pageloom:", err)
		os.Exit(1)
	}
}

func run() error {
	verbose := flag.Bool("v", false, "enable debug logging")
	pluginDir := flag.String("plugins", "", "directory dynamic plugin libraries are loaded from (default: alongside the config file)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <config-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("exactly one config file argument required")
	}
	configPath := flag.Arg(0)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	dir := *pluginDir
	if dir == "" {
		dir = filepath.Dir(configPath)
	}

	server := httpserver.New(httpserver.WithLogger(logger))
	supervisor := lifecycle.New(configPath, dir, server, lifecycle.WithLogger(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	addr := supervisor.BindAddr()
	logger.Info("pageloom listening", "addr", addr, "config", configPath)
	return server.Serve(ctx, addr)
}
