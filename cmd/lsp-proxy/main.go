// lsp-proxy multiplexes a single client-facing LSP connection across
// several downstream language servers, merging their capabilities and
// diagnostics into one stream. Usage:
//
//	lsp-proxy <config-file>
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rockerboo/lsp-proxy/internal/config"
	"github.com/rockerboo/lsp-proxy/internal/logger"
	"github.com/rockerboo/lsp-proxy/internal/proxy"
	"github.com/rockerboo/lsp-proxy/internal/state"
	"github.com/rockerboo/lsp-proxy/internal/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: lsp-proxy <config-file>")
		return 1
	}
	configPath := os.Args[1]

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lsp-proxy: %v\n", err)
		return 1
	}

	if err := logger.Configure(cfg.Global.LogFilePath, logger.ParseLevel(cfg.Global.LogLevel), cfg.Global.MaxLogFiles); err != nil {
		fmt.Fprintf(os.Stderr, "lsp-proxy: configure logging: %v\n", err)
		return 1
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.WatchForChanges(ctx, configPath); err != nil {
		logger.Warnf("lsp-proxy: config file watch disabled: %v", err)
	}

	servers, err := config.BuildServerStates(cfg)
	if err != nil {
		logger.Errorf("lsp-proxy: %v", err)
		return 1
	}

	for i, s := range servers {
		if err := s.Transport.Connect(ctx); err != nil {
			logger.Errorf("lsp-proxy: connect %s: %v", s.Name, err)
			disconnectAll(servers[:i])
			return 1
		}
		s.Framer = wire.NewFramer(s.Transport.Reader(), s.Transport.Writer())
		logger.Infof("lsp-proxy: connected %s (primary=%v)", s.Name, s.IsPrimary)
	}

	clientFramer := wire.NewFramer(os.Stdin, os.Stdout)
	global := state.NewGlobalState()
	d := proxy.NewDispatcher(clientFramer, servers, global)

	logger.Infof("lsp-proxy: multiplexing %d server(s)", len(servers))

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("lsp-proxy: %v", err)
		return 1
	}

	logger.Infof("lsp-proxy: shutting down")
	return 0
}

// disconnectAll terminates every already-connected server's transport.
// Used when a later server's Connect fails, so a spawned child process
// or open socket from an earlier iteration isn't left running.
func disconnectAll(servers []*state.ServerState) {
	for _, s := range servers {
		if err := s.Transport.Disconnect(); err != nil {
			logger.Warnf("lsp-proxy: disconnect %s: %v", s.Name, err)
		}
	}
}
