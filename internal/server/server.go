// Package server implements the server (C10): binds a transport (stdio or
// HTTP) to the runner, owns graceful shutdown, and hosts the health
// manager's background monitor and the tool registry for the process
// lifetime.
//
// Grounded on original_source/mcp_server/server.py's EnhancedMCPServer
// (owns the registry + health manager + metrics, dispatches to whichever
// transport is configured, shuts down on SIGINT/SIGTERM with a grace
// period) and the teacher's top-level server wiring pattern.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nordeim/Security-MCP-Server/internal/config"
	"github.com/nordeim/Security-MCP-Server/internal/health"
	"github.com/nordeim/Security-MCP-Server/internal/metrics"
	"github.com/nordeim/Security-MCP-Server/internal/registry"
	"github.com/nordeim/Security-MCP-Server/internal/runner"
	"github.com/nordeim/Security-MCP-Server/internal/telemetry"
	"github.com/nordeim/Security-MCP-Server/internal/transport/httpapi"
	"github.com/nordeim/Security-MCP-Server/internal/transport/stdio"
)

// Server owns the process lifetime: the registry, the health monitor, and
// whichever transport is configured.
type Server struct {
	cfg config.Config
	reg *registry.Registry
	run *runner.Runner
	hm  *health.Manager
	met *metrics.Registry
	log *telemetry.Logger
}

func New(cfg config.Config, reg *registry.Registry, run *runner.Runner, hm *health.Manager, met *metrics.Registry, log *telemetry.Logger) *Server {
	return &Server{cfg: cfg, reg: reg, run: run, hm: hm, met: met, log: log}
}

// Run blocks until ctx is cancelled or a fatal transport error occurs,
// honoring SIGINT/SIGTERM with the configured shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go s.hm.StartMonitor(monitorCtx)

	switch s.cfg.Transport {
	case "stdio":
		return s.runStdio(ctx)
	case "http":
		return s.runHTTP(ctx)
	default:
		return fmt.Errorf("server: unknown transport %q", s.cfg.Transport)
	}
}

func (s *Server) runStdio(ctx context.Context) error {
	stdioLog := telemetry.NewStdioProtocolLogger(s.cfg.LogLevel)
	srv := stdio.New(s.reg, s.run, stdioLog)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, os.Stdin, os.Stdout) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		return err
	}
}

func (s *Server) runHTTP(ctx context.Context) error {
	httpSrv := httpapi.New(s.reg, s.run, s.hm, s.met, s.log, httpapi.Options{
		AuthJWTSecret: s.cfg.AuthJWTSecret,
	})

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: httpSrv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server.listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		grace := time.Duration(s.cfg.ShutdownGraceSec) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		s.log.Info("server.shutting_down", "grace_seconds", s.cfg.ShutdownGraceSec)
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
