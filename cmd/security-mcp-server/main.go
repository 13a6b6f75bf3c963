// Command security-mcp-server is the gateway's entrypoint: it loads
// configuration, wires the registry/runner/health/metrics stack, and
// serves whichever transport is configured until shutdown.
//
// Exit codes follow spec.md §6: 0 clean shutdown, 1 startup error, 2
// configuration invalid.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/nordeim/Security-MCP-Server/internal/config"
	"github.com/nordeim/Security-MCP-Server/internal/health"
	"github.com/nordeim/Security-MCP-Server/internal/metrics"
	"github.com/nordeim/Security-MCP-Server/internal/registry"
	"github.com/nordeim/Security-MCP-Server/internal/runner"
	"github.com/nordeim/Security-MCP-Server/internal/server"
	"github.com/nordeim/Security-MCP-Server/internal/telemetry"
	"github.com/nordeim/Security-MCP-Server/internal/tools"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}

	log := telemetry.NewLogger(cfg.LogLevel)
	defer log.Sync()

	ctx := context.Background()
	shutdownTracing, err := telemetry.InitTracing(ctx, "security-mcp-server", cfg.OTELExporterOTLPEndpoint)
	if err != nil {
		log.Error("startup.tracing_failed", "error", err.Error())
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	allTools := []tools.Tool{
		tools.NewNmap(cfg.DefaultConcurrency, defaultTimeout(cfg), cfg.AllowIntrusive, cfg.MaxArgsLen),
		tools.NewMasscan(cfg.DefaultConcurrency, defaultTimeout(cfg), cfg.MaxArgsLen),
		tools.NewGobuster(cfg.DefaultConcurrency, defaultTimeout(cfg), cfg.AllowIntrusive, cfg.MaxArgsLen),
		tools.NewSqlmap(cfg.DefaultConcurrency, defaultTimeout(cfg), cfg.MaxArgsLen),
	}

	reg := registry.New(nil)
	for _, t := range allTools {
		reg.Register(t)
		if !cfg.ToolEnabled(t.Name()) {
			reg.Disable(t.Name())
		}
	}

	metricsReg := metrics.NewRegistry(cfg.MetricsMaxTools, prometheus.DefaultRegisterer)
	run := runner.NewRunner(metricsReg, cfg.AllowIntrusive, log, cfg.MaxStdoutBytes, cfg.MaxStderrBytes)

	hm := health.NewManager(time.Duration(cfg.HealthCheckIntervalSec) * time.Second)
	hm.Register(health.NewSystemResourceCheck(health.DefaultResourceThresholds()))
	hm.Register(processHealthCheck())
	hm.Register(health.NewDependencyCheck(commandNames(allTools)))
	hm.Register(health.NewToolAvailabilityCheck(reg))
	for _, t := range allTools {
		hm.Register(health.NewToolCheck(t.Name(), t.CommandName(), run.Breaker(t)))
	}

	srv := server.New(cfg, reg, run, hm, metricsReg, log)

	log.Info("startup.ready", "transport", cfg.Transport, "tools", len(allTools))
	if err := srv.Run(context.Background()); err != nil {
		log.Error("startup.fatal", "error", err.Error())
		return 1
	}

	log.Info("shutdown.complete")
	return 0
}

func defaultTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.DefaultTimeoutSec * float64(time.Second))
}

func commandNames(all []tools.Tool) []string {
	names := make([]string, 0, len(all))
	for _, t := range all {
		names = append(names, t.CommandName())
	}
	return names
}

var processStartedAt = time.Now()

// processHealthCheck is the priority-1 "process is alive" check from
// spec.md §4.8: reports PID, age, RSS, and CPU% via gopsutil, matching
// health.py's ProcessHealthCheck.
func processHealthCheck() health.Check {
	return health.NewCheck("process", health.PriorityImportant, 2*time.Second, func(ctx context.Context) health.Result {
		pid := int32(os.Getpid())
		age := time.Since(processStartedAt)

		proc, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			return health.Result{Status: health.StatusUnhealthy, Message: "cannot inspect own process: " + err.Error()}
		}
		rssBytes := uint64(0)
		if mi, err := proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			rssBytes = mi.RSS
		}
		cpuPercent := 0.0
		if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
			cpuPercent = pct
		}

		return health.Result{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("pid %d alive for %s", pid, age.Round(time.Second)),
			Metadata: map[string]any{
				"pid":         pid,
				"age_seconds": age.Seconds(),
				"rss_bytes":   rssBytes,
				"cpu_percent": cpuPercent,
			},
		}
	})
}
