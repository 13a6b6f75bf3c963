package runner

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nordeim/Security-MCP-Server/internal/mcperr"
	"github.com/nordeim/Security-MCP-Server/internal/metrics"
	"github.com/nordeim/Security-MCP-Server/internal/telemetry"
	"github.com/nordeim/Security-MCP-Server/internal/tools"
)

// echoTool is a minimal tools.Tool stub that shells out to /bin/echo or
// /bin/sh, letting the runner's lifecycle be exercised without a real
// scanner binary on the test host.
type echoTool struct {
	name      string
	argv      []string
	timeout   time.Duration
	buildErr  error
}

func (e *echoTool) Name() string                  { return e.name }
func (e *echoTool) CommandName() string           { return e.argv[0] }
func (e *echoTool) Concurrency() int               { return 2 }
func (e *echoTool) DefaultTimeout() time.Duration { return e.timeout }
func (e *echoTool) AllowedFlags() []string        { return nil }
func (e *echoTool) ValidateAndBuild(input tools.Input, allowIntrusive bool) (tools.BuildResult, error) {
	if e.buildErr != nil {
		return tools.BuildResult{}, e.buildErr
	}
	return tools.BuildResult{Argv: e.argv}, nil
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	reg := metrics.NewRegistry(10, prometheus.NewRegistry())
	log := telemetry.NewLogger("error")
	return NewRunner(reg, false, log, 0, 0)
}

func TestRunnerHappyPath(t *testing.T) {
	r := newTestRunner(t)
	tool := &echoTool{name: "EchoTool", argv: []string{"/bin/echo", "hi"}, timeout: time.Second}

	out := r.Run(context.Background(), tool, tools.Input{})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if out.ReturnCode != 0 {
		t.Fatalf("expected returncode 0, got %d", out.ReturnCode)
	}
	if out.CorrelationID == "" {
		t.Fatal("expected a generated correlation id")
	}
	if out.Metadata == nil {
		t.Fatal("expected non-nil metadata")
	}
}

func TestRunnerValidationErrorNeverTripsBreaker(t *testing.T) {
	r := newTestRunner(t)
	tool := &echoTool{name: "BadTool", argv: []string{"/bin/echo"}, timeout: time.Second,
		buildErr: mcperr.New(mcperr.KindValidation, "bad input").WithTool("BadTool")}

	for i := 0; i < 10; i++ {
		out := r.Run(context.Background(), tool, tools.Input{})
		if out.ErrorType != "validation_error" {
			t.Fatalf("expected validation_error, got %q", out.ErrorType)
		}
	}
	if r.Breaker(tool).Stats().State != "closed" {
		t.Fatalf("expected breaker to remain closed after repeated validation errors, got %+v", r.Breaker(tool).Stats())
	}
}

func TestRunnerTimeout(t *testing.T) {
	r := newTestRunner(t)
	tool := &echoTool{name: "SleepTool", argv: []string{"/bin/sleep", "2"}, timeout: 50 * time.Millisecond}

	out := r.Run(context.Background(), tool, tools.Input{})
	if !out.TimedOut {
		t.Fatalf("expected timed_out=true, got %+v", out)
	}
	if out.ErrorType != "timeout" {
		t.Fatalf("expected error_type timeout, got %q", out.ErrorType)
	}
}

func TestRunnerExecutionFailureTripsBreaker(t *testing.T) {
	r := newTestRunner(t)
	tool := &echoTool{name: "FailTool", argv: []string{"/bin/sh", "-c", "exit 1"}, timeout: time.Second}

	for i := 0; i < 5; i++ {
		r.Run(context.Background(), tool, tools.Input{})
	}
	if r.Breaker(tool).Stats().State != "open" {
		t.Fatalf("expected breaker to trip open after repeated failures, got %+v", r.Breaker(tool).Stats())
	}

	out := r.Run(context.Background(), tool, tools.Input{})
	if out.ErrorType != "circuit_breaker_open" {
		t.Fatalf("expected circuit_breaker_open once tripped, got %q", out.ErrorType)
	}
}

