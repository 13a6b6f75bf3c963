// Package runner implements the tool runner (C6): the orchestration of one
// call from validated input to a stamped ToolOutput. It owns the per-tool
// semaphore and circuit breaker, delegates argument validation to the
// tool, delegates execution to the subprocess supervisor, and records the
// outcome in the metrics registry.
//
// Flow grounded on spec.md §4.6's pseudocode and on
// original_source/mcp_server/base_tool.py's run(): the semaphore is
// acquired first, then the input is validated, then the breaker is asked
// to admit the call just before the spawn, so an open breaker rejects a
// call only after it holds a concurrency slot and has passed validation.
// Validation errors never reach the breaker, supervisor failures are
// classified and recorded, the semaphore is always released.
package runner

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/nordeim/Security-MCP-Server/internal/breaker"
	"github.com/nordeim/Security-MCP-Server/internal/mcperr"
	"github.com/nordeim/Security-MCP-Server/internal/metrics"
	"github.com/nordeim/Security-MCP-Server/internal/procexec"
	"github.com/nordeim/Security-MCP-Server/internal/telemetry"
	"github.com/nordeim/Security-MCP-Server/internal/tools"
)

// ToolOutput is the gateway's public result value (spec.md §3). metadata is
// always non-nil so it serializes as `{}` rather than `null` when empty.
type ToolOutput struct {
	Stdout          string         `json:"stdout"`
	Stderr          string         `json:"stderr"`
	ReturnCode      int            `json:"returncode"`
	TruncatedStdout bool           `json:"truncated_stdout"`
	TruncatedStderr bool           `json:"truncated_stderr"`
	TimedOut        bool           `json:"timed_out"`
	Error           string         `json:"error,omitempty"`
	ErrorType       string         `json:"error_type,omitempty"`
	ExecutionTime   float64        `json:"execution_time"`
	CorrelationID   string         `json:"correlation_id"`
	Metadata        map[string]any `json:"metadata"`
}

// breakerOverrides holds per-tool circuit breaker tuning that differs from
// DefaultConfig; spec.md §4.5 calls out sqlmap's stricter thresholds.
var breakerOverrides = map[string]breaker.Config{
	"SqlmapTool": {
		FailureThreshold:  3,
		SuccessThreshold:  1,
		MaxHalfOpenCalls:  1,
		InitialRecovery:   300 * time.Second,
		MaxRecovery:       300 * time.Second,
		TimeoutMultiplier: 1.5,
		Jitter:            0.1,
	},
}

// Runner wires one Tool's lifecycle together. A single Runner is shared by
// every tool; per-tool state (semaphore, breaker) is created lazily and
// keyed by tool name.
type Runner struct {
	metrics        *metrics.Registry
	allowIntrusive bool
	env            []string
	log            *telemetry.Logger
	tracer         trace.Tracer
	maxStdout      int
	maxStderr      int

	mu    sync.Mutex
	sems  map[string]*semaphore.Weighted
	brkrs map[string]*breaker.Breaker
}

// NewRunner builds a Runner. env, when nil, defaults to the scrubbed
// environment spec.md §4.3 requires: inherited PATH plus a fixed C.UTF-8
// locale. maxStdout/maxStderr configure the subprocess supervisor's output
// caps (MAX_STDOUT_BYTES/MAX_STDERR_BYTES); <= 0 falls back to procexec's
// own 1 MiB/256 KiB defaults.
func NewRunner(reg *metrics.Registry, allowIntrusive bool, log *telemetry.Logger, maxStdout, maxStderr int) *Runner {
	return &Runner{
		metrics:        reg,
		allowIntrusive: allowIntrusive,
		env:            scrubbedEnv(),
		log:            log,
		tracer:         otel.Tracer("security-mcp-server/runner"),
		maxStdout:      maxStdout,
		maxStderr:      maxStderr,
		sems:           make(map[string]*semaphore.Weighted),
		brkrs:          make(map[string]*breaker.Breaker),
	}
}

func scrubbedEnv() []string {
	path := os.Getenv("PATH")
	return []string{"PATH=" + path, "LANG=C.UTF-8", "LC_ALL=C.UTF-8"}
}

func (r *Runner) getSemaphore(tool tools.Tool) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.sems[tool.Name()]
	if !ok {
		n := int64(tool.Concurrency())
		if n <= 0 {
			n = 1
		}
		sem = semaphore.NewWeighted(n)
		r.sems[tool.Name()] = sem
	}
	return sem
}

func (r *Runner) getBreaker(tool tools.Tool) *breaker.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brkrs[tool.Name()]
	if !ok {
		cfg, hasOverride := breakerOverrides[tool.Name()]
		if !hasOverride {
			cfg = breaker.DefaultConfig()
		}
		b = breaker.New(tool.Name(), cfg)
		r.brkrs[tool.Name()] = b
	}
	return b
}

// Breaker exposes the tool's breaker for health checks and operator
// endpoints (force_open/force_close, stats snapshot).
func (r *Runner) Breaker(tool tools.Tool) *breaker.Breaker {
	return r.getBreaker(tool)
}

// Run executes one tool call end to end and always returns a ToolOutput
// (never an error): every failure mode is represented in the output's
// error/error_type fields, matching spec.md §3's contract.
func (r *Runner) Run(ctx context.Context, tool tools.Tool, input tools.Input) ToolOutput {
	start := time.Now()
	cid := input.CorrelationID
	if cid == "" {
		cid = uuid.NewString()
	}

	ctx, span := r.tracer.Start(ctx, "tool.run", trace.WithAttributes(
		attribute.String("tool.name", tool.Name()),
		attribute.String("correlation_id", cid),
	))
	defer span.End()

	br := r.getBreaker(tool)

	sem := r.getSemaphore(tool)
	if err := sem.Acquire(ctx, 1); err != nil {
		out := mcperr.New(mcperr.KindResourceExhausted, "could not acquire concurrency slot").
			WithTool(tool.Name()).WithCause(err)
		span.SetStatus(codes.Error, "resource_exhausted")
		return r.errorOutput(cid, out, time.Since(start))
	}
	defer sem.Release(1)

	buildResult, err := tool.ValidateAndBuild(input, r.allowIntrusive)
	if err != nil {
		// Validation failures never reach the breaker (spec.md §4.6): Admit
		// is not called at all for this path, so there is nothing to
		// release and no outcome is scored against the breaker.
		r.metrics.RecordExecution(tool.Name(), false, time.Since(start), false, string(mcperr.KindValidation))
		span.SetStatus(codes.Error, "validation_error")
		return r.errorOutput(cid, err, time.Since(start))
	}

	timeout := tool.DefaultTimeout()
	if input.TimeoutSec > 0 {
		timeout = time.Duration(input.TimeoutSec * float64(time.Second))
	}

	// The breaker only wraps the actual subprocess call (spec.md §4.6): it
	// must not see validation or semaphore-acquisition outcomes.
	release, admitErr := br.Admit()
	if admitErr != nil {
		span.SetStatus(codes.Error, "circuit_breaker_open")
		return r.errorOutput(cid, admitErr, time.Since(start))
	}

	procResult, procErr := procexec.Run(ctx, buildResult.Argv, r.env, procexec.Options{
		Timeout:   timeout,
		MaxStdout: r.maxStdout,
		MaxStderr: r.maxStderr,
	})

	outcome := classifyOutcome(tool.Name(), procResult, procErr)
	release(outcome)

	elapsed := time.Since(start)
	success := outcome == nil
	errType := ""
	if e, ok := mcperr.As(outcome); ok {
		errType = string(e.Kind)
	}
	r.metrics.RecordExecution(tool.Name(), success, elapsed, procResult.TimedOut, errType)
	if !success {
		span.SetStatus(codes.Error, errType)
	}

	metadata := buildResult.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return ToolOutput{
		Stdout:          procResult.Stdout,
		Stderr:          procResult.Stderr,
		ReturnCode:      procResult.ReturnCode,
		TruncatedStdout: procResult.TruncatedStdout,
		TruncatedStderr: procResult.TruncatedStderr,
		TimedOut:        procResult.TimedOut,
		Error:           errMessage(outcome),
		ErrorType:       errType,
		ExecutionTime:   elapsed.Seconds(),
		CorrelationID:   cid,
		Metadata:        metadata,
	}
}

// classifyOutcome turns a procexec result into the *mcperr.Error the
// breaker and metrics use to classify the call, or nil on success.
func classifyOutcome(toolName string, res procexec.Result, procErr error) error {
	switch {
	case procErr != nil:
		return mcperr.New(mcperr.KindExecution, procErr.Error()).WithTool(toolName).WithCause(procErr)
	case res.TimedOut:
		return mcperr.New(mcperr.KindTimeout, "execution timed out").WithTool(toolName)
	case res.NotFound:
		return mcperr.New(mcperr.KindNotFound, "binary not found").WithTool(toolName)
	case res.ReturnCode != 0:
		return mcperr.New(mcperr.KindExecution, "process exited with a non-zero status").WithTool(toolName).
			WithMetadata("returncode", res.ReturnCode)
	default:
		return nil
	}
}

func (r *Runner) errorOutput(cid string, err error, elapsed time.Duration) ToolOutput {
	out := ToolOutput{
		ReturnCode:    -1,
		ExecutionTime: elapsed.Seconds(),
		CorrelationID: cid,
		Metadata:      map[string]any{},
	}
	if e, ok := mcperr.As(err); ok {
		out.ErrorType = string(e.Kind)
		out.Error = e.Message
		if e.Kind == mcperr.KindTimeout {
			out.TimedOut = true
		}
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
		if e.Retryable {
			out.Metadata["retry_after"] = e.RetryAfter.Seconds()
		}
	} else if err != nil {
		out.ErrorType = string(mcperr.KindUnknown)
		out.Error = err.Error()
	}
	return out
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
