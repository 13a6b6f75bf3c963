// Package procexec implements the subprocess supervisor (C3): launching a
// resolved binary with a sanitized environment, capturing stdout/stderr
// with byte caps, enforcing a wall-clock timeout, killing on expiry, and
// surfacing the exit code.
//
// Grounded on ImJafran-aeon/internal/tools/shell_exec.go's process-group +
// SIGKILL-on-timeout pattern and bounded-buffer truncation, adapted to
// spawn argv directly (no shell) per spec.md §4.3, and on
// original_source/mcp_server/base_tool.py's _spawn (minimal scrubbed env,
// returncode 124 on timeout, 127 on not-found).
package procexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Defaults for the byte caps on captured output (spec.md §4.3, overridable
// via MAX_STDOUT_BYTES/MAX_STDERR_BYTES).
const (
	DefaultMaxStdout = 1 << 20   // 1 MiB
	DefaultMaxStderr = 256 << 10 // 256 KiB
)

// Result is the raw outcome of running one subprocess, before the runner
// (C6) stamps correlation id and wraps it as a ToolOutput.
type Result struct {
	Stdout          string
	Stderr          string
	ReturnCode      int
	TruncatedStdout bool
	TruncatedStderr bool
	TimedOut        bool
	NotFound        bool
	ExecutionTime   time.Duration
}

// Options configures one Run call.
type Options struct {
	Timeout   time.Duration
	MaxStdout int
	MaxStderr int
}

// boundedWriter caps the number of bytes retained from a stream; bytes
// beyond the cap are discarded but still counted, so Truncated can be
// reported accurately without unbounded memory growth.
type boundedWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if w.buf.Len() >= w.max {
		w.truncated = true
		return n, nil
	}
	remaining := w.max - w.buf.Len()
	if len(p) > remaining {
		w.truncated = true
		p = p[:remaining]
	}
	w.buf.Write(p)
	return n, nil
}

// Run executes argv[0] with argv[1:] as arguments, no shell, with a
// scrubbed environment containing only the inherited PATH plus a fixed
// C.UTF-8 locale (spec.md §4.3 step 1). env may be nil to use the process's
// inherited PATH only.
func Run(ctx context.Context, argv []string, env []string, opts Options) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("procexec: empty argv")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	maxStdout := opts.MaxStdout
	if maxStdout <= 0 {
		maxStdout = DefaultMaxStdout
	}
	maxStderr := opts.MaxStderr
	if maxStderr <= 0 {
		maxStderr = DefaultMaxStderr
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if env == nil {
		env = []string{"PATH=" + os.Getenv("PATH")}
	}
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outW := &boundedWriter{max: maxStdout}
	errW := &boundedWriter{max: maxStderr}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err := cmd.Run()

	// On timeout, signal the whole process group (negative pid), not just
	// the direct child, so any descendants spawned by the tool are reaped
	// too.
	if runCtx.Err() == context.DeadlineExceeded && cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	elapsed := time.Since(start)
	// execution_time is floored at 1ms, matching base_tool.py's
	// `max(elapsed, 0.001)` so a near-instant execution never reports 0.
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}

	res := Result{
		Stdout:          decodeUTF8(outW.buf.Bytes()),
		Stderr:          decodeUTF8(errW.buf.Bytes()),
		TruncatedStdout: outW.truncated,
		TruncatedStderr: errW.truncated,
		ExecutionTime:   elapsed,
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		res.ReturnCode = 124
		res.TimedOut = true
		return res, nil
	case errors.Is(err, exec.ErrNotFound) || isNotFound(err):
		res.ReturnCode = 127
		res.NotFound = true
		return res, nil
	case err == nil:
		res.ReturnCode = 0
		return res, nil
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ReturnCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, syscall.ENOENT)
}

// decodeUTF8 replaces invalid UTF-8 sequences the way Python's
// bytes.decode("utf-8", errors="replace") does.
func decodeUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// Resolve reports whether binary can be found on PATH, used by the health
// manager's tool-availability checks.
func Resolve(binary string) (string, bool) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", false
	}
	return path, true
}
