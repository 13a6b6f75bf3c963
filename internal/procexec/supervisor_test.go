package procexec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/echo", "hello"}, nil, Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("got stdout %q", res.Stdout)
	}
	if res.ReturnCode != 0 {
		t.Fatalf("got returncode %d", res.ReturnCode)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/sh", "-c", "exit 3"}, nil, Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReturnCode != 3 {
		t.Fatalf("got returncode %d, want 3", res.ReturnCode)
	}
}

func TestRunTimeout(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/sleep", "5"}, nil, Options{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut || res.ReturnCode != 124 {
		t.Fatalf("expected timeout with returncode 124, got %+v", res)
	}
}

func TestRunNotFound(t *testing.T) {
	res, err := Run(context.Background(), []string{"/no/such/binary-xyz"}, nil, Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NotFound || res.ReturnCode != 127 {
		t.Fatalf("expected not-found with returncode 127, got %+v", res)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/sh", "-c", "head -c 1000 /dev/zero | tr '\\0' 'a'"}, nil,
		Options{Timeout: time.Second, MaxStdout: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TruncatedStdout {
		t.Fatal("expected stdout to be marked truncated")
	}
	if len(res.Stdout) > 100 {
		t.Fatalf("stdout exceeds cap: %d bytes", len(res.Stdout))
	}
}

func TestResolve(t *testing.T) {
	if _, ok := Resolve("sh"); !ok {
		t.Fatal("expected sh to resolve on PATH")
	}
	if _, ok := Resolve("definitely-not-a-real-binary-xyz"); ok {
		t.Fatal("expected unknown binary to not resolve")
	}
}
