// Package stdio implements the stdio transport (C14): a newline-delimited
// JSON request/response loop over stdin/stdout. Every log line goes to a
// dedicated stderr logger (internal/telemetry.NewStdioProtocolLogger) so
// stdout stays a clean wire protocol, never interleaved with diagnostics.
//
// Framing grounded on spec.md §6: one JSON request per line
// `{id, tool, input}`, one JSON response per line `{id, output | error}`.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/nordeim/Security-MCP-Server/internal/registry"
	"github.com/nordeim/Security-MCP-Server/internal/runner"
	"github.com/nordeim/Security-MCP-Server/internal/tools"
)

// request is one line of stdin input.
type request struct {
	ID    string      `json:"id"`
	Tool  string      `json:"tool"`
	Input tools.Input `json:"input"`
}

// response is one line of stdout output. Exactly one of Output/Error is set.
type response struct {
	ID     string             `json:"id"`
	Output *runner.ToolOutput `json:"output,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Server runs the stdio read-eval-respond loop.
type Server struct {
	reg *registry.Registry
	run *runner.Runner
	log *logrus.Logger
}

func New(reg *registry.Registry, run *runner.Runner, log *logrus.Logger) *Server {
	return &Server{reg: reg, run: run, log: log}
}

// Serve reads newline-delimited JSON requests from r and writes responses
// to w until ctx is cancelled or r reaches EOF. Each request is handled
// synchronously in arrival order, matching a single stdio client's
// expectation of in-order replies.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("event=stdio.decode_failed")
			_ = enc.Encode(response{Error: "malformed request: " + err.Error()})
			continue
		}

		resp := s.handle(ctx, req)
		if err := enc.Encode(resp); err != nil {
			s.log.WithError(err).Error("event=stdio.encode_failed")
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req request) response {
	tool, ok := s.reg.Get(req.Tool)
	if !ok {
		s.log.WithField("tool", req.Tool).Warn("event=stdio.unknown_tool")
		return response{ID: req.ID, Error: "unknown or disabled tool: " + req.Tool}
	}
	out := s.run.Run(ctx, tool, req.Input)
	return response{ID: req.ID, Output: &out}
}
