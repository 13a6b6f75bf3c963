// Package tools defines the Tool interface (C5) and the four concrete
// tools the gateway exposes: nmap, masscan, gobuster, sqlmap.
//
// Shape grounded on mattsp1290-ag-ui/go-sdk/pkg/tools/tool.go's Tool
// struct and ToolSchema-style metadata, generalized per spec.md §9's
// design note: "Model as an interface {validate_and_build(input) -> argv |
// err; info() -> ToolInfo; name; concurrency; timeout} with one concrete
// value per tool; shared helpers live in free functions, not a base
// class." Per-tool validation logic is grounded on the four Python
// modules under original_source/mcp_server{,_v2}/tools/.
package tools

import (
	"time"

	"github.com/nordeim/Security-MCP-Server/internal/mcperr"
)

// Input is the caller-supplied request to execute one tool (spec.md §3).
type Input struct {
	Target        string  `json:"target"`
	ExtraArgs     string  `json:"extra_args"`
	TimeoutSec    float64 `json:"timeout_sec"`
	CorrelationID string  `json:"correlation_id"`
}

// Info is the introspection snapshot the registry publishes for /tools.
type Info struct {
	Name             string        `json:"name"`
	CommandName      string        `json:"command_name"`
	Enabled          bool          `json:"enabled"`
	Concurrency      int           `json:"concurrency"`
	DefaultTimeout   time.Duration `json:"default_timeout"`
	AllowedFlags     []string      `json:"allowed_flags"`
	HasCircuitBreaker bool         `json:"has_circuit_breaker"`
	HasMetrics       bool          `json:"has_metrics"`
}

// BuildResult is the outcome of a successful validate-and-build pass: the
// argv to execute plus metadata describing any optimizations applied
// (spec.md's "metadata.optimizations_applied", see scenario S1).
type BuildResult struct {
	Argv          []string
	Optimizations []string
	Metadata      map[string]any
}

// Tool is the polymorphic contract every concrete tool satisfies. The
// registry and runner depend only on this interface, never on a concrete
// type, matching the teacher's Tool abstraction in pkg/tools/tool.go.
type Tool interface {
	// Name is the tool's registry key, e.g. "NmapTool".
	Name() string
	// CommandName is the external binary invoked, e.g. "nmap".
	CommandName() string
	// Concurrency is this tool's semaphore capacity.
	Concurrency() int
	// DefaultTimeout is used when the caller omits timeout_sec.
	DefaultTimeout() time.Duration
	// AllowedFlags lists the flag-prefix allow-list surfaced in Info.
	AllowedFlags() []string
	// ValidateAndBuild tokenizes and validates input, producing the argv
	// to execute, or a *mcperr.Error with Kind=KindValidation.
	ValidateAndBuild(input Input, allowIntrusive bool) (BuildResult, error)
}

// validationError is a small helper shared by every concrete tool to keep
// the *mcperr.Error construction uniform. It returns *mcperr.Error (not the
// bare error interface) so callers can chain further WithMetadata calls.
func validationError(tool, target, msg string) *mcperr.Error {
	return mcperr.New(mcperr.KindValidation, msg).WithTool(tool).WithTarget(target)
}
