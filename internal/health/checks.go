// Supplemented health checks (SPEC_FULL.md §11), grounded on
// original_source/mcp_server/health.py's ToolAvailabilityHealthCheck and
// DependencyHealthCheck: one priority-2 check that reports which enabled
// tools can't resolve their binary, and one that confirms the fixed set of
// scanner binaries exist on PATH at all.
package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nordeim/Security-MCP-Server/internal/procexec"
)

// ToolLister is the minimal registry surface this check needs: the
// command name backing each currently-enabled tool.
type ToolLister interface {
	EnabledCommandNames() map[string]string // tool name -> command name
}

// NewToolAvailabilityCheck reports, per enabled tool, whether its backing
// binary resolves on PATH. Unlike a per-tool health check, this is a
// single aggregate line across every enabled tool.
func NewToolAvailabilityCheck(lister ToolLister) Check {
	return NewCheck("tool_availability", PriorityInformational, 0, func(ctx context.Context) Result {
		names := lister.EnabledCommandNames()
		var missing []string
		for toolName, cmd := range names {
			if _, ok := procexec.Resolve(cmd); !ok {
				missing = append(missing, toolName)
			}
		}
		if len(missing) == 0 {
			return Result{Status: StatusHealthy, Message: "all enabled tool binaries resolve on PATH"}
		}
		sort.Strings(missing)
		return Result{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("tool binaries not found on PATH: %s", strings.Join(missing, ", ")),
			Metadata: map[string]any{"missing_tools": missing},
		}
	})
}

// NewDependencyCheck confirms the fixed set of external scanner binaries
// this gateway depends on are present on PATH, independent of which tools
// are currently enabled — a point-in-time environment sanity check.
// Priority 2 per spec.md §4.8 ("Dependencies (priority 2)").
func NewDependencyCheck(binaries []string) Check {
	return NewCheck("dependencies", PriorityInformational, 0, func(ctx context.Context) Result {
		var missing []string
		for _, bin := range binaries {
			if _, ok := procexec.Resolve(bin); !ok {
				missing = append(missing, bin)
			}
		}
		if len(missing) == 0 {
			return Result{Status: StatusHealthy, Message: "all dependency binaries present"}
		}
		sort.Strings(missing)
		return Result{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("missing dependency binaries: %s", strings.Join(missing, ", ")),
			Metadata: map[string]any{"missing_binaries": missing},
		}
	})
}

// ToolBreaker is the minimal runner surface a per-tool check needs: the
// open/closed state of one tool's circuit breaker.
type ToolBreaker interface {
	IsOpen() bool
}

// NewToolCheck reports one enabled tool's health: its binary must resolve
// on PATH, and its circuit breaker must not be open (spec.md §4.8's
// "Per-tool" bullet — open breaker degrades, distinct from the aggregate
// tool_availability check above). Priority 2, same as tool_availability.
func NewToolCheck(toolName, commandName string, br ToolBreaker) Check {
	return NewCheck("tool:"+toolName, PriorityInformational, 0, func(ctx context.Context) Result {
		if _, ok := procexec.Resolve(commandName); !ok {
			return Result{
				Status:   StatusDegraded,
				Message:  fmt.Sprintf("%s binary %q not found on PATH", toolName, commandName),
				Metadata: map[string]any{"command": commandName},
			}
		}
		if br.IsOpen() {
			return Result{
				Status:   StatusDegraded,
				Message:  fmt.Sprintf("%s circuit breaker is open", toolName),
				Metadata: map[string]any{"command": commandName},
			}
		}
		return Result{Status: StatusHealthy, Message: "binary resolvable, breaker closed"}
	})
}
