// Package registry implements the tool registry (C9): the set of tools the
// server knows about, the enabled subset, and introspection snapshots for
// the HTTP and stdio transports.
//
// Grounded on original_source/mcp_server/server.py's tool registration
// (ALLOWED_TOOLS / exclude-pattern filtering at startup) and on
// mattsp1290-ag-ui/go-sdk/pkg/tools' Registry-style map+mutex holder.
package registry

import (
	"sort"
	"sync"

	"github.com/nordeim/Security-MCP-Server/internal/tools"
)

// Registry holds the tools known to the server and which of them are
// currently enabled. All mutation is serialized under mu.
type Registry struct {
	mu      sync.Mutex
	tools   map[string]tools.Tool
	enabled map[string]bool
}

// New builds a registry from an initial tool set, all enabled by default.
func New(initial []tools.Tool) *Registry {
	r := &Registry{
		tools:   make(map[string]tools.Tool, len(initial)),
		enabled: make(map[string]bool, len(initial)),
	}
	for _, t := range initial {
		r.tools[t.Name()] = t
		r.enabled[t.Name()] = true
	}
	return r
}

// Register adds or replaces a tool, enabled by default.
func (r *Registry) Register(t tools.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	if _, ok := r.enabled[t.Name()]; !ok {
		r.enabled[t.Name()] = true
	}
}

// Get returns the named tool, if present and enabled.
func (r *Registry) Get(name string) (tools.Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	if !ok || !r.enabled[name] {
		return nil, false
	}
	return t, true
}

// GetAny returns the named tool regardless of enabled state, for
// introspection endpoints that want to show disabled tools too.
func (r *Registry) GetAny(name string) (tools.Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Enable marks a registered tool as enabled. A no-op if the tool is unknown.
func (r *Registry) Enable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	r.enabled[name] = true
	return true
}

// Disable marks a registered tool as disabled without removing it.
func (r *Registry) Disable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	r.enabled[name] = false
	return true
}

// EnabledCommandNames returns, for every currently-enabled tool, its
// registry name mapped to its backing command name. Satisfies
// health.ToolLister for the tool-availability check.
func (r *Registry) EnabledCommandNames() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.tools))
	for name, t := range r.tools {
		if r.enabled[name] {
			out[name] = t.CommandName()
		}
	}
	return out
}

// List returns the names of every registered tool (enabled or not), sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info builds the introspection snapshot for one tool (spec.md §3's Tool
// interface's get_info()). hasBreaker/hasMetrics are always true in this
// gateway since every registered tool gets both; the fields are kept on
// Info for forward-compatibility with a tool that opts out of one.
func (r *Registry) Info(name string) (tools.Info, bool) {
	r.mu.Lock()
	t, ok := r.tools[name]
	enabled := r.enabled[name]
	r.mu.Unlock()
	if !ok {
		return tools.Info{}, false
	}
	return tools.Info{
		Name:              t.Name(),
		CommandName:       t.CommandName(),
		Enabled:           enabled,
		Concurrency:       t.Concurrency(),
		DefaultTimeout:    t.DefaultTimeout(),
		AllowedFlags:      t.AllowedFlags(),
		HasCircuitBreaker: true,
		HasMetrics:        true,
	}, true
}

// AllInfo returns the introspection snapshot for every registered tool,
// sorted by name, for the /tools listing endpoint.
func (r *Registry) AllInfo() []tools.Info {
	names := r.List()
	out := make([]tools.Info, 0, len(names))
	for _, name := range names {
		if info, ok := r.Info(name); ok {
			out = append(out, info)
		}
	}
	return out
}
