// Package metrics implements the metrics registry (C7): thread-safe
// per-tool counters, min/max/avg, p50/p95/p99 over a sliding window of the
// last 100 executions, system-wide counters, and memory-bounded eviction.
//
// Grounded on original_source/mcp_server_v2/metrics.py's
// ToolExecutionMetrics (deque(maxlen=100), percentile-on-read,
// NaN/Inf sanitization) and MetricsManager (LRU-style eviction at
// max_tools, periodic cleanup of tools idle > 24h), with Prometheus
// mirroring via the teacher's github.com/prometheus/client_golang and
// LRU bookkeeping via github.com/hashicorp/golang-lru/v2.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
)

const recentWindow = 100

// execRecord is one entry in a tool's sliding window.
type execRecord struct {
	at        time.Time
	success   bool
	duration  time.Duration
	timedOut  bool
	errorType string
}

// ToolMetrics accumulates execution statistics for a single tool. All
// mutation happens under mu.
type ToolMetrics struct {
	name string

	mu            sync.Mutex
	execCount     int64
	successCount  int64
	failureCount  int64
	timeoutCount  int64
	errorCount    int64
	totalDuration time.Duration
	minDuration   time.Duration
	maxDuration   time.Duration
	lastExecAt    time.Time
	recent        []execRecord
	active        int64
}

func newToolMetrics(name string) *ToolMetrics {
	return &ToolMetrics{name: name, minDuration: time.Duration(math.MaxInt64)}
}

// Record ingests one execution outcome, clamping negative durations to
// zero per spec.md §4.7.
func (t *ToolMetrics) Record(success bool, duration time.Duration, timedOut bool, errorType string) {
	if duration < 0 {
		duration = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.execCount++
	t.totalDuration += duration
	if duration < t.minDuration {
		t.minDuration = duration
	}
	if duration > t.maxDuration {
		t.maxDuration = duration
	}
	t.lastExecAt = time.Now()

	if success {
		t.successCount++
	} else {
		t.failureCount++
		if errorType != "" {
			t.errorCount++
		}
	}
	if timedOut {
		t.timeoutCount++
	}

	t.recent = append(t.recent, execRecord{at: t.lastExecAt, success: success, duration: duration, timedOut: timedOut, errorType: errorType})
	if len(t.recent) > recentWindow {
		t.recent = t.recent[len(t.recent)-recentWindow:]
	}
}

func (t *ToolMetrics) IncActive()   { t.mu.Lock(); t.active++; t.mu.Unlock() }
func (t *ToolMetrics) DecActive() {
	t.mu.Lock()
	if t.active > 0 {
		t.active--
	}
	t.mu.Unlock()
}

// Snapshot is the JSON-facing view of one tool's statistics.
type Snapshot struct {
	ToolName            string    `json:"tool_name"`
	ExecutionCount      int64     `json:"execution_count"`
	SuccessCount        int64     `json:"success_count"`
	FailureCount        int64     `json:"failure_count"`
	ErrorCount          int64     `json:"error_count"`
	TimeoutCount        int64     `json:"timeout_count"`
	SuccessRate         float64   `json:"success_rate"`
	AverageExecSeconds  float64   `json:"average_execution_time"`
	MinExecSeconds      float64   `json:"min_execution_time"`
	MaxExecSeconds      float64   `json:"max_execution_time"`
	P50ExecSeconds      float64   `json:"p50_execution_time"`
	P95ExecSeconds      float64   `json:"p95_execution_time"`
	P99ExecSeconds      float64   `json:"p99_execution_time"`
	LastExecutionTime   time.Time `json:"last_execution_time"`
	RecentFailureRate   float64   `json:"recent_failure_rate"`
	ActiveExecutions    int64     `json:"active_executions"`
}

// Snapshot returns a consistent, read-only copy of the tool's statistics.
func (t *ToolMetrics) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.execCount == 0 {
		return Snapshot{ToolName: t.name}
	}

	durations := make([]float64, 0, len(t.recent))
	failures := 0
	for _, r := range t.recent {
		durations = append(durations, r.duration.Seconds())
		if !r.success {
			failures++
		}
	}
	sort.Float64s(durations)

	p50 := percentile(durations, 0.50)
	p95 := percentile(durations, 0.95)
	p99 := percentile(durations, 0.99)

	minD := t.minDuration
	if minD == time.Duration(math.MaxInt64) {
		minD = 0
	}

	recentFailureRate := 0.0
	if len(t.recent) > 0 {
		recentFailureRate = float64(failures) / float64(len(t.recent)) * 100
	}

	return Snapshot{
		ToolName:           t.name,
		ExecutionCount:     t.execCount,
		SuccessCount:       t.successCount,
		FailureCount:       t.failureCount,
		ErrorCount:         t.errorCount,
		TimeoutCount:       t.timeoutCount,
		SuccessRate:        float64(t.successCount) / float64(t.execCount) * 100,
		AverageExecSeconds: t.totalDuration.Seconds() / float64(t.execCount),
		MinExecSeconds:     minD.Seconds(),
		MaxExecSeconds:     t.maxDuration.Seconds(),
		P50ExecSeconds:     p50,
		P95ExecSeconds:     p95,
		P99ExecSeconds:     p99,
		LastExecutionTime:  t.lastExecAt,
		RecentFailureRate:  recentFailureRate,
		ActiveExecutions:   t.active,
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// SystemMetrics tracks gateway-wide counters.
type SystemMetrics struct {
	mu                sync.Mutex
	startTime         time.Time
	requestCount      int64
	errorCount        int64
	activeConnections int64
}

func newSystemMetrics() *SystemMetrics {
	return &SystemMetrics{startTime: time.Now()}
}

func (s *SystemMetrics) IncRequest() { s.mu.Lock(); s.requestCount++; s.mu.Unlock() }
func (s *SystemMetrics) IncError()   { s.mu.Lock(); s.errorCount++; s.mu.Unlock() }
func (s *SystemMetrics) IncActiveConnections() {
	s.mu.Lock()
	s.activeConnections++
	s.mu.Unlock()
}
func (s *SystemMetrics) DecActiveConnections() {
	s.mu.Lock()
	if s.activeConnections > 0 {
		s.activeConnections--
	}
	s.mu.Unlock()
}

type SystemSnapshot struct {
	UptimeSeconds     float64   `json:"uptime_seconds"`
	RequestCount      int64     `json:"request_count"`
	ErrorCount        int64     `json:"error_count"`
	ErrorRate         float64   `json:"error_rate"`
	ActiveConnections int64     `json:"active_connections"`
	StartTime         time.Time `json:"start_time"`
}

func (s *SystemMetrics) Snapshot() SystemSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	errRate := 0.0
	if s.requestCount > 0 {
		errRate = float64(s.errorCount) / float64(s.requestCount) * 100
	}
	return SystemSnapshot{
		UptimeSeconds:     time.Since(s.startTime).Seconds(),
		RequestCount:      s.requestCount,
		ErrorCount:        s.errorCount,
		ErrorRate:         errRate,
		ActiveConnections: s.activeConnections,
		StartTime:         s.startTime,
	}
}

// Registry is the process-wide metrics facade: per-tool metrics, the
// system snapshot, and an LRU of tool names bounded at maxTools.
type Registry struct {
	mu              sync.Mutex
	tools           map[string]*ToolMetrics
	lru             *lru.LRU[string, struct{}]
	system          *SystemMetrics
	maxTools        int
	cleanupInterval time.Duration
	lastCleanup     time.Time

	promExecTotal *prometheus.CounterVec
	promDuration  *prometheus.HistogramVec
	promActive    *prometheus.GaugeVec
	promErrors    *prometheus.CounterVec
}

// NewRegistry builds a metrics registry bounded at maxTools entries
// (default 1000 per spec.md §4.7), registering Prometheus collectors
// against reg (pass prometheus.DefaultRegisterer for the process default,
// or a fresh prometheus.NewRegistry() in tests to avoid duplicate
// registration panics across test runs).
func NewRegistry(maxTools int, reg prometheus.Registerer) *Registry {
	if maxTools <= 0 {
		maxTools = 1000
	}
	r := &Registry{
		tools:           make(map[string]*ToolMetrics),
		system:          newSystemMetrics(),
		maxTools:        maxTools,
		cleanupInterval: time.Hour,
		lastCleanup:     time.Now(),
	}
	evict, _ := lru.NewLRU[string, struct{}](maxTools, func(name string, _ struct{}) {
		delete(r.tools, name)
	})
	r.lru = evict

	r.promExecTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_tool_execution_total",
		Help: "Total tool executions.",
	}, []string{"tool", "status", "error_type"})
	r.promDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mcp_tool_execution_seconds",
		Help: "Tool execution time in seconds.",
	}, []string{"tool"})
	r.promActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcp_tool_active",
		Help: "Currently active tool executions.",
	}, []string{"tool"})
	r.promErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_tool_errors_total",
		Help: "Total tool errors.",
	}, []string{"tool", "error_type"})

	// Registration is singleton-guarded: a duplicate-name AlreadyRegisteredError
	// means another instance in this process already owns these collectors,
	// which is fine — the registry simply emits through its own local
	// counters too and skips re-registering, mirroring the Python service's
	// PrometheusRegistry._find_collector fallback.
	for _, c := range []prometheus.Collector{r.promExecTotal, r.promDuration, r.promActive, r.promErrors} {
		if reg != nil {
			_ = reg.Register(c) //nolint:errcheck // duplicate registration is tolerated by design
		}
	}

	return r
}

// ToolMetrics returns (creating if necessary) the metrics tracker for
// name, evicting the least-recently-used entry first if at capacity, and
// running the idle-tool cleanup pass if due.
func (r *Registry) ToolMetrics(name string) *ToolMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastCleanup) > r.cleanupInterval {
		r.cleanupLocked()
	}

	if tm, ok := r.tools[name]; ok {
		r.lru.Add(name, struct{}{})
		return tm
	}

	tm := newToolMetrics(name)
	r.tools[name] = tm
	r.lru.Add(name, struct{}{})
	return tm
}

// cleanupLocked drops tools whose last execution was more than 24h ago.
// Caller must hold r.mu.
func (r *Registry) cleanupLocked() {
	cutoff := time.Now().Add(-24 * time.Hour)
	for name, tm := range r.tools {
		tm.mu.Lock()
		last := tm.lastExecAt
		tm.mu.Unlock()
		if !last.IsZero() && last.Before(cutoff) {
			delete(r.tools, name)
			r.lru.Remove(name)
		}
	}
	r.lastCleanup = time.Now()
}

// RecordExecution records one execution for tool name, updating both the
// in-process snapshot and the Prometheus collectors, and bumps the system
// request/error counters.
func (r *Registry) RecordExecution(tool string, success bool, duration time.Duration, timedOut bool, errorType string) {
	tm := r.ToolMetrics(tool)
	tm.Record(success, duration, timedOut, errorType)

	status := "success"
	et := errorType
	if !success {
		status = "failure"
		if et == "" {
			et = "none"
		}
	} else if et == "" {
		et = "none"
	}
	r.promExecTotal.WithLabelValues(tool, status, et).Inc()
	r.promDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		r.promErrors.WithLabelValues(tool, et).Inc()
	}

	r.system.IncRequest()
	if !success {
		r.system.IncError()
	}
}

func (r *Registry) IncActive(tool string) {
	r.ToolMetrics(tool).IncActive()
	r.promActive.WithLabelValues(tool).Inc()
}

func (r *Registry) DecActive(tool string) {
	r.ToolMetrics(tool).DecActive()
	r.promActive.WithLabelValues(tool).Dec()
}

func (r *Registry) System() *SystemMetrics { return r.system }

// AllStats returns a snapshot of every tool currently tracked plus the
// system snapshot as plain Go values. No HTTP endpoint serves it; /metrics
// uses the Prometheus exposition and /tools/{name} returns only ToolInfo.
func (r *Registry) AllStats() (map[string]Snapshot, SystemSnapshot) {
	r.mu.Lock()
	names := make([]string, 0, len(r.tools))
	tools := make(map[string]*ToolMetrics, len(r.tools))
	for name, tm := range r.tools {
		names = append(names, name)
		tools[name] = tm
	}
	r.mu.Unlock()

	out := make(map[string]Snapshot, len(names))
	for _, name := range names {
		out[name] = tools[name].Snapshot()
	}
	return out, r.system.Snapshot()
}
