// Package httpapi implements the HTTP/SSE transport (C13): the §6 HTTP API
// table plus a periodic `/events` SSE stream, built on gin-gonic/gin and
// gin-contrib/sse (via gin's own c.Stream helper), grounded on the
// teacher's HTTP server conventions and the Python FastAPI routes in
// original_source/mcp_server/server.py.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/nordeim/Security-MCP-Server/internal/health"
	"github.com/nordeim/Security-MCP-Server/internal/metrics"
	"github.com/nordeim/Security-MCP-Server/internal/registry"
	"github.com/nordeim/Security-MCP-Server/internal/runner"
	"github.com/nordeim/Security-MCP-Server/internal/telemetry"
	"github.com/nordeim/Security-MCP-Server/internal/tools"
)

const serverVersion = "1.0.0"

// Server hosts the gin engine and its dependencies.
type Server struct {
	reg     *registry.Registry
	run     *runner.Runner
	hm      *health.Manager
	metrics *metrics.Registry
	log     *telemetry.Logger

	engine *gin.Engine

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// Options configures the HTTP server.
type Options struct {
	AuthJWTSecret string // non-empty enables the bearer-JWT gate (C16)
}

func New(reg *registry.Registry, run *runner.Runner, hm *health.Manager, m *metrics.Registry, log *telemetry.Logger, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		reg:      reg,
		run:      run,
		hm:       hm,
		metrics:  m,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.connectionGaugeMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/tools", s.handleListTools)
	r.GET("/tools/:name", s.handleGetTool)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/events", s.handleEvents)

	mutating := r.Group("/tools")
	mutating.Use(s.authMiddleware(opts.AuthJWTSecret))
	mutating.POST("/:name/execute", s.rateLimit(), s.handleExecute)
	mutating.POST("/:name/enable", s.handleEnable)
	mutating.POST("/:name/disable", s.handleDisable)

	s.engine = r
	return s
}

// Handler returns the underlying http.Handler for use with an http.Server,
// letting the caller own listener lifecycle and graceful shutdown.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) connectionGaugeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.metrics.System().IncActiveConnections()
		defer s.metrics.System().DecActiveConnections()
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	snapshot := s.hm.GetStatus(c.Request.Context())
	status := http.StatusOK
	switch snapshot.OverallStatus {
	case health.StatusDegraded:
		status = http.StatusMultiStatus
	case health.StatusUnhealthy:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":    snapshot.OverallStatus,
		"timestamp": snapshot.Timestamp,
		"version":   serverVersion,
		"checks":    snapshot.Checks,
	})
}

func (s *Server) handleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.reg.AllInfo()})
}

func (s *Server) handleGetTool(c *gin.Context) {
	info, ok := s.reg.Info(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleExecute(c *gin.Context) {
	name := c.Param("name")
	tool, ok := s.reg.GetAny(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool"})
		return
	}
	if _, enabled := s.reg.Get(name); !enabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "tool disabled"})
		return
	}

	var input tools.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	out := s.run.Run(c.Request.Context(), tool, input)
	status := http.StatusOK
	switch out.ErrorType {
	case "validation_error":
		status = http.StatusBadRequest
	case "execution_error", "timeout", "unknown":
		if out.ReturnCode != 0 {
			status = http.StatusInternalServerError
		}
	case "circuit_breaker_open", "resource_exhausted":
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, out)
}

func (s *Server) handleEnable(c *gin.Context) {
	name := c.Param("name")
	if !s.reg.Enable(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": name + " enabled"})
}

func (s *Server) handleDisable(c *gin.Context) {
	name := c.Param("name")
	if !s.reg.Disable(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": name + " disabled"})
}

// handleEvents streams a JSON status snapshot every 5 seconds, per
// spec.md §6 and SPEC_FULL.md §4.13.
func (s *Server) handleEvents(c *gin.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w http.ResponseWriter) bool {
		select {
		case <-clientGone:
			return false
		case <-ticker.C:
			all := s.reg.List()
			enabled := 0
			for _, name := range all {
				if _, ok := s.reg.Get(name); ok {
					enabled++
				}
			}
			c.SSEvent("status", gin.H{
				"status":        "ok",
				"timestamp":     time.Now(),
				"tools_enabled": enabled,
				"tools_total":   len(all),
			})
			return true
		}
	})
}

// rateLimit applies a best-effort per-client-IP token bucket to
// /tools/*/execute, a standard edge protection distinct from the per-tool
// concurrency semaphore enforced inside the runner.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		s.limMu.Lock()
		lim, ok := s.limiters[ip]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(5), 10)
			s.limiters[ip] = lim
		}
		s.limMu.Unlock()

		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
