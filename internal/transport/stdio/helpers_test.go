package stdio

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nordeim/Security-MCP-Server/internal/metrics"
	"github.com/nordeim/Security-MCP-Server/internal/telemetry"
)

func testMetrics() *metrics.Registry {
	return metrics.NewRegistry(10, prometheus.NewRegistry())
}

func testLogger() *telemetry.Logger {
	return telemetry.NewLogger("error")
}
