// Package config implements the config loader (C11): compiled-in defaults
// overlaid by an optional YAML file, overlaid by environment variables,
// producing a validated typed Config.
//
// Grounded on mattsp1290-ag-ui/go-sdk/pkg/config/core.go's layered-source
// pattern and the Python service's config.get_config() singleton
// (original_source/mcp_server/config.py is referenced by every tool
// module as `from mcp_server.config import get_config`).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's fully-resolved runtime configuration.
type Config struct {
	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`

	ShutdownGraceSec int `yaml:"shutdown_grace_sec"`

	ToolInclude []string `yaml:"tool_include"`
	ToolExclude []string `yaml:"tool_exclude"`

	LogLevel string `yaml:"log_level"`

	MaxArgsLen       int `yaml:"max_args_len"`
	MaxStdoutBytes   int `yaml:"max_stdout_bytes"`
	MaxStderrBytes   int `yaml:"max_stderr_bytes"`
	DefaultTimeoutSec float64 `yaml:"default_timeout_sec"`
	DefaultConcurrency int `yaml:"default_concurrency"`
	AllowIntrusive   bool `yaml:"allow_intrusive"`

	AuthJWTSecret            string `yaml:"auth_jwt_secret"`
	OTELExporterOTLPEndpoint string `yaml:"otel_exporter_otlp_endpoint"`
	MetricsMaxTools          int    `yaml:"metrics_max_tools"`
	HealthCheckIntervalSec   int    `yaml:"health_check_interval_sec"`
}

// Defaults returns the compiled-in defaults, spec.md §6's literal values.
func Defaults() Config {
	return Config{
		Transport:          "stdio",
		Host:               "0.0.0.0",
		Port:               8080,
		ShutdownGraceSec:   30,
		LogLevel:           "INFO",
		MaxArgsLen:         2048,
		MaxStdoutBytes:     1048576,
		MaxStderrBytes:     262144,
		DefaultTimeoutSec:  300,
		DefaultConcurrency: 2,
		AllowIntrusive:     false,
		MetricsMaxTools:    1000,
		HealthCheckIntervalSec: 30,
	}
}

// Load builds a Config from defaults, an optional YAML file (path from the
// yamlPath argument or the CONFIG_FILE env var), and environment variable
// overrides, in that ascending order of precedence, then validates it.
func Load(yamlPath string) (Config, error) {
	cfg := Defaults()

	path := yamlPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envInt("PORT"); ok {
		cfg.Port = v
	}
	if v, ok := envInt("SHUTDOWN_GRACE"); ok {
		cfg.ShutdownGraceSec = v
	}
	if v := os.Getenv("TOOL_INCLUDE"); v != "" {
		cfg.ToolInclude = splitCSV(v)
	}
	if v := os.Getenv("TOOL_EXCLUDE"); v != "" {
		cfg.ToolExclude = splitCSV(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := envInt("MAX_ARGS_LEN"); ok {
		cfg.MaxArgsLen = v
	}
	if v, ok := envInt("MAX_STDOUT_BYTES"); ok {
		cfg.MaxStdoutBytes = v
	}
	if v, ok := envInt("MAX_STDERR_BYTES"); ok {
		cfg.MaxStderrBytes = v
	}
	if v, ok := envFloat("DEFAULT_TIMEOUT_SEC"); ok {
		cfg.DefaultTimeoutSec = v
	}
	if v, ok := envInt("DEFAULT_CONCURRENCY"); ok {
		cfg.DefaultConcurrency = v
	}
	if v, ok := envBool("ALLOW_INTRUSIVE"); ok {
		cfg.AllowIntrusive = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.AuthJWTSecret = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELExporterOTLPEndpoint = v
	}
	if v, ok := envInt("METRICS_MAX_TOOLS"); ok {
		cfg.MetricsMaxTools = v
	}
	if v, ok := envInt("HEALTH_CHECK_INTERVAL_SEC"); ok {
		cfg.HealthCheckIntervalSec = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configuration that would make the server unable to
// start, matching spec.md §6's "exit code 2: configuration invalid".
func (c Config) Validate() error {
	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("config: invalid TRANSPORT %q (want stdio or http)", c.Transport)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.MaxArgsLen <= 0 {
		return fmt.Errorf("config: MAX_ARGS_LEN must be positive")
	}
	if c.MaxStdoutBytes <= 0 || c.MaxStderrBytes <= 0 {
		return fmt.Errorf("config: MAX_STDOUT_BYTES/MAX_STDERR_BYTES must be positive")
	}
	if c.DefaultTimeoutSec <= 0 {
		return fmt.Errorf("config: DEFAULT_TIMEOUT_SEC must be positive")
	}
	if c.DefaultConcurrency <= 0 {
		return fmt.Errorf("config: DEFAULT_CONCURRENCY must be positive")
	}
	if c.MetricsMaxTools <= 0 {
		return fmt.Errorf("config: METRICS_MAX_TOOLS must be positive")
	}
	return nil
}

// ToolEnabled reports whether a tool named name should be enabled at
// startup given the include/exclude CSV lists: an include list, when
// non-empty, is an allow-list (everything else is excluded); the exclude
// list always removes, applied after include.
func (c Config) ToolEnabled(name string) bool {
	if len(c.ToolInclude) > 0 && !contains(c.ToolInclude, name) {
		return false
	}
	if contains(c.ToolExclude, name) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
