package config

import "testing"

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
	if cfg.Transport != "stdio" || cfg.Port != 8080 || cfg.DefaultConcurrency != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestValidateRejectsBadTransport(t *testing.T) {
	cfg := Defaults()
	cfg.Transport = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad transport")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for port 0")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for port out of range")
	}
}

func TestValidateRejectsNonPositiveNumerics(t *testing.T) {
	base := Defaults()

	cfg := base
	cfg.MaxArgsLen = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero MaxArgsLen")
	}

	cfg = base
	cfg.DefaultTimeoutSec = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative DefaultTimeoutSec")
	}

	cfg = base
	cfg.MetricsMaxTools = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero MetricsMaxTools")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TRANSPORT", "http")
	t.Setenv("PORT", "9090")
	t.Setenv("TOOL_INCLUDE", "NmapTool, GobusterTool")
	t.Setenv("ALLOW_INTRUSIVE", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Transport != "http" {
		t.Fatalf("got transport %q", cfg.Transport)
	}
	if cfg.Port != 9090 {
		t.Fatalf("got port %d", cfg.Port)
	}
	if len(cfg.ToolInclude) != 2 || cfg.ToolInclude[0] != "NmapTool" {
		t.Fatalf("got tool include %v", cfg.ToolInclude)
	}
	if !cfg.AllowIntrusive {
		t.Fatal("expected allow_intrusive true")
	}
}

func TestToolEnabledIncludeExclude(t *testing.T) {
	cfg := Defaults()
	cfg.ToolInclude = []string{"NmapTool", "GobusterTool"}
	cfg.ToolExclude = []string{"GobusterTool"}

	if !cfg.ToolEnabled("NmapTool") {
		t.Fatal("expected NmapTool enabled via include list")
	}
	if cfg.ToolEnabled("GobusterTool") {
		t.Fatal("expected GobusterTool disabled via exclude list")
	}
	if cfg.ToolEnabled("SqlmapTool") {
		t.Fatal("expected SqlmapTool disabled, not in include list")
	}
}

func TestToolEnabledNoIncludeAllowsEverythingExceptExcluded(t *testing.T) {
	cfg := Defaults()
	cfg.ToolExclude = []string{"SqlmapTool"}

	if !cfg.ToolEnabled("NmapTool") {
		t.Fatal("expected NmapTool enabled with no include list")
	}
	if cfg.ToolEnabled("SqlmapTool") {
		t.Fatal("expected SqlmapTool excluded")
	}
}
