package health

import (
	"context"
	"testing"
)

type fakeToolLister map[string]string

func (f fakeToolLister) EnabledCommandNames() map[string]string { return f }

func TestToolAvailabilityCheckHealthyWhenAllResolve(t *testing.T) {
	check := NewToolAvailabilityCheck(fakeToolLister{"NmapTool": "sh"})
	result := check.Execute(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", result)
	}
}

func TestToolAvailabilityCheckDegradedOnMissingBinary(t *testing.T) {
	check := NewToolAvailabilityCheck(fakeToolLister{"GhostTool": "no-such-binary-xyz"})
	result := check.Execute(context.Background())
	if result.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %+v", result)
	}
	missing, ok := result.Metadata["missing_tools"].([]string)
	if !ok || len(missing) != 1 || missing[0] != "GhostTool" {
		t.Fatalf("expected GhostTool in missing_tools metadata, got %+v", result.Metadata)
	}
}

func TestDependencyCheckDegradedOnMissingBinary(t *testing.T) {
	check := NewDependencyCheck([]string{"sh", "no-such-binary-xyz"})
	result := check.Execute(context.Background())
	if result.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %+v", result)
	}
}

func TestDependencyCheckHealthyWhenAllPresent(t *testing.T) {
	check := NewDependencyCheck([]string{"sh"})
	result := check.Execute(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", result)
	}
}

type fakeBreaker struct{ open bool }

func (f fakeBreaker) IsOpen() bool { return f.open }

func TestToolCheckHealthyWhenResolvableAndClosed(t *testing.T) {
	check := NewToolCheck("NmapTool", "sh", fakeBreaker{open: false})
	result := check.Execute(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", result)
	}
}

func TestToolCheckDegradedWhenBreakerOpen(t *testing.T) {
	check := NewToolCheck("NmapTool", "sh", fakeBreaker{open: true})
	result := check.Execute(context.Background())
	if result.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %+v", result)
	}
}

func TestToolCheckDegradedWhenBinaryMissing(t *testing.T) {
	check := NewToolCheck("GhostTool", "no-such-binary-xyz", fakeBreaker{open: false})
	result := check.Execute(context.Background())
	if result.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %+v", result)
	}
}
