package health

import (
	"context"
	"testing"
	"time"
)

func healthyCheck(name string, priority Priority) Check {
	return NewCheck(name, priority, time.Second, func(ctx context.Context) Result {
		return Result{Status: StatusHealthy, Message: "ok"}
	})
}

func unhealthyCheck(name string, priority Priority) Check {
	return NewCheck(name, priority, time.Second, func(ctx context.Context) Result {
		return Result{Status: StatusUnhealthy, Message: "down"}
	})
}

func TestAggregateCriticalUnhealthyDominates(t *testing.T) {
	m := NewManager(5 * time.Second)
	m.Register(unhealthyCheck("core", PriorityCritical))
	m.Register(healthyCheck("info", PriorityInformational))

	snap := m.RunChecks(context.Background())
	if snap.OverallStatus != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", snap.OverallStatus)
	}
}

func TestAggregateImportantUnhealthyDegrades(t *testing.T) {
	m := NewManager(5 * time.Second)
	m.Register(unhealthyCheck("deps", PriorityImportant))

	snap := m.RunChecks(context.Background())
	if snap.OverallStatus != StatusDegraded {
		t.Fatalf("expected degraded, got %s", snap.OverallStatus)
	}
}

func TestAggregateAllInformationalUnhealthyDegrades(t *testing.T) {
	m := NewManager(5 * time.Second)
	m.Register(unhealthyCheck("tools", PriorityInformational))

	snap := m.RunChecks(context.Background())
	if snap.OverallStatus != StatusDegraded {
		t.Fatalf("expected degraded when every informational check fails, got %s", snap.OverallStatus)
	}
}

func TestAggregateAllHealthy(t *testing.T) {
	m := NewManager(5 * time.Second)
	m.Register(healthyCheck("a", PriorityCritical))
	m.Register(healthyCheck("b", PriorityInformational))

	snap := m.RunChecks(context.Background())
	if snap.OverallStatus != StatusHealthy {
		t.Fatalf("expected healthy, got %s", snap.OverallStatus)
	}
}

func TestRunChecksNoOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := NewCheck("slow", PriorityInformational, time.Second, func(ctx context.Context) Result {
		close(started)
		<-release
		return Result{Status: StatusHealthy}
	})

	m := NewManager(5 * time.Second)
	m.Register(slow)

	resultCh := make(chan SystemHealth, 1)
	go func() { resultCh <- m.RunChecks(context.Background()) }()
	<-started

	cached := m.RunChecks(context.Background())
	if !cached.Cached {
		t.Fatal("expected a concurrent RunChecks call to return the cached-in-progress result")
	}

	close(release)
	<-resultCh
}

func TestGetStatusReturnsCachedWithinInterval(t *testing.T) {
	m := NewManager(5 * time.Second)
	m.Register(healthyCheck("a", PriorityInformational))

	first := m.GetStatus(context.Background())
	second := m.GetStatus(context.Background())
	if !second.Cached {
		t.Fatal("expected second call within the interval to be served from cache")
	}
	if first.Timestamp != second.Timestamp {
		t.Fatal("expected cached result to carry the original timestamp")
	}
}

func TestCheckExecuteTimesOut(t *testing.T) {
	c := NewCheck("wedged", PriorityInformational, 10*time.Millisecond, func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Result{Status: StatusHealthy}
	})
	result := c.Execute(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected timeout to report unhealthy, got %+v", result)
	}
}
