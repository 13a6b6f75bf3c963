package breaker

import (
	"testing"
	"time"
)

func admitAndRelease(t *testing.T, b *Breaker, outcome error) {
	t.Helper()
	release, err := b.Admit()
	if err != nil {
		t.Fatalf("unexpected admission refusal: %v", err)
	}
	release(outcome)
}

func TestBreakerTripsAfterFailureThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.InitialRecovery = time.Hour // keep it open for the duration of the test
	b := New("test", cfg)

	for i := 0; i < 2; i++ {
		admitAndRelease(t, b, errFailure)
	}
	if b.Stats().State != StateClosed {
		t.Fatalf("breaker tripped early: %+v", b.Stats())
	}
	admitAndRelease(t, b, errFailure)
	if b.Stats().State != StateOpen {
		t.Fatalf("expected breaker to trip open, got %+v", b.Stats())
	}

	if _, err := b.Admit(); err == nil {
		t.Fatal("expected admission to be refused while open")
	}
}

func TestBreakerFirstTripKeepsInitialRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.InitialRecovery = 30 * time.Second
	cfg.Jitter = 0
	b := New("test", cfg)

	admitAndRelease(t, b, errFailure)
	stats := b.Stats()
	if stats.State != StateOpen {
		t.Fatalf("expected open, got %+v", stats)
	}
	if stats.CurrentRecoveryTimeout != 30*time.Second {
		t.Fatalf("first trip should keep initial recovery timeout, got %v", stats.CurrentRecoveryTimeout)
	}
}

func TestBreakerSecondTripGrowsRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.InitialRecovery = 10 * time.Second
	cfg.MaxRecovery = 300 * time.Second
	cfg.TimeoutMultiplier = 1.5
	cfg.Jitter = 0
	b := New("test", cfg)

	// First trip from closed: keeps initial.
	admitAndRelease(t, b, errFailure)
	// Force back to closed to simulate a fresh consecutive trip cycle
	// without going through the real recovery wait.
	b.mu.Lock()
	b.state = StateClosed
	b.failureCount = 0
	b.mu.Unlock()

	// Second trip from closed: should grow past initial.
	admitAndRelease(t, b, errFailure)
	stats := b.Stats()
	if stats.CurrentRecoveryTimeout <= 10*time.Second {
		t.Fatalf("expected recovery timeout to grow on second trip, got %v", stats.CurrentRecoveryTimeout)
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 1
	cfg.InitialRecovery = 10 * time.Millisecond
	cfg.Jitter = 0
	b := New("test", cfg)

	admitAndRelease(t, b, errFailure)
	if b.Stats().State != StateOpen {
		t.Fatal("expected open after trip")
	}

	time.Sleep(20 * time.Millisecond)
	admitAndRelease(t, b, nil)
	if b.Stats().State != StateClosed {
		t.Fatalf("expected breaker to close after half-open success, got %+v", b.Stats())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.InitialRecovery = 10 * time.Millisecond
	cfg.Jitter = 0
	b := New("test", cfg)

	admitAndRelease(t, b, errFailure)
	time.Sleep(20 * time.Millisecond)
	admitAndRelease(t, b, errFailure)

	stats := b.Stats()
	if stats.State != StateOpen {
		t.Fatalf("expected re-trip to open, got %+v", stats)
	}
	if stats.CurrentRecoveryTimeout <= 10*time.Millisecond {
		t.Fatal("expected recovery timeout to grow on half-open re-trip")
	}
}

func TestBreakerMaxHalfOpenCallsLimitsConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.MaxHalfOpenCalls = 1
	cfg.InitialRecovery = 10 * time.Millisecond
	cfg.Jitter = 0
	b := New("test", cfg)

	admitAndRelease(t, b, errFailure)
	time.Sleep(20 * time.Millisecond)

	release, err := b.Admit()
	if err != nil {
		t.Fatalf("expected first half-open trial admitted: %v", err)
	}
	if _, err := b.Admit(); err == nil {
		t.Fatal("expected second concurrent half-open trial to be refused")
	}
	release(nil)
}

func TestIsOpenReflectsState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.InitialRecovery = time.Hour
	b := New("test", cfg)

	if b.IsOpen() {
		t.Fatal("fresh breaker should not report open")
	}
	admitAndRelease(t, b, errFailure)
	if !b.IsOpen() {
		t.Fatal("expected breaker to report open after tripping")
	}
}

func TestRetryAfterBackoffReflectsCurrentRecoveryTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.InitialRecovery = 30 * time.Second
	cfg.Jitter = 0
	b := New("test", cfg)

	admitAndRelease(t, b, errFailure)

	d := b.RetryAfterBackoff().NextBackOff()
	if d != 30*time.Second {
		t.Fatalf("expected retry-after backoff seeded with current recovery timeout, got %v", d)
	}
}

var errFailure = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
