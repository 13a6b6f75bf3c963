// Package breaker implements the per-tool circuit breaker (C4):
// closed/open/half-open failure isolation with adaptive exponential
// recovery timeout and jittered retry.
//
// Shape grounded on mattsp1290-ag-ui/go-sdk/pkg/errors/circuit_breaker.go
// (State enum, Config struct, RWMutex-guarded state machine, Execute
// wrapping a context-bounded call). The adaptive-timeout arithmetic is
// grounded on original_source/mcp_server/circuit_breaker.py: the recovery
// timeout only grows past its initial value starting on the SECOND
// consecutive trip from closed, but always grows again on a half-open to
// open re-trip; both the recovery check and the published retry_after
// carry +/-10% jitter.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nordeim/Security-MCP-Server/internal/mcperr"
)

// State is one of the three breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the tunables for one breaker instance. Defaults match
// spec.md §4.4.
type Config struct {
	FailureThreshold  int           // default 5
	SuccessThreshold  int           // default 1 (half-open -> closed)
	MaxHalfOpenCalls  int           // default 1
	InitialRecovery   time.Duration // default 30s
	MaxRecovery       time.Duration // default 300s
	TimeoutMultiplier float64       // default 1.5
	Jitter            float64       // default 0.1 (+/-10%)
	// IsExpectedFailure classifies a returned error as one the breaker
	// should count toward failure_count. Errors for which this returns
	// false are still recorded in the recent-error ring but do not move
	// the state machine.
	// Nil means "all errors are expected".
	IsExpectedFailure func(error) bool
}

// DefaultConfig returns spec.md §4.4's defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		SuccessThreshold:  1,
		MaxHalfOpenCalls:  1,
		InitialRecovery:   30 * time.Second,
		MaxRecovery:       300 * time.Second,
		TimeoutMultiplier: 1.5,
		Jitter:            0.1,
	}
}

// RecentError is one entry in the breaker's bounded ring of recent
// failures, exposed via Stats for diagnostics.
type RecentError struct {
	At      time.Time
	Kind    mcperr.Kind
	Message string
}

const recentErrorsCap = 20

// Stats is a point-in-time snapshot of a breaker's internal counters.
type Stats struct {
	State                  State
	FailureCount           int
	ConsecutiveFailures    int
	ConsecutiveSuccesses   int
	LastFailureAt          time.Time
	CurrentRecoveryTimeout time.Duration
	HalfOpenInflight       int
	RecentErrors           []RecentError
}

// Breaker is a single per-tool circuit breaker. All state mutation happens
// under mu; no other component's lock is ever held while mu is held.
type Breaker struct {
	name string
	cfg  Config

	mu                     sync.Mutex
	state                  State
	failureCount           int
	consecutiveFailures    int
	consecutiveSuccesses   int
	lastFailureAt          time.Time
	currentRecoveryTimeout time.Duration
	halfOpenInflight       int
	tripsFromClosed        int // counts trips originating from the closed state
	recentErrors           []RecentError
}

// New creates a breaker in the closed state.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.MaxHalfOpenCalls <= 0 {
		cfg.MaxHalfOpenCalls = 1
	}
	if cfg.InitialRecovery <= 0 {
		cfg.InitialRecovery = 30 * time.Second
	}
	if cfg.MaxRecovery <= 0 {
		cfg.MaxRecovery = 300 * time.Second
	}
	if cfg.TimeoutMultiplier <= 1 {
		cfg.TimeoutMultiplier = 1.5
	}
	return &Breaker{
		name:                   name,
		cfg:                    cfg,
		state:                  StateClosed,
		currentRecoveryTimeout: cfg.InitialRecovery,
	}
}

// Name returns the breaker's owning tool name.
func (b *Breaker) Name() string { return b.name }

// IsOpen reports whether the breaker is currently refusing admission
// outright (the open state; half-open trials are not considered open).
// Used by the per-tool health check (spec.md §4.8).
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// ErrOpen is wrapped into an *mcperr.Error by Admit's caller; callers that
// only need the sentinel can check errors.Is(err, ErrOpen).
var ErrOpen = errors.New("circuit breaker open")

// Admit decides whether a call may proceed. It returns a release function
// that MUST be called exactly once with the call's outcome once the
// caller's work completes (nil error = success). If admission is refused,
// release is nil and the returned error carries a retry_after duration via
// mcperr metadata.
func (b *Breaker) Admit() (release func(err error), err error) {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailureAt) >= b.jitteredRecovery() {
			b.state = StateHalfOpen
			b.consecutiveSuccesses = 0
			b.halfOpenInflight = 0
			// fall through to half-open admission below
		} else {
			retryAfter := b.retryBackoffLocked().NextBackOff() - time.Since(b.lastFailureAt)
			if retryAfter < 0 {
				retryAfter = 0
			}
			b.mu.Unlock()
			return nil, mcperr.New(mcperr.KindCircuitOpen, "circuit breaker open for "+b.name).
				WithTool(b.name).
				WithRetry(retryAfter).
				WithMetadata("retry_after", retryAfter.Seconds())
		}
	}

	if b.state == StateHalfOpen {
		if b.halfOpenInflight >= b.cfg.MaxHalfOpenCalls {
			b.mu.Unlock()
			return nil, mcperr.New(mcperr.KindCircuitOpen, "circuit breaker half-open trial in flight for "+b.name).
				WithTool(b.name).
				WithRetry(time.Second)
		}
		b.halfOpenInflight++
	}

	state := b.state
	b.mu.Unlock()

	released := false
	return func(outcome error) {
		if released {
			return
		}
		released = true
		b.after(state, outcome)
	}, nil
}

// jitteredRecovery returns the current recovery timeout with +/-Jitter
// applied, matching circuit_breaker.py's random.uniform(-0.1, 0.1) jitter
// on the recovery check. It must be called with mu held. The jitter itself
// is computed by backoff.ExponentialBackOff's RandomizationFactor rather
// than hand-rolled math/rand arithmetic.
func (b *Breaker) jitteredRecovery() time.Duration {
	eb := b.retryBackoffLocked()
	d := eb.NextBackOff()
	if d == backoff.Stop {
		return b.currentRecoveryTimeout
	}
	return d
}

// retryBackoffLocked builds a one-shot backoff.ExponentialBackOff seeded
// with the breaker's current recovery timeout. Callers must hold mu.
func (b *Breaker) retryBackoffLocked() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.currentRecoveryTimeout
	eb.MaxInterval = b.cfg.MaxRecovery
	eb.Multiplier = b.cfg.TimeoutMultiplier
	eb.RandomizationFactor = b.cfg.Jitter
	eb.Reset()
	return eb
}

func (b *Breaker) after(admittedFrom State, outcome error) {
	expected := true
	if outcome != nil && b.cfg.IsExpectedFailure != nil {
		expected = b.cfg.IsExpectedFailure(outcome)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if admittedFrom == StateHalfOpen {
		if b.halfOpenInflight > 0 {
			b.halfOpenInflight--
		}
	}

	if outcome == nil {
		b.onSuccess(admittedFrom)
		return
	}

	kind := mcperr.KindUnknown
	if e, ok := mcperr.As(outcome); ok {
		kind = e.Kind
	}
	b.pushRecentLocked(kind, outcome.Error())

	if !expected {
		// Unexpected failures are kept in the recent-error ring but do
		// not move the state machine (spec.md §4.4).
		return
	}

	b.onFailure(admittedFrom)
}

func (b *Breaker) onSuccess(admittedFrom State) {
	b.consecutiveFailures = 0
	switch admittedFrom {
	case StateHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.currentRecoveryTimeout = b.cfg.InitialRecovery
			b.tripsFromClosed = 0
		}
	case StateClosed:
		// steady state; nothing to do beyond resetting consecutiveFailures.
	}
}

func (b *Breaker) onFailure(admittedFrom State) {
	b.failureCount++
	b.consecutiveFailures++
	b.lastFailureAt = time.Now()

	switch admittedFrom {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.tripsFromClosed++
			// The recovery timeout only grows past its initial value
			// starting on the SECOND consecutive trip from closed; the
			// very first trip keeps the initial timeout.
			if b.tripsFromClosed > 1 {
				b.growRecoveryTimeout()
			} else {
				b.currentRecoveryTimeout = b.cfg.InitialRecovery
			}
			b.state = StateOpen
		}
	case StateHalfOpen:
		// A half-open trial that fails always re-trips and always grows
		// the recovery timeout, regardless of tripsFromClosed.
		b.growRecoveryTimeout()
		b.state = StateOpen
		b.consecutiveSuccesses = 0
	}
}

func (b *Breaker) growRecoveryTimeout() {
	next := time.Duration(float64(b.currentRecoveryTimeout) * b.cfg.TimeoutMultiplier)
	if next > b.cfg.MaxRecovery {
		next = b.cfg.MaxRecovery
	}
	b.currentRecoveryTimeout = next
}

// RecordUnexpected appends an unexpected-failure entry to the recent-error
// ring without touching the state machine, for failures observed outside
// the breaker's own admitted calls.
func (b *Breaker) RecordUnexpected(kind mcperr.Kind, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushRecentLocked(kind, message)
}

func (b *Breaker) pushRecentLocked(kind mcperr.Kind, message string) {
	b.recentErrors = append(b.recentErrors, RecentError{At: time.Now(), Kind: kind, Message: message})
	if len(b.recentErrors) > recentErrorsCap {
		b.recentErrors = b.recentErrors[len(b.recentErrors)-recentErrorsCap:]
	}
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := Stats{
		State:                  b.state,
		FailureCount:           b.failureCount,
		ConsecutiveFailures:    b.consecutiveFailures,
		ConsecutiveSuccesses:   b.consecutiveSuccesses,
		LastFailureAt:          b.lastFailureAt,
		CurrentRecoveryTimeout: b.currentRecoveryTimeout,
		HalfOpenInflight:       b.halfOpenInflight,
	}
	out.RecentErrors = append(out.RecentErrors, b.recentErrors...)
	return out
}

// ForceOpen trips the breaker unconditionally, used by operator tooling.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateOpen
	b.lastFailureAt = time.Now()
}

// ForceClose resets the breaker to closed, used by operator tooling.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.consecutiveFailures = 0
	b.currentRecoveryTimeout = b.cfg.InitialRecovery
	b.tripsFromClosed = 0
}

// Execute runs fn under the breaker's admission control, applying ctx
// cancellation. It is a convenience wrapper around Admit for call sites
// that do not need to inspect the breaker state directly.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	release, err := b.Admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	release(err)
	return err
}

// RetryAfterBackoff returns a backoff.BackOff seeded with the breaker's
// current recovery timeout. It is the same cenkalti/backoff instance that
// Admit and jitteredRecovery consult internally, exported for callers
// (e.g. a retry worker) that want to schedule a retry with a conventional
// backoff.BackOff value rather than poll Admit in a loop.
func (b *Breaker) RetryAfterBackoff() backoff.BackOff {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retryBackoffLocked()
}
