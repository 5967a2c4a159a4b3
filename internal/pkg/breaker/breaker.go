// Package breaker implements a three-state circuit breaker used to gate
// calls against an unreliable upstream, typically the email provider API.
//
// Each protected resource gets its own *Breaker, injected into whatever
// component makes the calls. There is no process-wide registry; ownership
// is explicit in the wiring.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrOpen is returned by Execute when the circuit is open and the call was
// rejected without being attempted.
var ErrOpen = errors.New("circuit breaker is open")

// IsOpen reports whether err is a rejection from an open circuit.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation; calls pass through.
	StateOpen                  // Tripped; calls are rejected immediately.
	StateHalfOpen              // Probing; calls allowed to test recovery.
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls breaker thresholds and timing. Zero values fall back to
// the defaults below.
type Config struct {
	// Name identifies the protected resource in logs and hooks.
	Name string

	// FailureThreshold is the consecutive-failure count that trips the
	// circuit open. Default 5.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count in half-open that
	// closes the circuit. Default 2.
	SuccessThreshold int

	// ResetTimeout is how long the circuit stays open before allowing a
	// probe. Default 60s.
	ResetTimeout time.Duration

	// OnStateChange fires on every transition. It runs with the breaker
	// lock held and must not call back into the breaker. Default logs the
	// change.
	OnStateChange func(name string, from, to State)

	// Now supplies the clock. Tests inject a fake; default time.Now.
	Now func() time.Time
}

// Breaker is a mutex-guarded three-state circuit breaker.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration
	onStateChange    func(name string, from, to State)
	now              func() time.Time

	mu                sync.Mutex
	state             State
	failures          int
	halfOpenSuccesses int
	openedAt          time.Time
}

// New creates a closed breaker from cfg, applying defaults for zero fields.
func New(cfg Config) *Breaker {
	b := &Breaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		resetTimeout:     cfg.ResetTimeout,
		onStateChange:    cfg.OnStateChange,
		now:              cfg.Now,
		state:            StateClosed,
	}
	if b.name == "" {
		b.name = "default"
	}
	if b.failureThreshold <= 0 {
		b.failureThreshold = 5
	}
	if b.successThreshold <= 0 {
		b.successThreshold = 2
	}
	if b.resetTimeout <= 0 {
		b.resetTimeout = 60 * time.Second
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.onStateChange == nil {
		b.onStateChange = func(name string, from, to State) {
			log.Printf("[Breaker] %s: %s -> %s", name, from, to)
		}
	}
	return b
}

// Name returns the resource name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn under the breaker. If the circuit is open and the reset
// timeout has not elapsed, fn is not invoked and ErrOpen is returned. fn's
// error is returned as-is after the outcome is recorded.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err == nil)
	return err
}

// State returns the current state, applying the open -> half-open time
// transition first. Counters are not modified.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker to closed and zeroes all counters regardless of
// the current state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpenSuccesses = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// beforeCall decides whether the call may proceed.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	if b.state == StateOpen {
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	return nil
}

// afterCall records the outcome of a permitted call.
func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.successThreshold {
			b.failures = 0
			b.halfOpenSuccesses = 0
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// A probe failed; go straight back to open with a fresh timeout.
		b.halfOpenSuccesses = 0
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// maybeHalfOpen performs the lazy open -> half-open transition once the
// reset timeout has elapsed. Caller holds b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.halfOpenSuccesses = 0
		b.transition(StateHalfOpen)
	}
}

// transition changes state and fires the hook. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}
