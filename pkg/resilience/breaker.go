// Package resilience provides generic guards for fallible remote calls:
// a three-state circuit breaker, an exponential-backoff retrier, and the
// Guard composition rule tying the two together.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed is normal operation; calls pass through.
	StateClosed State = iota

	// StateOpen rejects calls immediately without invoking the operation.
	StateOpen

	// StateHalfOpen allows a single probe call after the recovery timeout.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// OpenError is returned when a call is rejected because the circuit is open.
type OpenError struct {
	// Name is the breaker name, identifying the guarded dependency.
	Name string
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q is open", e.Name)
}

// IsOpen reports whether err is an open-circuit rejection.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// Name identifies the guarded dependency in logs and errors.
	Name string

	// FailureThreshold is the number of consecutive counted failures that
	// opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a probe
	// call is allowed through.
	RecoveryTimeout time.Duration

	// IsFailure decides whether an error counts toward the threshold.
	// Errors it rejects propagate without moving the state machine.
	// When nil, every error counts.
	IsFailure func(error) bool

	// Logger receives state transition logs. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// CircuitBreaker is a stateful guard around a remote dependency. One
// long-lived instance guards one dependency; it must be constructed once
// and shared, since a fresh instance resets the failure accounting.
//
// The zero threshold and timeout get sensible defaults (5 failures, 30s).
// All methods are safe for concurrent use.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	isFailure        func(error) bool
	log              zerolog.Logger

	// now is stubbed in tests.
	now func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a circuit breaker in the CLOSED state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(error) bool { return true }
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		isFailure:        cfg.IsFailure,
		log:              cfg.Logger,
		now:              time.Now,
		state:            StateClosed,
	}
}

// Execute runs op through the breaker. When the circuit is open and the
// recovery timeout has not elapsed, op is not invoked and an *OpenError is
// returned. Otherwise op runs and its result drives the state machine.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := op(ctx)
	cb.observe(err)
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Reset forces the breaker back to CLOSED with a zero failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.recoveryTimeout {
		cb.log.Info().Str("circuit", cb.name).Msg("circuit attempting recovery (HALF_OPEN)")
		cb.state = StateHalfOpen
		return nil
	}

	return &OpenError{Name: cb.name}
}

func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.log.Info().Str("circuit", cb.name).Msg("circuit recovered (CLOSED)")
		}
		cb.state = StateClosed
		cb.failureCount = 0
		return
	}

	if !cb.isFailure(err) {
		return
	}

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
		if cb.state != StateOpen {
			cb.log.Warn().
				Str("circuit", cb.name).
				Int("failures", cb.failureCount).
				Msg("circuit opened")
		}
		cb.state = StateOpen
	}
}
