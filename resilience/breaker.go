// Package resilience provides the failure-isolation primitives guarding
// calls to external TTS backends: a circuit breaker and retry with
// exponential backoff.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
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

// CircuitBreaker isolates a flaky backend. Consecutive failures open the
// breaker; after the timeout a single trial call is allowed. The trial
// closing or reopening the breaker depends on its outcome.
type CircuitBreaker struct {
	mu sync.Mutex

	state         BreakerState
	failures      int
	lastFailure   time.Time
	trialInFlight bool

	threshold int
	timeout   time.Duration

	now func() time.Time // injected for tests
}

// NewCircuitBreaker creates a closed breaker that opens after threshold
// consecutive failures and cools down for timeout before a trial call.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// CanExecute reports whether a call may proceed. When the cool-down has
// elapsed the breaker moves to half-open and admits exactly one trial
// until OnSuccess or OnFailure resolves it.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.timeout {
			b.state = StateHalfOpen
			b.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// OnSuccess records a successful call, closing the breaker and resetting
// the failure counter.
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trialInFlight = false
	b.lastFailure = time.Time{}
}

// OnFailure records a failed call. Reaching the threshold, or failing the
// half-open trial, opens the breaker.
func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	b.trialInFlight = false

	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
