package observability

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

// Circuit states.
const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// CircuitBreaker guards a flaky downstream dependency (the target model
// provider, the judge service) so that a sustained run of failures stops
// dispatching new calls for a cooldown period instead of piling up
// timeouts.
type CircuitBreaker struct {
	mu sync.RWMutex

	name             string
	maxFailures      int
	timeout          time.Duration
	successThreshold float64

	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a circuit breaker identified by name (used only
// for logging), opening after maxFailures consecutive failures and probing
// again after timeout in the half-open state.
func NewCircuitBreaker(name string, maxFailures int, timeout time.Duration, successThreshold float64) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		timeout:          timeout,
		successThreshold: successThreshold,
		state:            StateClosed,
	}
}

// Allow reports whether a call should be attempted, flipping Open to
// HalfOpen once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) < cb.timeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.failureCount = 0
		cb.successCount = 0
		slog.Info("circuit breaker half-open", slog.String("name", cb.name))
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++
	if cb.state == StateClosed {
		cb.failureCount = 0
	}
	if cb.state == StateHalfOpen {
		total := cb.successCount + cb.failureCount
		if float64(cb.successCount) >= float64(total)*cb.successThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
			slog.Info("circuit breaker closed", slog.String("name", cb.name))
		}
	}
}

// RecordFailure reports a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened", slog.String("name", cb.name), slog.Int("failures", cb.failureCount))
		}
	case StateHalfOpen:
		cb.state = StateOpen
		slog.Warn("circuit breaker reopened on half-open failure", slog.String("name", cb.name))
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
