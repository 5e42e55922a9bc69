package orchestrator

import (
	"sync"
	"time"
)

// CircuitBreaker guards the LLM client: after failureThreshold consecutive
// agent failures (a success resets the count), further agent invocations
// are short-circuited until the recovery timeout has passed, rather than spending an LLM call on a provider that
// is clearly down. Carried forward from the teacher's ambient resilience
// posture (§12 of the expanded spec) even though spec.md itself does not
// name a circuit breaker.
//
// Grounded on
// _examples/itsneelabh-gomind/pkg/orchestration/orchestrator.go's
// CircuitBreaker (closed/open/half-open via a recovery timeout).
type CircuitBreaker struct {
	mu               sync.RWMutex
	failureThreshold int
	recoveryTimeout  time.Duration
	failureCount     int
	lastFailureTime  time.Time
	state            string
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: threshold,
		recoveryTimeout:  timeout,
		state:            "closed",
	}
}

func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if cb.state == "open" {
		return time.Since(cb.lastFailureTime) > cb.recoveryTimeout
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == "closed" {
		cb.failureCount = 0
		return
	}
	if cb.state == "open" && time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
		cb.state = "closed"
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailureTime = time.Now()
	if cb.failureCount >= cb.failureThreshold {
		cb.state = "open"
	}
}
