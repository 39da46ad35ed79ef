package api

import (
	"errors"
	"sync"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// CircuitState is the breaker position
type CircuitState int

const (
	// CircuitClosed lets every call through
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cool-down elapses
	CircuitOpen
	// CircuitHalfOpen lets a probe through; its outcome closes or reopens
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the platform while the breaker is open
var ErrCircuitOpen = errors.New("platform circuit breaker open")

// CircuitBreaker stops hammering the platform API after consecutive failures
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	coolDown    time.Duration
	state       CircuitState
	failures    int
	lastFailure time.Time
	clock       shared.Clock
}

// NewCircuitBreaker opens after threshold consecutive failures and probes
// again once coolDown has passed. A nil clock means the real clock.
func NewCircuitBreaker(threshold int, coolDown time.Duration, clock shared.Clock) *CircuitBreaker {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{threshold: threshold, coolDown: coolDown, clock: clock}
}

// Call runs fn unless the breaker is open. fn runs without the lock held,
// since it may sleep between retries.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.clock.Now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
			cb.state = CircuitOpen
		}
		return err
	}
	cb.failures = 0
	cb.state = CircuitClosed
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.clock.Now().Sub(cb.lastFailure) < cb.coolDown {
		return false
	}
	cb.state = CircuitHalfOpen
	return true
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
