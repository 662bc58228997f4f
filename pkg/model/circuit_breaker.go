package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/odvcencio/diffapply/pkg/logging"
)

// ErrCircuitOpen is returned without contacting the service while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// CircuitClosed allows requests to pass through
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks all requests
	CircuitOpen
	// CircuitHalfOpen allows a probe request to check if the service recovered
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
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

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening the circuit
	MaxFailures uint32
	// ResetTimeout is the duration to wait before transitioning from open to half-open
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns the defaults used by NewClient.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a remote service after repeated failures. It
// does not retry; an open circuit fails fast until ResetTimeout elapses.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state           CircuitState
	failureCount    uint32
	lastFailureTime time.Time
	now             func() time.Time

	logger  *logging.Logger
	service string

	mu sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// DefaultCircuitBreaker creates a circuit breaker with default settings
func DefaultCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreaker(DefaultCircuitBreakerConfig())
}

// SetLogger routes state transitions to logger, tagged with service.
func (cb *CircuitBreaker) SetLogger(logger *logging.Logger, service string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.logger = logger
	cb.service = service
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state.String()
}

// Call runs fn unless the circuit is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()

	if cb.state == CircuitOpen {
		since := cb.now().Sub(cb.lastFailureTime)
		if since >= cb.config.ResetTimeout {
			cb.state = CircuitHalfOpen
			cb.failureCount = 0
			cb.transition(CircuitOpen, fmt.Sprintf("reset timeout %v elapsed", cb.config.ResetTimeout))
		} else {
			cb.mu.Unlock()
			return fmt.Errorf("%w (last failure: %v ago)", ErrCircuitOpen, since.Round(time.Millisecond))
		}
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

// recordFailure must be called with lock held
func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.transition(CircuitHalfOpen, "probe request failed")
	case CircuitClosed:
		if cb.failureCount >= cb.config.MaxFailures {
			cb.state = CircuitOpen
			cb.transition(CircuitClosed, fmt.Sprintf("%d consecutive failures", cb.failureCount))
		}
	}
}

// recordSuccess must be called with lock held
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failureCount = 0
		cb.lastFailureTime = time.Time{}
		cb.transition(CircuitHalfOpen, "service recovered")
	case CircuitClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) transition(from CircuitState, reason string) {
	_ = cb.logger.Warn(logging.CategoryNetwork, "circuit_breaker.transition", reason, map[string]any{
		"service": cb.service,
		"from":    from.String(),
		"to":      cb.state.String(),
	})
}

// FailureCount returns the current consecutive failure count.
func (cb *CircuitBreaker) FailureCount() uint32 {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// LastFailureTime returns the time of the last failure.
func (cb *CircuitBreaker) LastFailureTime() time.Time {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastFailureTime
}
