// Package circuitbreaker implements the circuit breaker pattern for the
// external price sources. A source that keeps failing is skipped outright for
// a cooldown period so the fallback chain moves on without burning its
// per-call timeout on a dead endpoint.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/coinscan/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means calls are allowed
	StateClosed State = "closed"
	// StateOpen means calls are rejected until the cooldown elapses
	StateOpen State = "open"
	// StateHalfOpen means a limited number of probe calls are allowed
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when a call is rejected by an open breaker
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker tuning parameters
type Config struct {
	MaxFailures      int           // Consecutive failures before opening
	Cooldown         time.Duration // Time to wait before probing again
	HalfOpenMaxCalls int           // Probe calls allowed while half-open
}

// DefaultConfig returns conservative defaults suited to HTTP price sources
func DefaultConfig() *Config {
	return &Config{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker tracks consecutive failures for one named dependency
type CircuitBreaker struct {
	name   string
	config *Config

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenCalls    int
	openedAt         time.Time
}

// New creates a circuit breaker for the named dependency
func New(name string, config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Allow reports whether a call may proceed, transitioning open breakers to
// half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) < cb.config.Cooldown {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenCalls = 1
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	}
	return true
}

// RecordSuccess resets the breaker after a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	if cb.state != StateClosed {
		cb.transition(StateClosed)
	}
}

// RecordFailure counts a failure, opening the breaker at the threshold.
// A failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.config.MaxFailures {
		cb.openedAt = time.Now()
		cb.transition(StateOpen)
	}
}

// CurrentState returns the breaker state
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	logging.GetGlobalLogger().WithFields(map[string]interface{}{
		"breaker": cb.name,
		"from":    string(cb.state),
		"to":      string(to),
	}).Info("Circuit breaker state change")
	cb.state = to
	if to != StateHalfOpen {
		cb.halfOpenCalls = 0
	}
}
