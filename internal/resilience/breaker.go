// Package resilience holds reliability wrappers for calls that leave the
// process.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned in place of calling the downstream while the
// breaker is cooling down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a circuit breaker for a single downstream dependency, here the
// agent worker. After maxFailures consecutive failures it rejects calls
// outright for the cooldown period, then lets a probe call through; the
// probe's outcome decides whether the circuit closes again or re-opens.
type Breaker struct {
	mu       sync.Mutex
	state    state
	failures int
	openedAt time.Time

	maxFailures int
	cooldown    time.Duration

	now func() time.Time // for testing
}

// NewBreaker creates a circuit breaker that opens after maxFailures
// consecutive failures and stays open for the given cooldown.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is open, and feeds the outcome back
// into the breaker state.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == stateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = stateHalfOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.state = stateOpen
			b.openedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.state = stateClosed
	return nil
}
