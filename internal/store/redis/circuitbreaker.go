package redis

import (
	"fmt"
	"sync"
	"time"

	"marketlens/internal/model"
)

// State is the breaker position. The numeric values are exported as the
// breaker gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned while the breaker rejects calls. It wraps
// model.ErrUpstream so callers treat it like any unavailable dependency.
var ErrCircuitOpen = fmt.Errorf("%w: redis circuit breaker is open", model.ErrUpstream)

// CircuitBreaker trips after threshold consecutive failures and rejects
// calls for cooldown. After that exactly one probe is let through: success
// closes the circuit, failure trips it again.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     State
	streak    int
	threshold int
	cooldown  time.Duration
	reopenAt  time.Time
	now       func() time.Time

	// OnStateChange observes transitions (optional). It runs with the
	// breaker locked and must not call back into it.
	OnStateChange func(from, to State)
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: max(threshold, 1), cooldown: cooldown, now: time.Now}
}

// Execute runs fn unless the circuit is open, and feeds its outcome back.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.settle(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Before(cb.reopenAt) {
			return false
		}
		cb.moveTo(StateHalfOpen)
		return true
	}
	return false
}

func (cb *CircuitBreaker) settle(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case cb.state == StateOpen:
		// late result from a call admitted before the trip
	case ok:
		cb.streak = 0
		cb.moveTo(StateClosed)
	case cb.state == StateHalfOpen:
		cb.trip()
	default:
		cb.streak++
		if cb.streak >= cb.threshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.streak = 0
	cb.reopenAt = cb.now().Add(cb.cooldown)
	cb.moveTo(StateOpen)
}

func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// CurrentState reports the breaker position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
