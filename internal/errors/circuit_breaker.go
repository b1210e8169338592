package errors

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// Breaker defaults.
const (
	ErrorThreshold      = 0.5
	MinRequests         = 10
	TimeoutDuration     = 30 * time.Second
	HalfOpenMaxRequests = 3
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var (
	// ErrCircuitOpen is returned without calling fn while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// errProbeBusy rejects calls beyond the half-open probe budget.
	errProbeBusy = errors.New("circuit breaker is probing")
)

// CircuitBreaker stops calling the LLM provider once its error rate over at least
// MinRequests calls reaches ErrorThreshold. After TimeoutDuration it lets
// HalfOpenMaxRequests probes through; one failed probe reopens it, all succeeding
// closes it. Cancellations by the caller are not counted as failures.
type CircuitBreaker struct {
	name     string
	now      func() time.Time
	onChange func(name string, from, to State)

	mu       sync.Mutex
	state    State
	calls    int
	failures int
	inFlight int
	openedAt time.Time
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	cb := &CircuitBreaker{name: name, now: time.Now}
	metrics.RecordBreakerState(name, int(StateClosed))
	return cb
}

// OnStateChange registers a callback invoked under the breaker lock on every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

// State returns the current state without advancing an expired open period.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Call runs fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < TimeoutDuration {
			return ErrCircuitOpen
		}
		cb.moveLocked(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.calls+cb.inFlight >= HalfOpenMaxRequests {
			return errProbeBusy
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	cb.calls++
	if err != nil {
		cb.failures++
	}

	switch cb.state {
	case StateHalfOpen:
		if err != nil {
			cb.moveLocked(StateOpen)
		} else if cb.calls >= HalfOpenMaxRequests {
			cb.moveLocked(StateClosed)
		}
	case StateClosed:
		if cb.calls >= MinRequests && float64(cb.failures)/float64(cb.calls) >= ErrorThreshold {
			cb.moveLocked(StateOpen)
		}
	}
}

// moveLocked switches state and starts a fresh count window.
func (cb *CircuitBreaker) moveLocked(to State) {
	from := cb.state
	cb.state = to
	cb.calls, cb.failures, cb.inFlight = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if from == to {
		return
	}
	metrics.RecordBreakerState(cb.name, int(to))
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}
