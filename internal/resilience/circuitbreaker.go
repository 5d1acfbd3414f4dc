// Package resilience provides circuit breaker and provider failover primitives
// for the remote speech backends voxclone depends on.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open) that keeps a dead synthesis or recognition
// server from stalling every request. [FallbackGroup] composes several
// instances of one provider type with per-entry circuit breakers so that a
// failing primary is bypassed in favour of healthy fallbacks.
// [TranscriberFallback] and [SynthesizerFallback] are the typed wrappers the
// service wires in.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has elapsed since the breaker opened.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successful probes close the breaker; a single failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and state-change callbacks, usually the
	// provider name ("f5", "whisper").
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before it admits
	// probes. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probe calls admitted while half-open
	// and the number of successes needed to close again. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the mutex
	// released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now. Tests use it to step through timeouts.
	Now func() time.Time
}

// Counts is a snapshot of a breaker's bookkeeping.
type Counts struct {
	// ConsecutiveFailures since the last success or state change.
	ConsecutiveFailures int
	// Probes admitted and ProbeSuccesses seen in the current half-open phase.
	Probes, ProbeSuccesses int
	// Rejected counts calls refused with ErrCircuitOpen over the breaker's
	// lifetime.
	Rejected int64
}

// CircuitBreaker implements the three-state circuit breaker pattern.
//
// Every state change starts a new generation. A call admitted in one
// generation whose result arrives after a transition is not counted, so a
// slow request from before [CircuitBreaker.Reset] cannot re-open a breaker
// that was just closed.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	openedAt   time.Time
	counts     Counts
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          cfg.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 3
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Name returns the label the breaker was configured with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// IsCallerError reports whether err was caused by the caller giving up
// (context cancellation or deadline) rather than by the backend. Such errors
// do not count against a breaker.
func IsCallerError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Execute runs fn if the breaker admits it and returns fn's error. Rejected
// calls return [ErrCircuitOpen] without running fn. Errors for which
// [IsCallerError] holds count as neither success nor failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(gen, err)
	return err
}

// admit decides whether a call may run and returns the generation it runs in.
func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	from, to := cb.advance(cb.now())
	defer cb.notifyAfterUnlock(from, to)
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		cb.counts.Rejected++
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if cb.counts.Probes >= cb.halfOpenMax {
			cb.counts.Rejected++
			return 0, ErrCircuitOpen
		}
		cb.counts.Probes++
	}
	return cb.generation, nil
}

// settle accounts for the outcome of a call admitted in generation gen.
func (cb *CircuitBreaker) settle(gen uint64, err error) {
	if IsCallerError(err) {
		return
	}

	cb.mu.Lock()
	from := cb.state
	if gen == cb.generation {
		if err != nil {
			cb.onFailure()
		} else {
			cb.onSuccess()
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notifyAfterUnlock(from, to)
}

func (cb *CircuitBreaker) onFailure() {
	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		cb.counts.ConsecutiveFailures++
		if cb.counts.ConsecutiveFailures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.counts.ProbeSuccesses++
		if cb.counts.ProbeSuccesses >= cb.halfOpenMax {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.counts.ConsecutiveFailures = 0
	}
}

// advance moves an open breaker whose timeout has elapsed to half-open.
// Must be called with cb.mu held; the transition is returned for
// notification.
func (cb *CircuitBreaker) advance(now time.Time) (from, to State) {
	from = cb.state
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.resetTimeout {
		cb.setState(StateHalfOpen)
	}
	return from, cb.state
}

// setState switches to s, clears the per-phase counters and starts a new
// generation. Must be called with cb.mu held.
func (cb *CircuitBreaker) setState(s State) {
	if s == cb.state {
		return
	}
	prev := cb.state
	cb.state = s
	cb.generation++
	cb.counts = Counts{Rejected: cb.counts.Rejected}
	if s == StateOpen {
		cb.openedAt = cb.now()
	}
	log := slog.With("breaker", cb.name, "from", prev, "to", s)
	if s == StateOpen {
		log.Warn("resilience: circuit opened")
	} else {
		log.Info("resilience: circuit state changed")
	}
}

func (cb *CircuitBreaker) notifyAfterUnlock(from, to State) {
	if cb.onChange != nil && from != to {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	from, to := cb.advance(cb.now())
	cb.mu.Unlock()
	cb.notifyAfterUnlock(from, to)
	return to
}

// Counts returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset forces the breaker back to [StateClosed]. Calls still in flight
// from before the reset are not counted.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	if from != StateClosed {
		cb.setState(StateClosed)
	} else {
		// Still closed: start a new generation so in-flight results are
		// dropped.
		cb.generation++
		cb.counts = Counts{Rejected: cb.counts.Rejected}
	}
	cb.mu.Unlock()
	cb.notifyAfterUnlock(from, StateClosed)
}
