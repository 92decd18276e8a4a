package gateway

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed allows all calls.
	StateClosed State = iota
	// StateOpen rejects calls without a network attempt.
	StateOpen
	// StateHalfOpen allows exactly one trial call.
	StateHalfOpen
)

// String returns the state name for logs and metrics.
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

// Snapshot is a point-in-time view of breaker state.
type Snapshot struct {
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
}

// Breaker is a circuit breaker guarding the brokerage and data APIs.
// Admission check and state mutation happen under one lock so concurrent
// callers cannot both claim the half-open trial slot.
type Breaker struct {
	mu sync.Mutex

	state         State
	failureCount  int
	lastFailure   time.Time
	trialInFlight bool

	failureThreshold int
	recoveryTimeout  time.Duration

	now          func() time.Time
	onTransition func(from, to State)
}

// NewBreaker creates a breaker in the Closed state.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// OnTransition registers a callback fired on every state change. The
// callback runs outside the breaker lock.
func (b *Breaker) OnTransition(fn func(from, to State)) *Breaker {
	b.onTransition = fn
	return b
}

// Allow admits or rejects a call. In the Open state a call is rejected
// until recoveryTimeout has elapsed since the last failure; the first call
// after that transitions to HalfOpen and is admitted as the single trial.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil

	case StateOpen:
		if b.now().Sub(b.lastFailure) <= b.recoveryTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		from := b.state
		b.state = StateHalfOpen
		b.trialInFlight = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		b.mu.Unlock()
		return nil
	}

	b.mu.Unlock()
	return nil
}

// RecordSuccess records a successful call. Success during a half-open
// trial closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.trialInFlight = false
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failureCount = 0
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// RecordFailure records a failed call, stamps the failure time, and opens
// the breaker when the threshold is reached (or immediately when a
// half-open trial fails).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	b.trialInFlight = false
	b.failureCount++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.failureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// Snapshot returns the current breaker state for reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:        b.state,
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
