package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move breaker time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	b := NewBreaker(threshold, recovery)
	b.now = clock.now
	return b, clock
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.Snapshot().State, "not yet at threshold")
	}

	require.NoError(t, b.Allow())
	b.RecordFailure()

	snap := b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 5, snap.FailureCount)

	// Next call is rejected without a network attempt.
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.Snapshot().State)

	// Still inside the recovery timeout: rejected.
	clock.advance(time.Minute)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	// Past the timeout: exactly one trial is admitted.
	clock.advance(time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.Snapshot().State)

	// A second caller during the trial is rejected.
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	// Trial success closes the breaker and resets the count.
	b.RecordSuccess()
	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
	assert.NoError(t, b.Allow())
}

func TestBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.Snapshot().State)

	clock.advance(time.Minute + time.Second)
	require.NoError(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, StateOpen, b.Snapshot().State)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerTransitionCallback(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	var transitions []string
	b.OnTransition(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	clock.advance(2 * time.Minute)
	require.NoError(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}
