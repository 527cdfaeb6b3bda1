package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := New("test", &Config{MaxFailures: 3, Cooldown: time.Minute, HalfOpenMaxCalls: 1})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		assert.True(t, cb.Allow(), "below threshold the breaker stays closed")
	}

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.CurrentState())
	assert.False(t, cb.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New("test", &Config{MaxFailures: 3, Cooldown: time.Minute, HalfOpenMaxCalls: 1})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.CurrentState(), "successes break the consecutive-failure streak")
}

func TestHalfOpenProbeAfterCooldown(t *testing.T) {
	cb := New("test", &Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond, HalfOpenMaxCalls: 1})

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow(), "cooldown elapsed: one probe is allowed")
	assert.Equal(t, StateHalfOpen, cb.CurrentState())
	assert.False(t, cb.Allow(), "only one probe while half-open")
}

func TestHalfOpenProbeOutcomes(t *testing.T) {
	cb := New("test", &Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond, HalfOpenMaxCalls: 1})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.CurrentState(), "a failed probe reopens immediately")

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.CurrentState(), "a successful probe closes the breaker")
	assert.True(t, cb.Allow())
}
