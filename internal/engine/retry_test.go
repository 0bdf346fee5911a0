package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableKinds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	retryable := []ErrorKind{KindConnectTimeout, KindOpsTimeout, KindCommandFailure}
	for _, kind := range retryable {
		assert.True(t, p.Retryable(kind), "kind %s should be retryable", kind)
	}

	fatal := []ErrorKind{KindAuthFailure, KindOTPRequired, KindCancelled, KindValidation, KindOverallTimeout}
	for _, kind := range fatal {
		assert.False(t, p.Retryable(kind), "kind %s should not be retryable", kind)
	}
}

func TestDecideExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}
	bo := p.NewBackOff()

	d := p.Decide(KindConnectTimeout, 1, bo)
	require.True(t, d.Retry)
	d = p.Decide(KindConnectTimeout, 2, bo)
	require.True(t, d.Retry)

	// Attempt 3 is the last one allowed.
	d = p.Decide(KindConnectTimeout, 3, bo)
	assert.False(t, d.Retry)
}

func TestDecideFatalKindStopsImmediately(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}
	bo := p.NewBackOff()

	d := p.Decide(KindAuthFailure, 1, bo)
	assert.False(t, d.Retry)

	d = p.Decide(KindValidation, 1, bo)
	assert.False(t, d.Retry)
}

func TestConstantBackOffDelays(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 50 * time.Millisecond, Exponential: false}
	bo := p.NewBackOff()

	for attempt := 1; attempt < 4; attempt++ {
		d := p.Decide(KindOpsTimeout, attempt, bo)
		require.True(t, d.Retry)
		assert.Equal(t, 50*time.Millisecond, d.Delay)
	}
}

func TestExponentialBackOffDelays(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Exponential: true}
	bo := p.NewBackOff()

	d := p.Decide(KindOpsTimeout, 1, bo)
	require.True(t, d.Retry)
	assert.Equal(t, 100*time.Millisecond, d.Delay)

	d = p.Decide(KindOpsTimeout, 2, bo)
	require.True(t, d.Retry)
	assert.Equal(t, 200*time.Millisecond, d.Delay)

	d = p.Decide(KindOpsTimeout, 3, bo)
	require.True(t, d.Retry)
	assert.Equal(t, 400*time.Millisecond, d.Delay)
}

func TestExponentialBackOffCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 20, BaseDelay: 10 * time.Millisecond, Exponential: true}
	bo := p.NewBackOff()

	var last time.Duration
	for attempt := 1; attempt < 20; attempt++ {
		d := p.Decide(KindCommandFailure, attempt, bo)
		require.True(t, d.Retry)
		last = d.Delay
	}
	assert.LessOrEqual(t, last, 100*time.Millisecond)
}

func TestBackOffStateIsPerTask(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Exponential: true}
	a := p.NewBackOff()
	b := p.NewBackOff()

	p.Decide(KindOpsTimeout, 1, a)
	p.Decide(KindOpsTimeout, 2, a)

	// b has not been consulted; its first delay is still the base.
	d := p.Decide(KindOpsTimeout, 1, b)
	require.True(t, d.Retry)
	assert.Equal(t, 100*time.Millisecond, d.Delay)
}
