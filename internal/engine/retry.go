package engine

import (
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next one. The decision consults only the error kind and
// the attempt number; stage and detail never influence it.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Exponential bool
}

type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// retryableKinds are the transient failures worth another attempt. Auth and
// OTP failures will not heal on retry; cancellation and validation end the
// task immediately; an overall-timeout already consumed the full attempt
// budget once.
var retryableKinds = map[ErrorKind]bool{
	KindConnectTimeout: true,
	KindOpsTimeout:     true,
	KindCommandFailure: true,
}

func (p RetryPolicy) Retryable(kind ErrorKind) bool {
	return retryableKinds[kind]
}

// NewBackOff returns the per-task delay source. Each task worker owns one so
// exponential growth tracks that task's attempts alone.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.BaseDelay)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = 10 * p.BaseDelay
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// Decide evaluates one failed attempt. bo must be the task's own BackOff
// from NewBackOff; its state advances only when a retry is granted.
func (p RetryPolicy) Decide(kind ErrorKind, attempt int, bo backoff.BackOff) RetryDecision {
	if attempt >= p.MaxAttempts || !p.Retryable(kind) {
		return RetryDecision{}
	}
	delay := bo.NextBackOff()
	if delay == backoff.Stop {
		return RetryDecision{}
	}
	return RetryDecision{Retry: true, Delay: delay}
}
