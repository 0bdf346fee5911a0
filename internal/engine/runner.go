package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/netfleet/backend/internal/infrastructure/logger"
)

// ProbeEvent reports slot and retry-wait transitions for one task worker.
// Used by tests to verify the slot is free while a task waits to retry.
type ProbeEvent struct {
	DeviceID uint
	Kind     ProbeKind
	Attempt  int
	At       time.Time
}

type ProbeKind string

const (
	ProbeSlotAcquired ProbeKind = "slot-acquired"
	ProbeSlotReleased ProbeKind = "slot-released"
	ProbeRetryWaitBeg ProbeKind = "retry-wait-begin"
	ProbeRetryWaitEnd ProbeKind = "retry-wait-end"
)

type RunnerConfig struct {
	MaxConcurrency int64
	Policy         RetryPolicy
	Logger         *logger.Logger
	Probe          func(ProbeEvent)
}

// Runner executes a set of device tasks with at most MaxConcurrency
// sessions in flight. The retry policy is applied per task, and the backoff
// sleep happens while holding no concurrency slot.
type Runner struct {
	sem    *semaphore.Weighted
	policy RetryPolicy
	log    *logger.Logger
	probe  func(ProbeEvent)
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("runner: max_concurrency must be >= 1, got %d", cfg.MaxConcurrency)
	}
	if cfg.Policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("runner: max_attempts must be >= 1, got %d", cfg.Policy.MaxAttempts)
	}
	return &Runner{
		sem:    semaphore.NewWeighted(cfg.MaxConcurrency),
		policy: cfg.Policy,
		log:    cfg.Logger,
		probe:  cfg.Probe,
	}, nil
}

// Run drives every task to a terminal TaskResult and returns once all have
// one. A single device's failure never surfaces as an error here; only
// caller cancellation does, alongside the partial results.
func (r *Runner) Run(ctx context.Context, tasks []DeviceTask, fn TaskFunc) ([]TaskResult, error) {
	results := make([]TaskResult, len(tasks))

	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.runTask(ctx, tasks[i], fn)
		}(i)
	}
	wg.Wait()

	return results, ctx.Err()
}

func (r *Runner) runTask(ctx context.Context, task DeviceTask, fn TaskFunc) TaskResult {
	start := time.Now()
	bo := r.policy.NewBackOff()

	var attempts []AttemptRecord

	for attempt := 1; ; attempt++ {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return r.terminal(task, start, attempts, nil, &ErrorInfo{
				Kind:    KindCancelled,
				Stage:   StageOverall,
				Message: "cancelled while waiting for a session slot",
			}, attempt-1)
		}
		r.emit(task, ProbeSlotAcquired, attempt)

		attemptStart := time.Now()
		data, terr := r.runAttempt(ctx, task, fn)

		r.sem.Release(1)
		r.emit(task, ProbeSlotReleased, attempt)

		rec := AttemptRecord{
			Attempt:    attempt,
			StartedAt:  attemptStart,
			FinishedAt: time.Now(),
			Success:    terr == nil,
		}
		if terr != nil {
			info := terr.Info
			rec.Error = &info
		}
		attempts = append(attempts, rec)

		if terr == nil {
			return r.terminal(task, start, attempts, data, nil, attempt)
		}

		decision := r.policy.Decide(terr.Info.Kind, attempt, bo)
		if !decision.Retry {
			info := terr.Info
			return r.terminal(task, start, attempts, nil, &info, attempt)
		}

		if r.log != nil {
			r.log.Warnw("task_attempt_retry",
				"device_id", task.DeviceID,
				"host", task.Host,
				"operation", task.Operation,
				"attempt", attempt,
				"kind", terr.Info.Kind,
				"delay_ms", decision.Delay.Milliseconds(),
			)
		}

		// The slot is already released; only this task waits.
		r.emit(task, ProbeRetryWaitBeg, attempt)
		timer := time.NewTimer(decision.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.emit(task, ProbeRetryWaitEnd, attempt)
			return r.terminal(task, start, attempts, nil, &ErrorInfo{
				Kind:    KindCancelled,
				Stage:   StageOverall,
				Message: "cancelled during retry backoff",
			}, attempt)
		case <-timer.C:
		}
		r.emit(task, ProbeRetryWaitEnd, attempt)
	}
}

// runAttempt executes one attempt under the overall timeout tier and
// normalizes every failure to a *TaskError. This is the single point where
// raw errors from task functions are interpreted.
func (r *Runner) runAttempt(ctx context.Context, task DeviceTask, fn TaskFunc) (data map[string]any, terr *TaskError) {
	actx := ctx
	var cancel context.CancelFunc
	if task.Timeouts.Overall > 0 {
		actx, cancel = context.WithTimeout(ctx, task.Timeouts.Overall)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			terr = NewTaskError(KindCommandFailure, StageOps, fmt.Sprintf("task panicked: %v", rec))
		}
	}()

	data, err := fn(actx, task)
	if err == nil {
		return data, nil
	}

	var te *TaskError
	if errors.As(err, &te) {
		return nil, te
	}

	switch {
	case ctx.Err() != nil:
		return nil, WrapTaskError(KindCancelled, StageOverall, "attempt cancelled", err)
	case actx.Err() == context.DeadlineExceeded:
		return nil, WrapTaskError(KindOverallTimeout, StageOverall,
			fmt.Sprintf("attempt exceeded %s", task.Timeouts.Overall), err)
	default:
		return nil, WrapTaskError(KindCommandFailure, StageOps, "task failed", err)
	}
}

func (r *Runner) terminal(task DeviceTask, start time.Time, attempts []AttemptRecord, data map[string]any, errInfo *ErrorInfo, attemptCount int) TaskResult {
	res := TaskResult{
		DeviceID: task.DeviceID,
		Success:  errInfo == nil,
		Data:     data,
		Error:    errInfo,
		Attempts: attempts,
		Meta: ResultMeta{
			Host:     task.Host,
			DeviceID: task.DeviceID,
			Elapsed:  time.Since(start),
			Attempts: attemptCount,
		},
	}
	if errInfo != nil {
		res.Meta.Stage = errInfo.Stage
	}
	return res
}

func (r *Runner) emit(task DeviceTask, kind ProbeKind, attempt int) {
	if r.probe != nil {
		r.probe(ProbeEvent{DeviceID: task.DeviceID, Kind: kind, Attempt: attempt, At: time.Now()})
	}
}
