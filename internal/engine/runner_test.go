package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleet/backend/internal/infrastructure/logger"
)

func makeTasks(n int) []DeviceTask {
	tasks := make([]DeviceTask, n)
	for i := range tasks {
		tasks[i] = DeviceTask{
			DeviceID:  uint(i + 1),
			Host:      "device.example",
			Operation: "collect",
		}
	}
	return tasks
}

func TestRunnerRejectsBadConfig(t *testing.T) {
	_, err := NewRunner(RunnerConfig{MaxConcurrency: 0, Policy: RetryPolicy{MaxAttempts: 1}})
	require.Error(t, err)

	_, err = NewRunner(RunnerConfig{MaxConcurrency: 1, Policy: RetryPolicy{MaxAttempts: 0}})
	require.Error(t, err)
}

func TestRunnerOneResultPerTask(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 4,
		Policy:         RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	tasks := makeTasks(10)
	results, err := r.Run(context.Background(), tasks, func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		if task.DeviceID%3 == 0 {
			return nil, NewTaskError(KindAuthFailure, StageConnect, "bad credentials")
		}
		return map[string]any{"output": "ok"}, nil
	})
	require.NoError(t, err)
	require.Len(t, results, 10)

	var ok, failed int
	for i, res := range results {
		assert.Equal(t, tasks[i].DeviceID, res.DeviceID)
		if res.Success {
			ok++
			assert.Nil(t, res.Error)
		} else {
			failed++
			require.NotNil(t, res.Error)
			assert.Equal(t, KindAuthFailure, res.Error.Kind)
		}
	}
	assert.Equal(t, 7, ok)
	assert.Equal(t, 3, failed)
}

func TestRunnerConcurrencyCeiling(t *testing.T) {
	const maxConcurrency = 3

	var inFlight, peak int64
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: maxConcurrency,
		Policy:         RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	results, err := r.Run(context.Background(), makeTasks(10), func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return nil, nil
	})
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(maxConcurrency))
	assert.Equal(t, int64(maxConcurrency), atomic.LoadInt64(&peak))
}

// A retrying task must not occupy a session slot during its backoff sleep:
// with max_concurrency=1 and one task stuck in long backoff, every other
// task still gets through.
func TestRunnerRetryWaitReleasesSlot(t *testing.T) {
	var mu sync.Mutex
	var events []ProbeEvent

	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 1,
		Policy:         RetryPolicy{MaxAttempts: 2, BaseDelay: 150 * time.Millisecond},
		Logger:         logger.Nop(),
		Probe: func(ev ProbeEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	var flakyCalls int32
	tasks := makeTasks(4)
	start := time.Now()
	results, err := r.Run(context.Background(), tasks, func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		if task.DeviceID == 1 {
			if atomic.AddInt32(&flakyCalls, 1) == 1 {
				return nil, NewTaskError(KindConnectTimeout, StageConnect, "no route")
			}
		}
		return nil, nil
	})
	require.NoError(t, err)

	for _, res := range results {
		assert.True(t, res.Success, "device %d", res.DeviceID)
	}
	assert.Equal(t, 2, results[0].Meta.Attempts)

	// The three healthy tasks finished during device 1's backoff, so the
	// whole run takes roughly one backoff, not four.
	assert.Less(t, time.Since(start), 2*150*time.Millisecond)

	// Slot release precedes the retry wait for the flaky device.
	var released, waitBegan time.Time
	for _, ev := range events {
		if ev.DeviceID != 1 || ev.Attempt != 1 {
			continue
		}
		switch ev.Kind {
		case ProbeSlotReleased:
			released = ev.At
		case ProbeRetryWaitBeg:
			waitBegan = ev.At
		}
	}
	require.False(t, released.IsZero())
	require.False(t, waitBegan.IsZero())
	assert.False(t, waitBegan.Before(released), "retry wait began before the slot was released")
}

func TestRunnerRetriesUntilSuccess(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 2,
		Policy:         RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	var calls int32
	results, err := r.Run(context.Background(), makeTasks(1), func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, NewTaskError(KindOpsTimeout, StageOps, "slow device")
		}
		return map[string]any{"output": "done"}, nil
	})
	require.NoError(t, err)

	res := results[0]
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Meta.Attempts)
	require.Len(t, res.Attempts, 3)
	assert.False(t, res.Attempts[0].Success)
	assert.False(t, res.Attempts[1].Success)
	assert.True(t, res.Attempts[2].Success)
	require.NotNil(t, res.Attempts[0].Error)
	assert.Equal(t, KindOpsTimeout, res.Attempts[0].Error.Kind)
}

func TestRunnerExhaustedRetriesKeepLastError(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 1,
		Policy:         RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	results, err := r.Run(context.Background(), makeTasks(1), func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		return nil, NewTaskError(KindOpsTimeout, StageOps, "still slow")
	})
	require.NoError(t, err)

	res := results[0]
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindOpsTimeout, res.Error.Kind)
	assert.Equal(t, StageOps, res.Error.Stage)
	assert.Equal(t, StageOps, res.Meta.Stage)
	assert.Equal(t, 2, res.Meta.Attempts)
}

func TestRunnerCancelDuringBackoff(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 1,
		Policy:         RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results, err := r.Run(ctx, makeTasks(1), func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		return nil, NewTaskError(KindConnectTimeout, StageConnect, "no route")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)

	res := results[0]
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindCancelled, res.Error.Kind)
	assert.Less(t, time.Since(start), time.Second, "cancellation should interrupt the backoff sleep")
}

func TestRunnerOverallTimeoutAttribution(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 1,
		Policy:         RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	tasks := makeTasks(1)
	tasks[0].Timeouts.Overall = 30 * time.Millisecond

	results, err := r.Run(context.Background(), tasks, func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	res := results[0]
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindOverallTimeout, res.Error.Kind)
	assert.Equal(t, StageOverall, res.Error.Stage)
}

// A task function that already classified its failure keeps its own kind
// and stage even when the overall deadline fired at the same time.
func TestRunnerClassifiedErrorWinsOverDeadline(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 1,
		Policy:         RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	tasks := makeTasks(1)
	tasks[0].Timeouts.Overall = 20 * time.Millisecond

	results, err := r.Run(context.Background(), tasks, func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		<-ctx.Done()
		return nil, WrapTaskError(KindOpsTimeout, StageOps, "command deadline", ctx.Err())
	})
	require.NoError(t, err)

	res := results[0]
	require.NotNil(t, res.Error)
	assert.Equal(t, KindOpsTimeout, res.Error.Kind)
	assert.Equal(t, StageOps, res.Error.Stage)
}

func TestRunnerNormalizesUnclassifiedErrors(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 1,
		Policy:         RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	results, err := r.Run(context.Background(), makeTasks(1), func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		return nil, errors.New("something broke")
	})
	require.NoError(t, err)

	res := results[0]
	require.NotNil(t, res.Error)
	assert.Equal(t, KindCommandFailure, res.Error.Kind)
	assert.Equal(t, "something broke", res.Error.Detail)
}

func TestRunnerRecoversPanic(t *testing.T) {
	r, err := NewRunner(RunnerConfig{
		MaxConcurrency: 1,
		Policy:         RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)

	results, err := r.Run(context.Background(), makeTasks(1), func(ctx context.Context, task DeviceTask) (map[string]any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	res := results[0]
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindCommandFailure, res.Error.Kind)
	assert.Contains(t, res.Error.Message, "boom")
}
