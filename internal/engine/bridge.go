package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/netfleet/backend/internal/infrastructure/logger"
)

var (
	// ErrReentrantSubmit is returned when work already running on a bridge
	// calls that same bridge's blocking Submit. Blocking from inside would
	// wedge the caller against its own scheduler, so it is detected and
	// refused instead of deadlocking.
	ErrReentrantSubmit = errors.New("bridge: blocking Submit called from bridge-managed work, use SubmitAsync")

	ErrBridgeClosed = errors.New("bridge: closed")
)

type bridgeCtxKey struct{}

// BridgeFunc is one unit of work admitted to the bridge.
type BridgeFunc func(ctx context.Context) (any, error)

type bridgeJob struct {
	ctx context.Context
	fn  BridgeFunc
	fut *Future
}

// Bridge is the single long-lived owner of all device-session work in the
// process. Ordinary goroutines hand work in through Submit and block until
// it completes; work already running on the bridge uses SubmitAsync. Both
// entry points funnel through the same dispatcher, which starts lazily on
// first use and lives until Close.
type Bridge struct {
	log *logger.Logger

	startOnce sync.Once
	jobs      chan bridgeJob
	quit      chan struct{}

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func NewBridge(log *logger.Logger) *Bridge {
	return &Bridge{
		log:  log,
		jobs: make(chan bridgeJob),
		quit: make(chan struct{}),
	}
}

// Future is the handle for work admitted with SubmitAsync.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the work completes or ctx is cancelled. Cancellation of
// the wait does not cancel the underlying work.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports completion without blocking.
func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) complete(val any, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Submit enqueues fn onto the bridge and blocks the calling goroutine until
// it completes. Safe for any number of concurrent callers. Calling Submit
// from work that is itself running on this bridge fails fast with
// ErrReentrantSubmit.
func (b *Bridge) Submit(ctx context.Context, fn BridgeFunc) (any, error) {
	if b.fromBridge(ctx) {
		return nil, ErrReentrantSubmit
	}
	fut, err := b.enqueue(ctx, fn)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// SubmitAsync schedules fn on the bridge and returns immediately with a
// handle. Intended for callers already running bridge-managed work.
func (b *Bridge) SubmitAsync(ctx context.Context, fn BridgeFunc) (*Future, error) {
	return b.enqueue(ctx, fn)
}

func (b *Bridge) enqueue(ctx context.Context, fn BridgeFunc) (*Future, error) {
	b.start()

	// Admission is accounted here, under the same lock Close takes before it
	// waits, so a job handed to the dispatcher is always visible to Close.
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBridgeClosed
	}
	b.pending.Add(1)
	b.mu.Unlock()

	job := bridgeJob{ctx: ctx, fn: fn, fut: &Future{done: make(chan struct{})}}
	select {
	case b.jobs <- job:
		return job.fut, nil
	case <-b.quit:
		b.pending.Done()
		return nil, ErrBridgeClosed
	case <-ctx.Done():
		b.pending.Done()
		return nil, ctx.Err()
	}
}

// start launches the dispatcher on first use.
func (b *Bridge) start() {
	b.startOnce.Do(func() {
		go b.dispatch()
		if b.log != nil {
			b.log.Info("bridge dispatcher started")
		}
	})
}

func (b *Bridge) dispatch() {
	for {
		select {
		case job := <-b.jobs:
			go b.run(job)
		case <-b.quit:
			return
		}
	}
}

func (b *Bridge) run(job bridgeJob) {
	defer b.pending.Done()
	defer func() {
		if rec := recover(); rec != nil {
			if b.log != nil {
				b.log.Errorw("bridge_job_panic", "panic", rec)
			}
			job.fut.complete(nil, NewTaskError(KindCommandFailure, StageOps, "bridge job panicked"))
		}
	}()

	ctx := context.WithValue(job.ctx, bridgeCtxKey{}, b)
	val, err := job.fn(ctx)
	job.fut.complete(val, err)
}

// fromBridge reports whether ctx belongs to work this bridge is running.
// A context from a different bridge instance does not trip the guard.
func (b *Bridge) fromBridge(ctx context.Context) bool {
	v, _ := ctx.Value(bridgeCtxKey{}).(*Bridge)
	return v == b
}

// Close stops admission and waits for in-flight work to finish.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.quit)
	b.mu.Unlock()

	b.pending.Wait()
	if b.log != nil {
		b.log.Info("bridge dispatcher stopped")
	}
}
