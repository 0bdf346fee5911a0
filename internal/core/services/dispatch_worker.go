package services

import (
	"context"
	"sync"

	"github.com/netfleet/backend/internal/engine"
	"github.com/netfleet/backend/internal/infrastructure/logger"
)

// DispatchWorker consumes queued batches and drives each one through the
// bridge's blocking entry point. Workers are plain goroutines standing in
// for external queue consumers; the bridge contract is the same either way:
// device work is always submitted, never run on an ad-hoc scheduler.
type DispatchWorker struct {
	service *BatchService
	bridge  *engine.Bridge
	logger  *logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewDispatchWorker(service *BatchService, bridge *engine.Bridge, log *logger.Logger) *DispatchWorker {
	return &DispatchWorker{service: service, bridge: bridge, logger: log}
}

// Start launches n consumer goroutines.
func (w *DispatchWorker) Start(n int) {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.consume(ctx, i)
	}
	w.logger.Infow("dispatch_workers_started", "count", n)
}

func (w *DispatchWorker) consume(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case qb, ok := <-w.service.Queue():
			if !ok {
				return
			}
			w.logger.Infow("dispatch_worker_pickup",
				"worker", id,
				"batch_id", qb.Job.BatchID,
				"devices", len(qb.Tasks),
			)
			_, err := w.bridge.Submit(ctx, func(ctx context.Context) (any, error) {
				return nil, w.service.Execute(ctx, qb)
			})
			if err != nil {
				w.logger.Errorw("dispatch_batch_failed",
					"worker", id,
					"batch_id", qb.Job.BatchID,
					"error", err,
				)
			}
		}
	}
}

// Stop halts consumption and waits for in-flight batches to finish.
func (w *DispatchWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("dispatch workers stopped")
}
