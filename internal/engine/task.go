package engine

import (
	"context"
	"time"
)

// Timeouts are the three independent tiers bounding one attempt. Zero
// disables a tier.
type Timeouts struct {
	Connect time.Duration
	Ops     time.Duration
	Overall time.Duration
}

// DeviceTask is one unit of work against one device. Immutable once handed
// to the runner.
type DeviceTask struct {
	DeviceID  uint
	Host      string
	Operation string
	Payload   map[string]any
	Timeouts  Timeouts
}

// TaskFunc executes exactly one attempt against a device. Every failure must
// surface as an error (a *TaskError for anything classified); a TaskFunc
// never reports failure through its data payload.
type TaskFunc func(ctx context.Context, task DeviceTask) (map[string]any, error)
