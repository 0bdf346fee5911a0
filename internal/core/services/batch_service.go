package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netfleet/backend/internal/config"
	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/domain"
	"github.com/netfleet/backend/internal/engine"
	"github.com/netfleet/backend/internal/infrastructure/logger"
)

// ProgressEvent is pushed to websocket subscribers as a batch advances.
type ProgressEvent struct {
	BatchID  string           `json:"batch_id"`
	Type     string           `json:"type"` // attempt | batch-finished
	DeviceID uint             `json:"device_id,omitempty"`
	Host     string           `json:"host,omitempty"`
	Success  bool             `json:"success"`
	Kind     engine.ErrorKind `json:"code,omitempty"`
	At       time.Time        `json:"at"`
}

// QueuedBatch is one expanded batch waiting for a dispatch worker. Tasks and
// credentials are fully resolved at submission time; execution reads no
// shared mutable state.
type QueuedBatch struct {
	Job      *domain.BatchJob
	Tasks    []engine.DeviceTask
	Creds    map[uint]ports.SessionCredentials
	Settings config.EngineSettings
}

type liveBatch struct {
	cancel      context.CancelFunc
	subscribers map[chan ProgressEvent]struct{}
}

type BatchService struct {
	batches  ports.BatchRepository
	devices  ports.DeviceRepository
	timeline ports.TimelineRepository
	deviceSv ports.DeviceService
	ops      *OperationService
	otp      *OTPCache
	engCfg   config.EngineConfig
	logger   *logger.Logger

	queue chan *QueuedBatch

	mu   sync.Mutex
	live map[string]*liveBatch
}

type BatchServiceConfig struct {
	BatchRepo     ports.BatchRepository
	DeviceRepo    ports.DeviceRepository
	TimelineRepo  ports.TimelineRepository
	DeviceService ports.DeviceService
	Operations    *OperationService
	OTPCache      *OTPCache
	Engine        config.EngineConfig
	Logger        *logger.Logger
	QueueSize     int
}

func NewBatchService(cfg BatchServiceConfig) *BatchService {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &BatchService{
		batches:  cfg.BatchRepo,
		devices:  cfg.DeviceRepo,
		timeline: cfg.TimelineRepo,
		deviceSv: cfg.DeviceService,
		ops:      cfg.Operations,
		otp:      cfg.OTPCache,
		engCfg:   cfg.Engine,
		logger:   cfg.Logger,
		queue:    make(chan *QueuedBatch, queueSize),
		live:     make(map[string]*liveBatch),
	}
}

// Queue exposes the dispatch queue to the worker pool.
func (s *BatchService) Queue() <-chan *QueuedBatch { return s.queue }

func (s *BatchService) SubmitBatch(ctx context.Context, input ports.SubmitBatchInput) (*domain.BatchJob, error) {
	if !input.Operation.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrBatchInvalidInput, input.Operation)
	}
	if len(input.DeviceIDs) == 0 {
		return nil, fmt.Errorf("%w: no target devices", ErrBatchInvalidInput)
	}

	deviceIDs := dedupe(input.DeviceIDs)
	skip := make(map[uint]struct{}, len(input.SkipDeviceIDs))
	for _, id := range input.SkipDeviceIDs {
		skip[id] = struct{}{}
	}

	var targetIDs []uint
	for _, id := range deviceIDs {
		if _, skipped := skip[id]; !skipped {
			targetIDs = append(targetIDs, id)
		}
	}
	if len(targetIDs) == 0 {
		return nil, fmt.Errorf("%w: every device is excluded by skip_device_ids", ErrBatchInvalidInput)
	}

	targets, err := s.devices.GetByIDs(ctx, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	if len(targets) != len(targetIDs) {
		return nil, fmt.Errorf("%w: %d of %d target devices not found",
			ErrBatchInvalidInput, len(targetIDs)-len(targets), len(targetIDs))
	}

	job := &domain.BatchJob{
		BatchID:       uuid.New().String(),
		Operation:     input.Operation,
		Status:        domain.BatchStatusPending,
		Payload:       input.Payload,
		DeviceIDs:     deviceIDs,
		SkipDeviceIDs: input.SkipDeviceIDs,
		ResumeOf:      input.ResumeOf,
		TotalDevices:  len(targetIDs),
	}

	// OTP gate: the whole batch is refused before any session opens.
	otpCodes, blocked := s.gateOTP(targets)
	if len(blocked) > 0 {
		otpErr := &OTPRequiredError{Devices: blocked}
		job.Status = domain.BatchStatusFailed
		job.Error = otpErr.Error()
		if err := s.batches.Create(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to persist batch: %w", err)
		}
		s.logEvent(ctx, job, domain.EventTypeBatchFailed, domain.EventStatusFailed, otpErr.Error())
		return job, otpErr
	}

	creds, err := s.resolveCredentials(ctx, targets, otpCodes)
	if err != nil {
		return nil, err
	}

	settings := s.engCfg.ForOperation(string(input.Operation))
	tasks := buildTasks(targets, input.Operation, input.Payload, settings)

	if err := s.batches.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}

	eventType := domain.EventTypeBatchSubmitted
	if input.ResumeOf != "" {
		eventType = domain.EventTypeBatchResumed
	}
	s.logEvent(ctx, job, eventType, domain.EventStatusPending,
		fmt.Sprintf("batch %s submitted: %s on %d devices", job.BatchID, job.Operation, job.TotalDevices))

	select {
	case s.queue <- &QueuedBatch{Job: job, Tasks: tasks, Creds: creds, Settings: settings}:
	default:
		job.Status = domain.BatchStatusFailed
		job.Error = "dispatch queue full"
		_ = s.batches.Update(ctx, job)
		return nil, fmt.Errorf("%w: %d jobs already waiting", ErrBatchQueueFull, cap(s.queue))
	}

	s.logger.Infow("batch_submitted",
		"batch_id", job.BatchID,
		"operation", job.Operation,
		"devices", job.TotalDevices,
		"resume_of", job.ResumeOf,
	)
	return job, nil
}

// gateOTP collects the cached codes for every OTP-gated target, or the list
// of devices blocking the batch.
func (s *BatchService) gateOTP(targets []domain.Device) (map[uint]string, []BlockedDevice) {
	codes := make(map[uint]string)
	var blocked []BlockedDevice
	for _, d := range targets {
		if !d.RequiresOTP {
			continue
		}
		code, ok := s.otp.Get(d.CredentialGroup)
		if !ok {
			blocked = append(blocked, BlockedDevice{
				DeviceID:        d.ID,
				Host:            d.Host,
				CredentialGroup: d.CredentialGroup,
			})
			continue
		}
		codes[d.ID] = code
	}
	return codes, blocked
}

func (s *BatchService) resolveCredentials(ctx context.Context, targets []domain.Device, otpCodes map[uint]string) (map[uint]ports.SessionCredentials, error) {
	creds := make(map[uint]ports.SessionCredentials, len(targets))
	for _, d := range targets {
		user, password, privateKey, err := s.deviceSv.GetDeviceAuth(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credentials for device %d (%s): %w", d.ID, d.Host, err)
		}
		creds[d.ID] = ports.SessionCredentials{
			Host:       d.Host,
			Port:       d.SSHPort,
			User:       user,
			Password:   password,
			PrivateKey: privateKey,
			OTPCode:    otpCodes[d.ID],
		}
	}
	return creds, nil
}

func buildTasks(targets []domain.Device, op domain.Operation, payload domain.JSONB, settings config.EngineSettings) []engine.DeviceTask {
	tasks := make([]engine.DeviceTask, 0, len(targets))
	for _, d := range targets {
		taskPayload := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			taskPayload[k] = v
		}
		taskPayload["platform"] = string(d.Platform)
		tasks = append(tasks, engine.DeviceTask{
			DeviceID:  d.ID,
			Host:      d.Host,
			Operation: string(op),
			Payload:   taskPayload,
			Timeouts: engine.Timeouts{
				Connect: settings.ConnectTimeout,
				Ops:     settings.OpsTimeout,
				Overall: settings.OverallTimeout,
			},
		})
	}
	return tasks
}

// Execute drives one queued batch to completion. Called by a dispatch
// worker through the bridge's blocking entry point.
func (s *BatchService) Execute(ctx context.Context, qb *QueuedBatch) error {
	job := qb.Job

	runCtx, cancel := context.WithCancel(ctx)
	s.track(job.BatchID, cancel)
	defer s.untrack(job.BatchID)

	now := time.Now()
	job.Status = domain.BatchStatusRunning
	job.StartedAt = &now
	if err := s.batches.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark batch running: %w", err)
	}
	s.logEvent(ctx, job, domain.EventTypeBatchStarted, domain.EventStatusPending,
		fmt.Sprintf("batch %s started", job.BatchID))

	runner, err := engine.NewRunner(engine.RunnerConfig{
		MaxConcurrency: int64(qb.Settings.MaxConcurrency),
		Policy: engine.RetryPolicy{
			MaxAttempts: qb.Settings.MaxAttempts,
			BaseDelay:   qb.Settings.RetryBaseDelay,
			Exponential: qb.Settings.RetryExponential,
		},
		Logger: s.logger,
	})
	if err != nil {
		job.Status = domain.BatchStatusFailed
		job.Error = err.Error()
		_ = s.batches.Update(ctx, job)
		return err
	}

	inner := s.ops.TaskFunc(job.BatchID, qb.Creds)
	fn := func(ctx context.Context, task engine.DeviceTask) (map[string]any, error) {
		data, err := inner(ctx, task)
		s.publishAttempt(job.BatchID, task, err)
		return data, err
	}

	results, runErr := runner.Run(runCtx, qb.Tasks, fn)

	finished := time.Now()
	job.FinishedAt = &finished
	job.DurationMs = finished.Sub(*job.StartedAt).Milliseconds()

	records := make([]domain.DeviceResult, 0, len(results))
	for _, res := range results {
		if res.Success {
			job.SuccessCount++
		} else {
			job.FailureCount++
		}
		records = append(records, toDeviceResult(job.BatchID, res))
	}
	if err := s.batches.CreateResults(ctx, records); err != nil {
		s.logger.Errorw("batch_results_persist_failed", "batch_id", job.BatchID, "error", err)
	}

	switch {
	case runErr != nil:
		job.Status = domain.BatchStatusCancelled
		job.Error = runErr.Error()
		s.logEvent(ctx, job, domain.EventTypeBatchFailed, domain.EventStatusFailed,
			fmt.Sprintf("batch %s cancelled after %d/%d devices", job.BatchID, job.SuccessCount, job.TotalDevices))
	default:
		job.Status = domain.BatchStatusCompleted
		s.logEvent(ctx, job, domain.EventTypeBatchCompleted, domain.EventStatusSuccess,
			fmt.Sprintf("batch %s completed: %d succeeded, %d failed", job.BatchID, job.SuccessCount, job.FailureCount))
	}
	if err := s.batches.Update(ctx, job); err != nil {
		s.logger.Errorw("batch_update_failed", "batch_id", job.BatchID, "error", err)
	}

	s.publish(job.BatchID, ProgressEvent{
		BatchID: job.BatchID,
		Type:    "batch-finished",
		Success: job.FailureCount == 0 && job.Status == domain.BatchStatusCompleted,
		At:      time.Now(),
	})

	s.logger.Infow("batch_finished",
		"batch_id", job.BatchID,
		"status", job.Status,
		"success", job.SuccessCount,
		"failure", job.FailureCount,
		"duration_ms", job.DurationMs,
	)
	return nil
}

func (s *BatchService) ResumeBatch(ctx context.Context, batchID string) (*domain.BatchJob, error) {
	prior, err := s.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, ErrBatchNotFound
	}
	switch prior.Status {
	case domain.BatchStatusCompleted, domain.BatchStatusFailed, domain.BatchStatusCancelled:
	default:
		return nil, ErrBatchNotResumable
	}

	succeeded, err := s.batches.GetSucceededDeviceIDs(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior results: %w", err)
	}

	// Devices skipped in the prior run were successes of an even earlier
	// run; they stay skipped.
	skip := append([]uint{}, prior.SkipDeviceIDs...)
	for _, id := range succeeded {
		if !prior.SkipDeviceIDs.Contains(id) {
			skip = append(skip, id)
		}
	}

	return s.SubmitBatch(ctx, ports.SubmitBatchInput{
		DeviceIDs:     prior.DeviceIDs,
		Operation:     prior.Operation,
		Payload:       prior.Payload,
		SkipDeviceIDs: skip,
		ResumeOf:      prior.BatchID,
	})
}

func (s *BatchService) CancelBatch(ctx context.Context, batchID string) error {
	s.mu.Lock()
	lb, ok := s.live[batchID]
	s.mu.Unlock()
	if !ok {
		return ErrBatchNotRunning
	}
	lb.cancel()
	s.logger.Infow("batch_cancel_requested", "batch_id", batchID)
	return nil
}

func (s *BatchService) GetBatch(ctx context.Context, batchID string) (*domain.BatchJob, error) {
	job, err := s.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, ErrBatchNotFound
	}
	return job, nil
}

func (s *BatchService) GetBatches(ctx context.Context, limit int) ([]domain.BatchJob, error) {
	return s.batches.GetAll(ctx, limit)
}

func (s *BatchService) GetReport(ctx context.Context, batchID string) (*ports.BatchReport, error) {
	job, err := s.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, ErrBatchNotFound
	}
	results, err := s.batches.GetResults(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch results: %w", err)
	}

	report := &ports.BatchReport{
		BatchID:      job.BatchID,
		Operation:    job.Operation,
		Status:       job.Status,
		Total:        job.TotalDevices,
		SuccessCount: job.SuccessCount,
		FailureCount: job.FailureCount,
		Results:      results,
		DurationMs:   job.DurationMs,
		Failures:     []ports.DeviceFailure{},
	}
	for _, r := range results {
		if r.Success {
			continue
		}
		report.Failures = append(report.Failures, ports.DeviceFailure{
			DeviceID: r.DeviceID,
			Host:     r.Host,
			Kind:     r.ErrorKind,
			Stage:    r.ErrorStage,
			Message:  r.ErrorMessage,
		})
	}
	return report, nil
}

// Subscribe registers a progress listener for a batch. The returned func
// must be called to unsubscribe.
func (s *BatchService) Subscribe(batchID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)

	s.mu.Lock()
	lb, ok := s.live[batchID]
	if !ok {
		lb = &liveBatch{subscribers: make(map[chan ProgressEvent]struct{})}
		s.live[batchID] = lb
	}
	lb.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		if lb, ok := s.live[batchID]; ok {
			delete(lb.subscribers, ch)
		}
		s.mu.Unlock()
	}
}

func (s *BatchService) track(batchID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ok := s.live[batchID]
	if !ok {
		lb = &liveBatch{subscribers: make(map[chan ProgressEvent]struct{})}
		s.live[batchID] = lb
	}
	lb.cancel = cancel
}

func (s *BatchService) untrack(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, batchID)
}

func (s *BatchService) publishAttempt(batchID string, task engine.DeviceTask, err error) {
	ev := ProgressEvent{
		BatchID:  batchID,
		Type:     "attempt",
		DeviceID: task.DeviceID,
		Host:     task.Host,
		Success:  err == nil,
		At:       time.Now(),
	}
	if te, ok := err.(*engine.TaskError); ok {
		ev.Kind = te.Info.Kind
	}
	s.publish(batchID, ev)
}

func (s *BatchService) publish(batchID string, ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ok := s.live[batchID]
	if !ok {
		return
	}
	for ch := range lb.subscribers {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}

func (s *BatchService) logEvent(ctx context.Context, job *domain.BatchJob, eventType string, status domain.EventStatus, message string) {
	event := &domain.TimelineEvent{
		Type:         eventType,
		Status:       status,
		Message:      message,
		ResourceID:   &job.ID,
		ResourceType: "batch",
		Meta: domain.JSONB{
			"batch_id":  job.BatchID,
			"operation": string(job.Operation),
		},
	}
	if err := s.timeline.Create(ctx, event); err != nil {
		s.logger.Warnw("timeline_event_failed", "batch_id", job.BatchID, "type", eventType, "error", err)
	}
}

func toDeviceResult(batchID string, res engine.TaskResult) domain.DeviceResult {
	record := domain.DeviceResult{
		BatchID:   batchID,
		DeviceID:  res.DeviceID,
		Host:      res.Meta.Host,
		Success:   res.Success,
		Attempts:  res.Meta.Attempts,
		ElapsedMs: res.Meta.Elapsed.Milliseconds(),
	}
	if res.Data != nil {
		record.Data = domain.JSONB(res.Data)
	}
	if res.Error != nil {
		record.ErrorKind = string(res.Error.Kind)
		record.ErrorStage = string(res.Error.Stage)
		record.ErrorMessage = res.Error.Message
		record.ErrorDetail = res.Error.Detail
	}
	return record
}

func dedupe(ids []uint) domain.IDList {
	seen := make(map[uint]struct{}, len(ids))
	out := make(domain.IDList, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
