package dto

import (
	"time"

	"github.com/netfleet/backend/internal/domain"
)

type SubmitBatchRequest struct {
	DeviceIDs     []uint       `json:"device_ids"`
	Operation     string       `json:"operation"`
	Payload       domain.JSONB `json:"payload,omitempty"`
	SkipDeviceIDs []uint       `json:"skip_device_ids,omitempty"`
}

func (r *SubmitBatchRequest) Validate() []string {
	var errors []string

	if len(r.DeviceIDs) == 0 {
		errors = append(errors, "device_ids is required")
	}
	if r.Operation == "" {
		errors = append(errors, "operation is required")
	} else if !domain.Operation(r.Operation).Valid() {
		errors = append(errors, "operation must be one of: collect, backup, deploy, topology-probe")
	}

	switch domain.Operation(r.Operation) {
	case domain.OperationCollect:
		if r.Payload == nil || r.Payload["commands"] == nil {
			errors = append(errors, "collect requires payload.commands")
		}
	case domain.OperationDeploy:
		if r.Payload == nil || r.Payload["config"] == nil {
			errors = append(errors, "deploy requires payload.config")
		}
	}

	return errors
}

type BatchResponse struct {
	BatchID       string             `json:"batch_id"`
	Operation     domain.Operation   `json:"operation"`
	Status        domain.BatchStatus `json:"status"`
	DeviceIDs     domain.IDList      `json:"device_ids"`
	SkipDeviceIDs domain.IDList      `json:"skip_device_ids,omitempty"`
	ResumeOf      string             `json:"resume_of,omitempty"`
	TotalDevices  int                `json:"total_devices"`
	SuccessCount  int                `json:"success_count"`
	FailureCount  int                `json:"failure_count"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
	DurationMs    int64              `json:"duration_ms"`
}

func ToBatchResponse(job *domain.BatchJob) BatchResponse {
	return BatchResponse{
		BatchID:       job.BatchID,
		Operation:     job.Operation,
		Status:        job.Status,
		DeviceIDs:     job.DeviceIDs,
		SkipDeviceIDs: job.SkipDeviceIDs,
		ResumeOf:      job.ResumeOf,
		TotalDevices:  job.TotalDevices,
		SuccessCount:  job.SuccessCount,
		FailureCount:  job.FailureCount,
		Error:         job.Error,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		FinishedAt:    job.FinishedAt,
		DurationMs:    job.DurationMs,
	}
}

type SubmitOTPRequest struct {
	CredentialGroup string `json:"credential_group"`
	Code            string `json:"code"`
}

func (r *SubmitOTPRequest) Validate() []string {
	var errors []string
	if r.CredentialGroup == "" {
		errors = append(errors, "credential_group is required")
	}
	if r.Code == "" {
		errors = append(errors, "code is required")
	}
	return errors
}
