package ports

import (
	"context"

	"github.com/netfleet/backend/internal/domain"
)

type DeviceService interface {
	CreateDevice(ctx context.Context, input CreateDeviceInput) (*domain.Device, error)
	GetDevices(ctx context.Context) ([]domain.Device, error)
	GetDeviceByID(ctx context.Context, id uint) (*domain.Device, error)
	UpdateDevice(ctx context.Context, id uint, input UpdateDeviceInput) (*domain.Device, error)
	DeleteDevice(ctx context.Context, id uint) error
	GetDeviceAuth(ctx context.Context, id uint) (user, password, privateKey string, err error)
}

type CreateDeviceInput struct {
	Name            string
	Host            string
	SSHPort         int
	Platform        domain.Platform
	User            string
	Password        string
	PrivateKey      string
	CredentialGroup string
	RequiresOTP     bool
	Tags            domain.JSONB
}

type UpdateDeviceInput struct {
	Name        *string
	SSHPort     *int
	Platform    *domain.Platform
	User        *string
	Password    *string
	PrivateKey  *string
	RequiresOTP *bool
	Tags        domain.JSONB
}

type BatchService interface {
	SubmitBatch(ctx context.Context, input SubmitBatchInput) (*domain.BatchJob, error)
	ResumeBatch(ctx context.Context, batchID string) (*domain.BatchJob, error)
	CancelBatch(ctx context.Context, batchID string) error
	GetBatch(ctx context.Context, batchID string) (*domain.BatchJob, error)
	GetBatches(ctx context.Context, limit int) ([]domain.BatchJob, error)
	GetReport(ctx context.Context, batchID string) (*BatchReport, error)
}

type SubmitBatchInput struct {
	DeviceIDs     []uint
	Operation     domain.Operation
	Payload       domain.JSONB
	SkipDeviceIDs []uint
	ResumeOf      string
}

// BatchReport aggregates the terminal outcomes of one batch. Every
// non-skipped device appears exactly once, as a success or as a failure.
type BatchReport struct {
	BatchID      string                `json:"batch_id"`
	Operation    domain.Operation      `json:"operation"`
	Status       domain.BatchStatus    `json:"status"`
	Total        int                   `json:"total"`
	SuccessCount int                   `json:"success_count"`
	FailureCount int                   `json:"failure_count"`
	Failures     []DeviceFailure       `json:"failures"`
	Results      []domain.DeviceResult `json:"results,omitempty"`
	DurationMs   int64                 `json:"duration_ms"`
}

type DeviceFailure struct {
	DeviceID uint   `json:"device_id"`
	Host     string `json:"host"`
	Kind     string `json:"code"`
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message"`
}
