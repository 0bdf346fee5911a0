package ports

import (
	"context"

	"github.com/netfleet/backend/internal/domain"
)

type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	GetByID(ctx context.Context, id uint) (*domain.Device, error)
	GetByIDs(ctx context.Context, ids []uint) ([]domain.Device, error)
	GetByHost(ctx context.Context, host string) (*domain.Device, error)
	GetAll(ctx context.Context) ([]domain.Device, error)
	Update(ctx context.Context, device *domain.Device) error
	UpdateStatus(ctx context.Context, id uint, status domain.DeviceStatus) error
	Delete(ctx context.Context, id uint) error
}

type BatchRepository interface {
	Create(ctx context.Context, job *domain.BatchJob) error
	GetByBatchID(ctx context.Context, batchID string) (*domain.BatchJob, error)
	GetAll(ctx context.Context, limit int) ([]domain.BatchJob, error)
	Update(ctx context.Context, job *domain.BatchJob) error

	CreateResults(ctx context.Context, results []domain.DeviceResult) error
	GetResults(ctx context.Context, batchID string) ([]domain.DeviceResult, error)
	GetSucceededDeviceIDs(ctx context.Context, batchID string) ([]uint, error)
}

type BackupRepository interface {
	Create(ctx context.Context, backup *domain.Backup) error
	GetByID(ctx context.Context, id uint) (*domain.Backup, error)
	GetByDeviceID(ctx context.Context, deviceID uint, limit int) ([]domain.Backup, error)
	GetLatest(ctx context.Context, deviceID uint) (*domain.Backup, error)
	Delete(ctx context.Context, id uint) error
}

type TimelineRepository interface {
	Create(ctx context.Context, event *domain.TimelineEvent) error
	GetByResource(ctx context.Context, resourceType string, resourceID uint) ([]domain.TimelineEvent, error)
	GetAll(ctx context.Context, limit int) ([]domain.TimelineEvent, error)
}
