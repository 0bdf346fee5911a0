package db

import (
	"context"

	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/domain"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type batchRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepository(db *gorm.DB, log *logger.Logger) ports.BatchRepository {
	return &batchRepository{db: db, log: log}
}

func (r *batchRepository) Create(ctx context.Context, job *domain.BatchJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		r.log.Errorw("batch_repo_create_failed", "batch_id", job.BatchID, "error", err)
		return err
	}
	r.log.Infow("batch_repo_create_ok", "batch_id", job.BatchID, "operation", job.Operation)
	return nil
}

func (r *batchRepository) GetByBatchID(ctx context.Context, batchID string) (*domain.BatchJob, error) {
	var job domain.BatchJob
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&job).Error; err != nil {
		r.log.Errorw("batch_repo_get_failed", "batch_id", batchID, "error", err)
		return nil, err
	}
	return &job, nil
}

func (r *batchRepository) GetAll(ctx context.Context, limit int) ([]domain.BatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []domain.BatchJob
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		r.log.Errorw("batch_repo_list_failed", "error", err)
		return nil, err
	}
	return jobs, nil
}

func (r *batchRepository) Update(ctx context.Context, job *domain.BatchJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		r.log.Errorw("batch_repo_update_failed", "batch_id", job.BatchID, "error", err)
		return err
	}
	return nil
}

func (r *batchRepository) CreateResults(ctx context.Context, results []domain.DeviceResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&results).Error; err != nil {
		r.log.Errorw("batch_repo_create_results_failed", "count", len(results), "error", err)
		return err
	}
	r.log.Infow("batch_repo_create_results_ok", "count", len(results))
	return nil
}

func (r *batchRepository) GetResults(ctx context.Context, batchID string) ([]domain.DeviceResult, error) {
	var results []domain.DeviceResult
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("device_id asc").
		Find(&results).Error
	if err != nil {
		r.log.Errorw("batch_repo_get_results_failed", "batch_id", batchID, "error", err)
		return nil, err
	}
	return results, nil
}

func (r *batchRepository) GetSucceededDeviceIDs(ctx context.Context, batchID string) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&domain.DeviceResult{}).
		Where("batch_id = ? AND success = ?", batchID, true).
		Pluck("device_id", &ids).Error
	if err != nil {
		r.log.Errorw("batch_repo_get_succeeded_failed", "batch_id", batchID, "error", err)
		return nil, err
	}
	return ids, nil
}
