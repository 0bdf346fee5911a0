package db

import (
	"context"

	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/domain"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type backupRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBackupRepository(db *gorm.DB, log *logger.Logger) ports.BackupRepository {
	return &backupRepository{db: db, log: log}
}

func (r *backupRepository) Create(ctx context.Context, backup *domain.Backup) error {
	if err := r.db.WithContext(ctx).Create(backup).Error; err != nil {
		r.log.Errorw("backup_repo_create_failed", "device_id", backup.DeviceID, "error", err)
		return err
	}
	r.log.Infow("backup_repo_create_ok", "id", backup.ID, "device_id", backup.DeviceID, "size", backup.Size)
	return nil
}

func (r *backupRepository) GetByID(ctx context.Context, id uint) (*domain.Backup, error) {
	var backup domain.Backup
	if err := r.db.WithContext(ctx).First(&backup, id).Error; err != nil {
		r.log.Errorw("backup_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &backup, nil
}

func (r *backupRepository) GetByDeviceID(ctx context.Context, deviceID uint, limit int) ([]domain.Backup, error) {
	if limit <= 0 {
		limit = 20
	}
	var backups []domain.Backup
	err := r.db.WithContext(ctx).
		Select("id", "created_at", "updated_at", "device_id", "batch_id", "checksum", "size").
		Where("device_id = ?", deviceID).
		Order("created_at desc").
		Limit(limit).
		Find(&backups).Error
	if err != nil {
		r.log.Errorw("backup_repo_list_failed", "device_id", deviceID, "error", err)
		return nil, err
	}
	return backups, nil
}

func (r *backupRepository) GetLatest(ctx context.Context, deviceID uint) (*domain.Backup, error) {
	var backup domain.Backup
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at desc").
		First(&backup).Error
	if err != nil {
		return nil, err
	}
	return &backup, nil
}

func (r *backupRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&domain.Backup{}, id).Error; err != nil {
		r.log.Errorw("backup_repo_delete_failed", "id", id, "error", err)
		return err
	}
	return nil
}
