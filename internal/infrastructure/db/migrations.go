package db

import (
	"github.com/netfleet/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Device{},
		&domain.BatchJob{},
		&domain.DeviceResult{},
		&domain.Backup{},
		&domain.TimelineEvent{},
	)
	if err != nil {
		return err
	}

	return createCustomIndexes(db)
}

func createCustomIndexes(db *gorm.DB) error {
	// One terminal result per device per batch
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_device_results_unique
		ON device_results (batch_id, device_id)
	`).Error; err != nil {
		return err
	}

	// Index for timeline events querying by resource
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_timeline_events_resource
		ON timeline_events (resource_type, resource_id)
		WHERE deleted_at IS NULL
	`).Error; err != nil {
		return err
	}

	// Batch listing is almost always newest-first by status
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_batch_jobs_status_created
		ON batch_jobs (status, created_at DESC)
		WHERE deleted_at IS NULL
	`).Error; err != nil {
		return err
	}

	return nil
}
