// Package sync provides database operations for sync progress tracking.
//
// # Interface Implementation
//
//	var _ scheduler.ProgressReporter = (*Repository)(nil)
//
// # Usage
//
//	repo := sync.NewRepository(db, entities.SyncTypeLibrary)
//	err := repo.StartSync(entities.StorageKindWebDAV, "nas", len(books))
package sync

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarysync/internal/entities"
)

// StaleAfter is how long a running sync may go without an update before it
// is considered interrupted.
const StaleAfter = 10 * time.Minute

// Repository handles all sync progress database operations.
type Repository struct {
	db       *gorm.DB
	syncType entities.SyncType
}

// NewRepository creates a sync repository for a specific sync type.
func NewRepository(db *gorm.DB, syncType entities.SyncType) *Repository {
	return &Repository{db: db, syncType: syncType}
}

// GetSyncProgress retrieves the sync progress for the configured sync type.
func (r *Repository) GetSyncProgress() (*entities.SyncProgress, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ?", r.syncType).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// StartSync creates or resets the progress record for a run against the
// given storage source.
func (r *Repository) StartSync(kind entities.StorageKind, sourceName string, totalItems int) error {
	now := time.Now()
	progress := entities.SyncProgress{
		SyncType:   r.syncType,
		Kind:       kind,
		SourceName: sourceName,
		Status:     entities.SyncStatusRunning,
		TotalItems: totalItems,
		StartedAt:  now,
		UpdatedAt:  now,
	}

	var existing entities.SyncProgress
	err := r.db.Where("sync_type = ?", r.syncType).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.Create(&progress).Error
	case err != nil:
		return err
	}

	progress.ID = existing.ID
	return r.db.Save(&progress).Error
}

// UpdateProgress updates the counters of an ongoing sync.
func (r *Repository) UpdateProgress(processed, succeeded, failed, skipped int, currentItem string) error {
	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(map[string]any{
			"processed":    processed,
			"succeeded":    succeeded,
			"failed":       failed,
			"skipped":      skipped,
			"current_item": currentItem,
			"updated_at":   time.Now(),
		}).Error
}

// CompleteSync marks a sync as completed or failed.
func (r *Repository) CompleteSync(succeeded bool, errorMsg string) error {
	now := time.Now()
	status := entities.SyncStatusCompleted
	if !succeeded {
		status = entities.SyncStatusFailed
	}

	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(map[string]any{
			"status":       status,
			"current_item": "",
			"error":        errorMsg,
			"updated_at":   now,
			"completed_at": now,
		}).Error
}

// IsSyncRunning checks if a sync is currently in progress. A running sync
// that has not been updated within StaleAfter is marked failed.
func (r *Repository) IsSyncRunning() (bool, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ? AND status = ?", r.syncType, entities.SyncStatusRunning).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if progress.UpdatedAt.Before(time.Now().Add(-StaleAfter)) {
		_ = r.CompleteSync(false, "sync was interrupted")
		return false, nil
	}

	return true, nil
}
