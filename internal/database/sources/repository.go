// Package sources persists storage source records.
//
// # Usage
//
//	repo := sources.NewRepository(db)
//	source, err := repo.Get(ctx, "nas")
//	if source == nil {
//		// not found
//	}
package sources

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarysync/internal/entities"
)

// Repository handles storage source database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new storage source repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the source with the given name, or nil if there is none.
func (r *Repository) Get(ctx context.Context, name string) (*entities.StorageSource, error) {
	var source entities.StorageSource
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage source %q: %w", name, err)
	}
	return &source, nil
}

// List returns all sources ordered by name. An empty kind lists every kind.
func (r *Repository) List(ctx context.Context, kind entities.StorageKind) ([]entities.StorageSource, error) {
	query := r.db.WithContext(ctx).Order("name ASC")
	if kind != "" {
		query = query.Where("type = ?", kind)
	}
	var result []entities.StorageSource
	if err := query.Find(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to list storage sources: %w", err)
	}
	return result, nil
}

// Save creates the source or replaces the stored record with the same name.
func (r *Repository) Save(ctx context.Context, source *entities.StorageSource) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "data", "encrypted", "stored_in_manager", "updated_at"}),
	}).Create(source).Error
	if err != nil {
		return fmt.Errorf("failed to save storage source %q: %w", source.Name, err)
	}
	return nil
}

// Rename stores source and removes the record named oldName in one transaction.
func (r *Repository) Rename(ctx context.Context, oldName string, source *entities.StorageSource) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &Repository{db: tx}
		if oldName != "" && oldName != source.Name {
			if err := tx.Where("name = ?", oldName).Delete(&entities.StorageSource{}).Error; err != nil {
				return fmt.Errorf("failed to remove storage source %q: %w", oldName, err)
			}
		}
		return txRepo.Save(ctx, source)
	})
}

// Delete removes a source. Deleting a missing source is not an error.
func (r *Repository) Delete(ctx context.Context, name string) error {
	if err := r.db.WithContext(ctx).Where("name = ?", name).Delete(&entities.StorageSource{}).Error; err != nil {
		return fmt.Errorf("failed to delete storage source %q: %w", name, err)
	}
	return nil
}

// EnsureExists creates each source that is not stored yet. Existing records
// are left untouched.
func (r *Repository) EnsureExists(ctx context.Context, defaults ...entities.StorageSource) (created int, err error) {
	for i := range defaults {
		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&defaults[i])
		if result.Error != nil {
			return created, fmt.Errorf("failed to create storage source %q: %w", defaults[i].Name, result.Error)
		}
		created += int(result.RowsAffected)
	}
	return created, nil
}
