// Package settings persists key/value application settings, including the
// active storage source per kind.
//
// # Usage
//
//	repo := settings.NewRepository(db)
//	name, ok, err := repo.GetValue(entities.ActiveSourceSettingKey(entities.StorageKindWebDAV))
package settings

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/librarysync/internal/entities"
)

// Repository handles all settings database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new settings repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetSetting retrieves a setting by key.
func (r *Repository) GetSetting(key string) (*entities.Setting, error) {
	var setting entities.Setting
	err := r.db.Where("key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetValue returns the value stored under key. A missing key is reported
// with ok=false and no error.
func (r *Repository) GetValue(key string) (value string, ok bool, err error) {
	setting, err := r.GetSetting(key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

// GetByPrefix returns all settings whose key starts with prefix, keyed by the
// remainder of the key.
func (r *Repository) GetByPrefix(prefix string) (map[string]string, error) {
	var rows []entities.Setting
	if err := r.db.Where("key LIKE ?", prefix+"%").Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		// LIKE treats '_' as a wildcard
		if !strings.HasPrefix(row.Key, prefix) {
			continue
		}
		values[strings.TrimPrefix(row.Key, prefix)] = row.Value
	}
	return values, nil
}

// SetSetting creates or updates a setting.
func (r *Repository) SetSetting(key, value string) error {
	var setting entities.Setting
	result := r.db.Where("key = ?", key).First(&setting)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		setting = entities.Setting{
			Key:   key,
			Value: value,
		}
		return r.db.Create(&setting).Error
	} else if result.Error != nil {
		return result.Error
	}

	setting.Value = value
	return r.db.Save(&setting).Error
}

// DeleteSetting removes a setting by key.
func (r *Repository) DeleteSetting(key string) error {
	return r.db.Where("key = ?", key).Delete(&entities.Setting{}).Error
}
