package entities

import (
	"time"
)

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// Known setting keys
const (
	// SettingKeyActiveSourcePrefix is followed by the storage kind.
	SettingKeyActiveSourcePrefix = "storage_source_active_"
	SettingKeyCurrentStorageKind = "storage_kind_current"

	SettingKeyLibrarySyncLastAt      = "library_sync_last_at"
	SettingKeyLibrarySyncLastStatus  = "library_sync_last_status"
	SettingKeyLibrarySyncLastMessage = "library_sync_last_message"

	// Modification times saved with the statistics and reading goals of the
	// local library.
	SettingKeyStatisticsModified   = "library_statistics_modified"
	SettingKeyReadingGoalsModified = "library_reading_goals_modified"
)

// ActiveSourceSettingKey returns the settings key of a kind's active pointer.
func ActiveSourceSettingKey(kind StorageKind) string {
	return SettingKeyActiveSourcePrefix + string(kind)
}
