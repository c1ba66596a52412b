package entities

import "time"

// SyncType names an independent progress record.
type SyncType string

// SyncTypeLibrary is the periodic snapshot of the active backend's book list.
const SyncTypeLibrary SyncType = "library"

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncProgress is the state of the latest run of one sync type, including
// the storage source it ran against.
type SyncProgress struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	SyncType    SyncType    `gorm:"size:50;uniqueIndex" json:"sync_type"`
	Kind        StorageKind `gorm:"size:20" json:"kind"`
	SourceName  string      `gorm:"size:255" json:"source_name,omitempty"`
	Status      SyncStatus  `gorm:"size:20" json:"status"`
	TotalItems  int         `json:"total_items"`
	Processed   int         `json:"processed"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	Skipped     int         `json:"skipped"`
	CurrentItem string      `gorm:"size:512" json:"current_item,omitempty"`
	Error       string      `gorm:"type:text" json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

func (SyncProgress) TableName() string {
	return "sync_progress"
}
