package entities

import (
	"time"
)

// StoredSecret is a storage source secret kept by the database credential
// manager. Secret is base64 AES-256-GCM ciphertext under the machine key.
type StoredSecret struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Service scopes secrets of one application instance.
	Service string `gorm:"type:varchar(100);not null;uniqueIndex:idx_service_account" json:"service"`

	// Account is the storage source name.
	Account string `gorm:"type:varchar(255);not null;uniqueIndex:idx_service_account" json:"account"`

	Secret string `gorm:"type:text;not null" json:"-"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TableName specifies the table name for GORM
func (StoredSecret) TableName() string {
	return "stored_secrets"
}
