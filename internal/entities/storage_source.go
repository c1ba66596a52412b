package entities

import (
	"time"
)

// StorageKind identifies a backend kind.
type StorageKind string

const (
	StorageKindBrowser     StorageKind = "browser"
	StorageKindFilesystem  StorageKind = "fs"
	StorageKindWebDAV      StorageKind = "webdav"
	StorageKindGoogleDrive StorageKind = "gdrive"
	StorageKindOneDrive    StorageKind = "onedrive"
)

// SourceKinds lists the kinds that are backed by a named storage source.
var SourceKinds = []StorageKind{
	StorageKindFilesystem,
	StorageKindWebDAV,
	StorageKindGoogleDrive,
	StorageKindOneDrive,
}

// Valid reports whether k is a known storage kind.
func (k StorageKind) Valid() bool {
	switch k {
	case StorageKindBrowser, StorageKindFilesystem, StorageKindWebDAV, StorageKindGoogleDrive, StorageKindOneDrive:
		return true
	}
	return false
}

// IsCloud reports whether the kind is an OAuth cloud drive.
func (k StorageKind) IsCloud() bool {
	return k == StorageKindGoogleDrive || k == StorageKindOneDrive
}

// StorageSource is one user-named backend configuration.
type StorageSource struct {
	Name string      `gorm:"primaryKey;size:255" json:"name"`
	Type StorageKind `gorm:"size:20;index;not null" json:"type"`

	// Data holds either the JSON of a credential variant or, when Encrypted
	// is set, a salt|nonce|ciphertext blob.
	Data      []byte `gorm:"type:blob" json:"-"`
	Encrypted bool   `gorm:"default:false" json:"encrypted"`

	// StoredInManager is set when the blob's secret was also registered with
	// a credential manager.
	StoredInManager bool `gorm:"default:false" json:"stored_in_manager"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (StorageSource) TableName() string {
	return "storage_sources"
}
