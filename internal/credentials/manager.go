package credentials

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/librarysync/internal/config"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// New returns the credential manager selected by cfg.Manager.
func New(cfg config.Credentials, db *gorm.DB) (storagesource.CredentialManager, error) {
	switch cfg.Manager {
	case config.CredentialManagerKeyring, "":
		service := cfg.KeyringService
		if service == "" {
			service = config.DefaultKeyringService
		}
		return NewKeyringManager(service), nil
	case config.CredentialManagerDatabase:
		return NewDatabaseManager(db, DatabaseConfig{
			Service:       cfg.KeyringService,
			EncryptionKey: cfg.EncryptionKey,
			KeyFilePath:   cfg.KeyFile,
		})
	case config.CredentialManagerNone:
		return NoopManager{}, nil
	}
	return nil, fmt.Errorf("unknown credential manager %q", cfg.Manager)
}
