package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarysync/internal/crypto"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
)

const (
	// EnvEncryptionKey is the environment variable for the machine key
	EnvEncryptionKey = "TOKEN_ENCRYPTION_KEY"

	// DefaultKeyFileName is the default name for the key file
	DefaultKeyFileName = ".librarysync-secret-key"
)

// DatabaseConfig holds configuration for the database manager.
type DatabaseConfig struct {
	// Service scopes stored secrets, like the keyring service name.
	Service string

	// EncryptionKey is the base64-encoded 32-byte machine key.
	// If empty, will try to load from environment or key file.
	EncryptionKey string

	// KeyFilePath is the path to the machine key file.
	// If empty, defaults to ~/.librarysync-secret-key
	KeyFilePath string
}

// DatabaseManager keeps secrets in the application database, encrypted
// under a machine key. It serves hosts without an OS keyring.
type DatabaseManager struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	service   string
}

func NewDatabaseManager(db *gorm.DB, cfg DatabaseConfig) (*DatabaseManager, error) {
	key, err := resolveEncryptionKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
	}

	encryptor, err := crypto.NewEncryptorFromBase64(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	if err := db.AutoMigrate(&entities.StoredSecret{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DatabaseManager{db: db, encryptor: encryptor, service: cfg.Service}, nil
}

// resolveEncryptionKey picks the machine key: explicit config, then the
// environment, then the key file, generating the file if it does not exist.
func resolveEncryptionKey(cfg DatabaseConfig) (string, error) {
	if cfg.EncryptionKey != "" {
		return cfg.EncryptionKey, nil
	}

	if envKey := os.Getenv(EnvEncryptionKey); envKey != "" {
		return envKey, nil
	}

	keyFilePath, err := KeyFilePath(cfg.KeyFilePath)
	if err != nil {
		return "", err
	}

	if data, err := os.ReadFile(keyFilePath); err == nil {
		return string(data), nil
	}

	newKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.WriteFile(keyFilePath, []byte(newKey), 0600); err != nil {
		return "", fmt.Errorf("failed to save encryption key to %s: %w", keyFilePath, err)
	}

	logging.Info("generated new machine key", logging.String("path", keyFilePath))
	return newKey, nil
}

// KeyFilePath returns the machine key file in use.
func KeyFilePath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultKeyFileName), nil
}

func (m *DatabaseManager) Get(ctx context.Context, name string) (string, bool, error) {
	var row entities.StoredSecret
	err := m.db.WithContext(ctx).
		Where("service = ? AND account = ?", m.service, name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get secret: %w", err)
	}

	secret, err := m.encryptor.Decrypt(row.Secret)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	now := time.Now()
	m.db.WithContext(ctx).Model(&row).Update("last_used_at", &now)

	return secret, true, nil
}

func (m *DatabaseManager) Set(ctx context.Context, name, secret string) error {
	encrypted, err := m.encryptor.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	row := &entities.StoredSecret{Service: m.service, Account: name, Secret: encrypted}
	result := m.db.WithContext(ctx).
		Where("service = ? AND account = ?", m.service, name).
		Assign(map[string]interface{}{
			"secret":     encrypted,
			"updated_at": time.Now(),
		}).
		FirstOrCreate(row)
	if result.Error != nil {
		return fmt.Errorf("failed to save secret: %w", result.Error)
	}
	return nil
}

func (m *DatabaseManager) Delete(ctx context.Context, name string) error {
	result := m.db.WithContext(ctx).
		Where("service = ? AND account = ?", m.service, name).
		Delete(&entities.StoredSecret{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete secret: %w", result.Error)
	}
	return nil
}
