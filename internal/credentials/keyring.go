package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringManager keeps secrets in the OS keyring under one service name,
// keyed by source name.
type KeyringManager struct {
	service string
}

func NewKeyringManager(service string) *KeyringManager {
	return &KeyringManager{service: service}
}

func (m *KeyringManager) Get(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	secret, err := keyring.Get(m.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keyring lookup for %s failed: %w", name, err)
	}
	return secret, true, nil
}

func (m *KeyringManager) Set(ctx context.Context, name, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Set(m.service, name, secret); err != nil {
		return fmt.Errorf("keyring store for %s failed: %w", name, err)
	}
	return nil
}

func (m *KeyringManager) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := keyring.Delete(m.service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete for %s failed: %w", name, err)
	}
	return nil
}
