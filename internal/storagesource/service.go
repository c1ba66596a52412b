package storagesource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrlokans/librarysync/internal/crypto"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
)

// SourceRepository persists storage source records. sources.Repository
// satisfies it.
type SourceRepository interface {
	SourceStore
	List(ctx context.Context, kind entities.StorageKind) ([]entities.StorageSource, error)
	Rename(ctx context.Context, oldName string, source *entities.StorageSource) error
	Delete(ctx context.Context, name string) error
	EnsureExists(ctx context.Context, defaults ...entities.StorageSource) (int, error)
}

// SaveRequest describes a create, update or rename of a storage source.
type SaveRequest struct {
	Name    string
	OldName string
	Kind    entities.StorageKind

	Credentials Credentials

	// Secret encrypts the credentials when set. Ignored for filesystem sources.
	Secret string

	// StoreInManager registers Secret with the credential manager.
	StoreInManager bool
}

type SaveResult struct {
	New *Summary
	Old string
}

// Summary describes a source without its credential payload.
type Summary struct {
	Name            string               `json:"name"`
	Kind            entities.StorageKind `json:"kind"`
	Encrypted       bool                 `json:"encrypted"`
	StoredInManager bool                 `json:"stored_in_manager"`
	Default         bool                 `json:"default"`
	Active          bool                 `json:"active"`
}

// Service manages the lifecycle of storage sources.
type Service struct {
	repo     SourceRepository
	manager  CredentialManager
	registry *Registry
}

func NewService(repo SourceRepository, manager CredentialManager, registry *Registry) *Service {
	return &Service{repo: repo, manager: manager, registry: registry}
}

// SaveStorageSource stores a source, encrypting its credentials when a
// secret is given. A rename moves the active pointer and the manager entry.
func (s *Service) SaveStorageSource(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: storage source name is required", ErrConfiguration)
	}
	if !req.Kind.Valid() || req.Kind == entities.StorageKindBrowser {
		return nil, fmt.Errorf("%w: unsupported storage kind %q", ErrConfiguration, req.Kind)
	}
	if !Supports(req.Credentials, req.Kind) {
		return nil, fmt.Errorf("%w: %s source %s", ErrWrongCredentials, req.Kind, name)
	}

	oldName := req.OldName
	renamed := oldName != "" && oldName != name
	if renamed && IsDefaultSource(oldName) {
		return nil, fmt.Errorf("%w: %s", ErrDefaultSource, oldName)
	}
	if _, internal := internalSources[name]; internal {
		return nil, fmt.Errorf("%w: %s is reserved", ErrDefaultSource, name)
	}
	if IsDefaultSource(name) && DefaultSourceName(req.Kind) != name {
		return nil, fmt.Errorf("%w: %s is reserved for another storage kind", ErrDefaultSource, name)
	}
	if renamed {
		existing, err := s.repo.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: storage source %s already exists", ErrConfiguration, name)
		}
	}

	record, storeSecret, err := s.buildRecord(name, req)
	if err != nil {
		return nil, err
	}
	if storeSecret && s.manager == nil {
		return nil, fmt.Errorf("%w: no credential manager configured", ErrConfiguration)
	}

	// The secret goes in first so a stored record never points at a
	// missing manager entry.
	if storeSecret {
		restore, err := s.storeSecret(ctx, name, req.Secret)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Rename(ctx, oldName, record); err != nil {
			restore()
			return nil, err
		}
	} else {
		if err := s.repo.Rename(ctx, oldName, record); err != nil {
			return nil, err
		}
		s.forgetSecret(ctx, name)
	}

	result := &SaveResult{New: s.summarize(record)}
	if renamed {
		result.Old = oldName
		s.forgetSecret(ctx, oldName)
		if s.registry != nil && s.registry.ActiveSource(req.Kind) == oldName {
			if err := s.registry.SetActiveSource(name, req.Kind); err != nil {
				return nil, err
			}
			result.New.Active = true
		}
	}

	logging.Info("storage source saved",
		logging.Source(name),
		logging.Kind(string(req.Kind)),
		logging.String("old_name", oldName),
	)
	return result, nil
}

// storeSecret registers secret under name and returns a func that puts the
// previous manager entry back.
func (s *Service) storeSecret(ctx context.Context, name, secret string) (restore func(), err error) {
	previous, had, err := s.manager.Get(ctx, name)
	if err != nil {
		logging.Warn("credential manager lookup failed", logging.Source(name), logging.Err(err))
		had = false
	}
	if err := s.manager.Set(ctx, name, secret); err != nil {
		return nil, fmt.Errorf("failed to store secret for %s: %w", name, err)
	}
	return func() {
		var err error
		if had {
			err = s.manager.Set(ctx, name, previous)
		} else {
			err = s.manager.Delete(ctx, name)
		}
		if err != nil {
			logging.Warn("failed to restore credential manager entry", logging.Source(name), logging.Err(err))
		}
	}, nil
}

func (s *Service) buildRecord(name string, req SaveRequest) (*entities.StorageSource, bool, error) {
	record := &entities.StorageSource{Name: name, Type: req.Kind}

	if req.Kind == entities.StorageKindFilesystem {
		data, err := MarshalCredentials(req.Credentials)
		if err != nil {
			return nil, false, err
		}
		record.Data = data
		return record, false, nil
	}

	if req.StoreInManager && req.Secret == "" {
		return nil, false, fmt.Errorf("%w: a secret is required to store credentials in the credential manager", ErrConfiguration)
	}

	if req.Secret == "" {
		data, err := MarshalCredentials(req.Credentials)
		if err != nil {
			return nil, false, err
		}
		record.Data = data
		return record, false, nil
	}

	blob, err := crypto.EncryptJSON(req.Credentials, req.Secret)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt credentials for %s: %w", name, err)
	}
	record.Data = blob
	record.Encrypted = true
	record.StoredInManager = req.StoreInManager
	return record, req.StoreInManager, nil
}

// DeleteStorageSource removes a source, its manager entry and, if it was
// active, resets the active pointer of its kind.
func (s *Service) DeleteStorageSource(ctx context.Context, name string) error {
	if IsDefaultSource(name) {
		return fmt.Errorf("%w: %s", ErrDefaultSource, name)
	}

	source, err := s.repo.Get(ctx, name)
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("%w: no storage source with name %s found", ErrSourceNotFound, name)
	}

	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.forgetSecret(ctx, name)

	if s.registry != nil && s.registry.ActiveSource(source.Type) == name {
		if err := s.registry.SetActiveSource("", source.Type); err != nil {
			return err
		}
	}

	logging.Info("storage source deleted", logging.Source(name), logging.Kind(string(source.Type)))
	return nil
}

// ListStorageSources returns summaries of all sources of kind, or of every
// kind when kind is empty.
func (s *Service) ListStorageSources(ctx context.Context, kind entities.StorageKind) ([]Summary, error) {
	records, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(records))
	for i := range records {
		summaries = append(summaries, *s.summarize(&records[i]))
	}
	return summaries, nil
}

// GetStorageSource returns the summary of one source.
func (s *Service) GetStorageSource(ctx context.Context, name string) (*Summary, error) {
	source, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: no storage source with name %s found", ErrSourceNotFound, name)
	}
	return s.summarize(source), nil
}

// SeedDefaults creates the app-default cloud sources for every configured
// client. Existing defaults are left as they are.
func (s *Service) SeedDefaults(ctx context.Context, clients map[entities.StorageKind]RemoteOAuthContext) error {
	var defaults []entities.StorageSource
	for _, kind := range entities.SourceKinds {
		client, ok := clients[kind]
		if !ok || client.ClientID == "" || !kind.IsCloud() {
			continue
		}
		data, err := MarshalCredentials(client)
		if err != nil {
			return err
		}
		defaults = append(defaults, entities.StorageSource{Name: DefaultSourceName(kind), Type: kind, Data: data})
	}
	if len(defaults) == 0 {
		return nil
	}

	created, err := s.repo.EnsureExists(ctx, defaults...)
	if err != nil {
		return err
	}
	if created > 0 {
		logging.Info("seeded default storage sources", logging.Int("created", created))
	}
	return nil
}

func (s *Service) forgetSecret(ctx context.Context, name string) {
	if s.manager == nil {
		return
	}
	if err := s.manager.Delete(ctx, name); err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("failed to remove stored secret", logging.Source(name), logging.Err(err))
	}
}

func (s *Service) summarize(source *entities.StorageSource) *Summary {
	summary := &Summary{
		Name:            source.Name,
		Kind:            source.Type,
		Encrypted:       source.Encrypted,
		StoredInManager: source.StoredInManager,
		Default:         IsDefaultSource(source.Name),
	}
	if s.registry != nil {
		summary.Active = s.registry.ActiveSource(source.Type) == source.Name
	}
	return summary
}
