package storagesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mrlokans/librarysync/internal/crypto"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
)

const (
	// UnlockDescription is shown when the user is asked for a source secret.
	UnlockDescription = "You are trying to access protected data"

	// InvalidCredentialsNote is appended when a stored secret failed to decrypt.
	InvalidCredentialsNote = " but the provided Credentials were invalid"
)

// SourceStore looks up storage source records. It returns nil for a missing
// source.
type SourceStore interface {
	Get(ctx context.Context, name string) (*entities.StorageSource, error)
}

// CredentialManager stores source secrets outside the database, e.g. in the
// OS keyring.
type CredentialManager interface {
	Get(ctx context.Context, name string) (secret string, found bool, err error)
	Set(ctx context.Context, name, secret string) error
	Delete(ctx context.Context, name string) error
}

// UnlockProps is passed to a Prompter along with the description.
type UnlockProps struct {
	SourceName    string
	Action        string
	EncryptedData []byte
	ForwardSecret bool
}

// Prompter asks the user for credentials. It returns nil when the user
// cancels.
type Prompter interface {
	Prompt(ctx context.Context, description string, props UnlockProps) (*UnlockAction, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, description string, props UnlockProps) (*UnlockAction, error)

func (f PrompterFunc) Prompt(ctx context.Context, description string, props UnlockProps) (*UnlockAction, error) {
	return f(ctx, description, props)
}

// Coordinator turns stored, possibly encrypted, storage sources into usable
// credentials.
type Coordinator struct {
	sources  SourceStore
	manager  CredentialManager
	prompter Prompter
}

// NewCoordinator creates a coordinator. manager and prompter may be nil.
func NewCoordinator(sources SourceStore, manager CredentialManager, prompter Prompter) *Coordinator {
	return &Coordinator{sources: sources, manager: manager, prompter: prompter}
}

// GetUnlockedStorageSourceData returns the credentials of the named source.
// A secret held by the credential manager is tried first; when it is missing
// or wrong and askForUnlock is set, the prompter is asked once.
func (c *Coordinator) GetUnlockedStorageSourceData(ctx context.Context, name string, askForUnlock bool) (*UnlockAction, error) {
	source, err := c.sources.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: no storage source with name %s found", ErrSourceNotFound, name)
	}

	if source.Type == entities.StorageKindFilesystem {
		creds, err := ParseCredentials(source.Data)
		if err != nil {
			return nil, err
		}
		return &UnlockAction{Credentials: creds}, nil
	}

	description := UnlockDescription

	if source.StoredInManager && source.Encrypted {
		action, failed := c.unlockFromManager(ctx, source)
		if action != nil {
			return action, nil
		}
		if failed {
			description += InvalidCredentialsNote
		}
	} else if !source.Encrypted {
		creds, err := ParseCredentials(source.Data)
		if err == nil {
			return &UnlockAction{Credentials: creds}, nil
		}
		logging.Warn("stored storage source data is unreadable", logging.Source(name), logging.Err(err))
	}

	if askForUnlock && c.prompter != nil {
		props := UnlockProps{
			SourceName:    name,
			Action:        fmt.Sprintf("Enter the correct password for %s and login to your account if required to proceed", name),
			ForwardSecret: true,
		}
		if source.Encrypted {
			props.EncryptedData = source.Data
		}

		action, err := c.prompter.Prompt(ctx, description, props)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnlockFailed, err)
		}
		if action != nil && action.Credentials != nil {
			return action, nil
		}
	}

	return nil, ErrUnlockFailed
}

// NeedsSecret reports whether the named source is encrypted and the
// credential manager holds no secret for it, so only the caller can open it.
// Unknown sources report false.
func (c *Coordinator) NeedsSecret(ctx context.Context, name string) (bool, error) {
	source, err := c.sources.Get(ctx, name)
	if err != nil {
		return false, err
	}
	if source == nil || !source.Encrypted || source.Type == entities.StorageKindFilesystem {
		return false, nil
	}
	if source.StoredInManager && c.manager != nil {
		_, found, err := c.manager.Get(ctx, name)
		if err != nil {
			logging.Warn("credential manager lookup failed", logging.Source(name), logging.Err(err))
		}
		if found {
			return false, nil
		}
	}
	return true, nil
}

// unlockFromManager tries the secret held by the credential manager. failed
// is set when a secret was found but did not decrypt the blob.
func (c *Coordinator) unlockFromManager(ctx context.Context, source *entities.StorageSource) (action *UnlockAction, failed bool) {
	if c.manager == nil {
		return nil, false
	}

	secret, found, err := c.manager.Get(ctx, source.Name)
	if err != nil {
		logging.Error("credential manager lookup failed", logging.Source(source.Name), logging.Err(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	action, err = Unlock(source.Data, secret)
	if err != nil {
		logging.Warn("stored secret does not unlock storage source", logging.Source(source.Name), logging.Err(err))
		return nil, true
	}
	return action, false
}

// Unlock decrypts an encrypted credential blob with secret.
func Unlock(blob []byte, secret string) (*UnlockAction, error) {
	var payload json.RawMessage
	if err := crypto.DecryptJSON(blob, secret, &payload); err != nil {
		if IsAuthenticationError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	creds, err := ParseCredentials(payload)
	if err != nil {
		return nil, err
	}
	return &UnlockAction{Credentials: creds, Secret: secret}, nil
}

// IsAuthenticationError reports whether err came from a secret that failed
// to decrypt a blob.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, crypto.ErrAuthentication) || errors.Is(err, crypto.ErrCiphertextTooShort)
}
