package storagesource

import (
	"encoding/json"
	"fmt"

	"github.com/mrlokans/librarysync/internal/entities"
)

// Credentials is one of FilesystemHandle, RemoteOAuthContext or WebDavContext.
type Credentials interface {
	// Kinds lists the storage kinds the credentials can be used with.
	Kinds() []entities.StorageKind
	isCredentials()
}

// FilesystemHandle points at a directory on the local device. It is never encrypted.
type FilesystemHandle struct {
	FsPath string `json:"fsPath"`
}

// RemoteOAuthContext holds the OAuth client of a cloud drive.
type RemoteOAuthContext struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type WebDavContext struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (FilesystemHandle) Kinds() []entities.StorageKind {
	return []entities.StorageKind{entities.StorageKindFilesystem}
}

func (RemoteOAuthContext) Kinds() []entities.StorageKind {
	return []entities.StorageKind{entities.StorageKindGoogleDrive, entities.StorageKindOneDrive}
}

func (WebDavContext) Kinds() []entities.StorageKind {
	return []entities.StorageKind{entities.StorageKindWebDAV}
}

func (FilesystemHandle) isCredentials()   {}
func (RemoteOAuthContext) isCredentials() {}
func (WebDavContext) isCredentials()      {}

// UnlockAction is an unlocked credential payload plus the secret that
// decrypted it, if any. The secret is needed to re-encrypt on save.
type UnlockAction struct {
	Credentials Credentials
	Secret      string
}

func IsFsHandle(c Credentials) bool {
	_, ok := c.(FilesystemHandle)
	return ok
}

func IsRemoteContext(c Credentials) bool {
	_, ok := c.(RemoteOAuthContext)
	return ok
}

func IsWebDavContext(c Credentials) bool {
	_, ok := c.(WebDavContext)
	return ok
}

// Supports reports whether c can be used with a source of the given kind.
func Supports(c Credentials, kind entities.StorageKind) bool {
	if c == nil {
		return false
	}
	for _, k := range c.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseCredentials detects the variant of a JSON credential payload by its
// shape: fsPath, clientId, url, checked in that order.
func ParseCredentials(data []byte) (Credentials, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: credential payload is not a JSON object: %v", ErrConfiguration, err)
	}

	var (
		target Credentials
		err    error
	)
	switch {
	case has(fields, "fsPath"):
		var fs FilesystemHandle
		err = json.Unmarshal(data, &fs)
		target = fs
	case has(fields, "clientId"):
		var remote RemoteOAuthContext
		err = json.Unmarshal(data, &remote)
		target = remote
	case has(fields, "url"):
		var dav WebDavContext
		err = json.Unmarshal(data, &dav)
		target = dav
	default:
		return nil, fmt.Errorf("%w: unrecognised credential payload", ErrConfiguration)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: malformed credential payload: %v", ErrConfiguration, err)
	}
	return target, nil
}

// MarshalCredentials encodes c in the shape ParseCredentials expects.
func MarshalCredentials(c Credentials) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: missing credentials", ErrConfiguration)
	}
	return json.Marshal(c)
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}
