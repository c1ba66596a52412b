package backends

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/oauth2"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/storage"
	"github.com/mrlokans/librarysync/internal/storage/providers/filesystem"
	"github.com/mrlokans/librarysync/internal/storage/providers/gdrive"
	"github.com/mrlokans/librarysync/internal/storage/providers/onedrive"
	"github.com/mrlokans/librarysync/internal/storage/providers/webdav"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// Unlocker produces usable credentials for a named storage source.
type Unlocker interface {
	GetUnlockedStorageSourceData(ctx context.Context, name string, askForUnlock bool) (*storagesource.UnlockAction, error)
}

// unlockAs unlocks a source and requires its credentials to be of type T.
func unlockAs[T storagesource.Credentials](ctx context.Context, unlocker Unlocker, name string, askForUnlock bool, kind entities.StorageKind) (T, error) {
	var zero T
	action, err := unlocker.GetUnlockedStorageSourceData(ctx, name, askForUnlock)
	if err != nil {
		return zero, err
	}
	creds, ok := action.Credentials.(T)
	if !ok {
		return zero, fmt.Errorf("%w: source %q cannot be used for %s", storagesource.ErrWrongCredentials, name, kind)
	}
	return creds, nil
}

// WebDAVConnector connects to the WebDAV server of a source.
type WebDAVConnector struct {
	Unlocker Unlocker
	Timeout  time.Duration
}

func (c WebDAVConnector) Connect(ctx context.Context, sourceName string, askForUnlock bool) (storage.Client, error) {
	creds, err := unlockAs[storagesource.WebDavContext](ctx, c.Unlocker, sourceName, askForUnlock, entities.StorageKindWebDAV)
	if err != nil {
		return nil, err
	}

	client := webdav.NewClient(creds.URL, creds.Username, creds.Password, c.Timeout)
	if err := client.Connect(ctx); err != nil {
		return nil, replication.Unavailable(entities.StorageKindWebDAV, "connect", err)
	}
	return client, nil
}

// FilesystemConnector opens the directory of a filesystem source.
type FilesystemConnector struct {
	Unlocker Unlocker
}

func (c FilesystemConnector) Connect(ctx context.Context, sourceName string, askForUnlock bool) (storage.Client, error) {
	creds, err := unlockAs[storagesource.FilesystemHandle](ctx, c.Unlocker, sourceName, askForUnlock, entities.StorageKindFilesystem)
	if err != nil {
		return nil, err
	}

	client, err := filesystem.NewClient(creds.FsPath)
	if err != nil {
		return nil, replication.Unavailable(entities.StorageKindFilesystem, "connect", err)
	}
	return client, nil
}

// CloudConnector builds an OAuth-authorized client for a cloud drive.
type CloudConnector struct {
	Unlocker  Unlocker
	Provider  oauth2.Provider
	Timeout   time.Duration
	NewClient func(httpClient *http.Client) storage.Client
}

func (c CloudConnector) Connect(ctx context.Context, sourceName string, askForUnlock bool) (storage.Client, error) {
	creds, err := unlockAs[storagesource.RemoteOAuthContext](ctx, c.Unlocker, sourceName, askForUnlock, c.Provider.Kind)
	if err != nil {
		return nil, err
	}

	// The token source outlives this call, so it must not inherit ctx.
	httpClient, err := c.Provider.Client(context.WithoutCancel(ctx), oauth2.ClientCredentials{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RefreshToken: creds.RefreshToken,
	}, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %w", storagesource.ErrConfiguration, sourceName, err)
	}
	return c.NewClient(httpClient), nil
}

// GoogleDriveClient returns a NewClient function for Google Drive.
func GoogleDriveClient(apiURL, uploadURL string) func(*http.Client) storage.Client {
	return func(httpClient *http.Client) storage.Client {
		return gdrive.NewClient(httpClient, apiURL, uploadURL)
	}
}

// OneDriveClient returns a NewClient function for OneDrive.
func OneDriveClient(apiURL string) func(*http.Client) storage.Client {
	return func(httpClient *http.Client) storage.Client {
		return onedrive.NewClient(httpClient, apiURL)
	}
}
