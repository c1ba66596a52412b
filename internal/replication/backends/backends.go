// Package backends selects the replication handler for a storage kind.
package backends

import (
	"fmt"
	"time"

	"github.com/mrlokans/librarysync/internal/config"
	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/oauth2"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/replication/filestore"
	"github.com/mrlokans/librarysync/internal/replication/local"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// Deps are the collaborators handlers are built from.
type Deps struct {
	Unlocker    Unlocker
	Library     *library.Repository
	OAuth       *oauth2.Registry
	Timeout     time.Duration
	RemoteRoot  string
	GoogleDrive config.GoogleDrive
	OneDrive    config.OneDrive
}

// New returns the handler for kind, configured with settings.
func New(kind entities.StorageKind, deps Deps, settings replication.Settings) (replication.Handler, error) {
	if kind == entities.StorageKindBrowser {
		if deps.Library == nil {
			return nil, fmt.Errorf("%w: local library is not available", storagesource.ErrConfiguration)
		}
		return local.New(deps.Library, settings), nil
	}

	if deps.Unlocker == nil {
		return nil, fmt.Errorf("%w: no unlocker for %s", storagesource.ErrConfiguration, kind)
	}

	var opts []filestore.Option
	if deps.Library != nil {
		opts = append(opts, filestore.WithCache(deps.Library))
	}

	var connector filestore.Connector
	switch kind {
	case entities.StorageKindFilesystem:
		connector = FilesystemConnector{Unlocker: deps.Unlocker}
	case entities.StorageKindWebDAV:
		connector = WebDAVConnector{Unlocker: deps.Unlocker, Timeout: deps.Timeout}
		opts = append(opts, filestore.WithRoot(deps.RemoteRoot))
	case entities.StorageKindGoogleDrive, entities.StorageKindOneDrive:
		cloud, err := cloudConnector(kind, deps)
		if err != nil {
			return nil, err
		}
		connector = cloud
		opts = append(opts, filestore.WithRoot(deps.RemoteRoot))
	default:
		return nil, fmt.Errorf("%w: unknown storage kind %q", storagesource.ErrConfiguration, kind)
	}

	return filestore.New(kind, connector, settings, opts...), nil
}

func cloudConnector(kind entities.StorageKind, deps Deps) (CloudConnector, error) {
	registry := deps.OAuth
	if registry == nil {
		registry = oauth2.DefaultRegistry()
	}
	provider, err := registry.Get(kind)
	if err != nil {
		return CloudConnector{}, fmt.Errorf("%w: %w", storagesource.ErrConfiguration, err)
	}

	connector := CloudConnector{Unlocker: deps.Unlocker, Provider: provider, Timeout: deps.Timeout}
	if kind == entities.StorageKindGoogleDrive {
		connector.NewClient = GoogleDriveClient(deps.GoogleDrive.APIBaseURL, deps.GoogleDrive.UploadURL)
	} else {
		connector.NewClient = OneDriveClient(deps.OneDrive.APIBaseURL)
	}
	return connector, nil
}

// SettingsFromConfig builds handler settings from configuration. Invalid
// modes fall back to the defaults.
func SettingsFromConfig(cfg config.Replication, sourceName string) replication.Settings {
	settings := replication.DefaultSettings()
	settings.SourceName = sourceName
	settings.AskForStorageUnlock = cfg.AskForStorageUnlock
	settings.CacheStorageData = cfg.CacheStorageData
	if behavior, err := replication.ParseSaveBehavior(cfg.SaveBehavior); err == nil {
		settings.SaveBehavior = behavior
	}
	if mode, err := replication.ParseMergeMode(cfg.StatisticsMergeMode); err == nil {
		settings.StatisticsMergeMode = mode
	}
	if mode, err := replication.ParseMergeMode(cfg.ReadingGoalsMergeMode); err == nil {
		settings.ReadingGoalsMergeMode = mode
	}
	return settings
}
