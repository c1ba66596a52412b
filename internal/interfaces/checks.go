package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/librarysync/internal/cli"
	"github.com/mrlokans/librarysync/internal/credentials"
	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/database/settings"
	"github.com/mrlokans/librarysync/internal/database/sources"
	"github.com/mrlokans/librarysync/internal/database/sync"
	"github.com/mrlokans/librarysync/internal/http"
	"github.com/mrlokans/librarysync/internal/replication/backends"
	"github.com/mrlokans/librarysync/internal/replication/filestore"
	"github.com/mrlokans/librarysync/internal/scheduler"
	"github.com/mrlokans/librarysync/internal/storage"
	"github.com/mrlokans/librarysync/internal/storage/providers/filesystem"
	"github.com/mrlokans/librarysync/internal/storage/providers/gdrive"
	"github.com/mrlokans/librarysync/internal/storage/providers/onedrive"
	"github.com/mrlokans/librarysync/internal/storage/providers/webdav"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// SourceRepository implementations
var _ storagesource.SourceRepository = (*sources.Repository)(nil)

// PointerStore / StatusStore implementations
var _ storagesource.PointerStore = (*settings.Repository)(nil)
var _ scheduler.StatusStore = (*settings.Repository)(nil)

// Library cache implementations
var _ filestore.Cache = (*library.Repository)(nil)
var _ scheduler.EntryStore = (*library.Repository)(nil)

// =============================================================================
// Credentials
// =============================================================================

// CredentialManager implementations
var _ storagesource.CredentialManager = (*credentials.KeyringManager)(nil)
var _ storagesource.CredentialManager = (*credentials.DatabaseManager)(nil)
var _ storagesource.CredentialManager = credentials.NoopManager{}

// Prompter implementations
var _ storagesource.Prompter = storagesource.ContextPrompter{}
var _ storagesource.Prompter = (*cli.TerminalPrompter)(nil)

// Unlocker implementations
var _ backends.Unlocker = (*storagesource.Coordinator)(nil)

// =============================================================================
// Storage Drivers
// =============================================================================

// Client implementations
var _ storage.Client = (*filesystem.Client)(nil)
var _ storage.Client = (*webdav.Client)(nil)
var _ storage.Client = (*gdrive.Client)(nil)
var _ storage.Client = (*onedrive.Client)(nil)

// =============================================================================
// Selection and Progress Tracking
// =============================================================================

var _ scheduler.SourceSelection = (*storagesource.Registry)(nil)
var _ backends.Selection = (*storagesource.Registry)(nil)
var _ http.SourceSelection = (*storagesource.Registry)(nil)
var _ http.KindSelection = (*storagesource.Registry)(nil)
var _ http.HandlerProvider = (*backends.Set)(nil)

// ProgressReporter implementations
var _ scheduler.ProgressReporter = (*sync.Repository)(nil)
