package http

import (
	"github.com/mrlokans/librarysync/internal/database"
	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/scheduler"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	Database *database.Database
	Version  string

	// Storage sources
	Sources  *storagesource.Service
	Registry *storagesource.Registry

	// Library access
	Handlers  HandlerProvider
	Secrets   SecretChecker
	Library   *library.Repository
	Scheduler *scheduler.LibrarySyncScheduler

	// RequestLogging enables gin's access log.
	RequestLogging bool
}
