// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── sources/         # Storage source records
//	├── library/         # Local library data and cached remote book lists
//	├── sync/            # Sync progress tracking
//	└── settings/        # Application settings and active source pointers
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./librarysync.db")
//
//	sourcesRepo := sources.NewRepository(db.DB)
//	settingsRepo := settings.NewRepository(db.DB)
//
// # Interface Implementations
//
//   - sources.Repository: implements storagesource.SourceRepository and SourceStore
//   - settings.Repository: implements storagesource.PointerStore
//   - library.Repository: backs replication/local.Handler
//   - sync.Repository: implements scheduler.ProgressReporter
package database
