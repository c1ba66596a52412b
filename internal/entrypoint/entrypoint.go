package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarysync/internal/config"
	"github.com/mrlokans/librarysync/internal/credentials"
	"github.com/mrlokans/librarysync/internal/database"
	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/database/settings"
	"github.com/mrlokans/librarysync/internal/database/sources"
	syncrepo "github.com/mrlokans/librarysync/internal/database/sync"
	"github.com/mrlokans/librarysync/internal/entities"
	http_controllers "github.com/mrlokans/librarysync/internal/http"
	"github.com/mrlokans/librarysync/internal/logging"
	"github.com/mrlokans/librarysync/internal/oauth2"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/replication/backends"
	"github.com/mrlokans/librarysync/internal/scheduler"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// App holds the wired application components.
type App struct {
	Config      *config.Config
	Database    *database.Database
	Registry    *storagesource.Registry
	Sources     *storagesource.Service
	Coordinator *storagesource.Coordinator
	Library     *library.Repository
	Handlers    *backends.Set
	Scheduler   *scheduler.LibrarySyncScheduler
}

// Build opens the database and wires every component. prompter answers
// unlock requests and may be nil.
func Build(ctx context.Context, cfg *config.Config, prompter storagesource.Prompter) (*App, error) {
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	manager, err := credentials.New(cfg.Credentials, db.DB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	settingsRepo := settings.NewRepository(db.DB)
	registry := storagesource.NewRegistry(settingsRepo)
	if err := registry.Load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load active storage sources: %w", err)
	}

	sourceRepo := sources.NewRepository(db.DB)
	service := storagesource.NewService(sourceRepo, manager, registry)
	err = service.SeedDefaults(ctx, map[entities.StorageKind]storagesource.RemoteOAuthContext{
		entities.StorageKindGoogleDrive: {ClientID: cfg.GoogleDrive.ClientID, ClientSecret: cfg.GoogleDrive.ClientSecret},
		entities.StorageKindOneDrive:    {ClientID: cfg.OneDrive.ClientID, ClientSecret: cfg.OneDrive.ClientSecret},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed default storage sources: %w", err)
	}

	coordinator := storagesource.NewCoordinator(sourceRepo, manager, prompter)
	libraryRepo := library.NewRepository(db.DB)

	handlers := backends.NewSet(backends.Deps{
		Unlocker:    coordinator,
		Library:     libraryRepo,
		OAuth:       oauth2.DefaultRegistry(),
		Timeout:     cfg.WebDAV.Timeout,
		RemoteRoot:  cfg.Replication.RemoteRoot,
		GoogleDrive: cfg.GoogleDrive,
		OneDrive:    cfg.OneDrive,
	}, cfg.Replication, registry)

	sched := scheduler.NewLibrarySyncScheduler(
		scheduler.LibrarySyncConfig{Enabled: cfg.LibrarySync.Enabled, Schedule: cfg.LibrarySync.Schedule},
		func(kind entities.StorageKind, _ string) (replication.Handler, error) {
			return handlers.Handler(kind)
		},
		registry,
		libraryRepo,
		syncrepo.NewRepository(db.DB, entities.SyncTypeLibrary),
		settingsRepo,
	)

	return &App{
		Config:      cfg,
		Database:    db,
		Registry:    registry,
		Sources:     service,
		Coordinator: coordinator,
		Library:     libraryRepo,
		Handlers:    handlers,
		Scheduler:   sched,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Database.Close()
}

// Router builds the management API of the app.
func (a *App) Router(version string) *gin.Engine {
	return http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       a.Database,
		Version:        version,
		Sources:        a.Sources,
		Registry:       a.Registry,
		Handlers:       a.Handlers,
		Secrets:        a.Coordinator,
		Library:        a.Library,
		Scheduler:      a.Scheduler,
		RequestLogging: a.Config.Log.Level == "debug",
	})
}

// Serve runs srv until SIGINT or SIGTERM, then shuts it down gracefully.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("starting server", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-quit:
	}
	logging.Info("shutting down server", logging.String("timeout", timeout.String()))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work before the listener.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logging.Info("server exited")
	return nil
}

// Run starts the scheduler and the API server of app.
func Run(app *App, version string) error {
	logging.Info("starting librarysync",
		logging.String("version", version),
		logging.Kind(string(app.Registry.CurrentKind())),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Scheduler.Start(ctx); err != nil {
		logging.Warn("library sync scheduler not started", logging.Err(err))
	}

	return Serve(app.Router(version), app.Config, func(context.Context) {
		app.Scheduler.Stop()
	})
}
