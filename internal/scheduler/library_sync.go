package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
	"github.com/mrlokans/librarysync/internal/replication"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// DefaultSyncTimeout bounds one listing run.
const DefaultSyncTimeout = 10 * time.Minute

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// HandlerFactory builds the replication handler of a storage source.
type HandlerFactory func(kind entities.StorageKind, sourceName string) (replication.Handler, error)

// SourceSelection reports which backend the library currently lives on.
type SourceSelection interface {
	CurrentKind() entities.StorageKind
	ActiveSource(kind entities.StorageKind) string
}

// EntryStore caches backend book lists.
type EntryStore interface {
	ReplaceEntries(ctx context.Context, kind entities.StorageKind, sourceName string, entries []entities.LibraryEntry) error
}

// ProgressReporter tracks the state of a sync run.
type ProgressReporter interface {
	IsSyncRunning() (bool, error)
	StartSync(kind entities.StorageKind, sourceName string, totalItems int) error
	UpdateProgress(processed, succeeded, failed, skipped int, currentItem string) error
	CompleteSync(succeeded bool, errorMsg string) error
}

// StatusStore persists the outcome of the last run.
type StatusStore interface {
	SetSetting(key, value string) error
}

// LibrarySyncConfig configures the scheduler.
type LibrarySyncConfig struct {
	Enabled  bool
	Schedule string
	Timeout  time.Duration
}

// LibrarySyncScheduler periodically snapshots the book list of the active
// storage source into the local library cache.
type LibrarySyncScheduler struct {
	config   LibrarySyncConfig
	handlers HandlerFactory
	sources  SourceSelection
	entries  EntryStore
	progress ProgressReporter
	status   StatusStore

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	run        int
	cancelFunc context.CancelFunc
}

// NewLibrarySyncScheduler creates a new scheduler instance.
func NewLibrarySyncScheduler(
	cfg LibrarySyncConfig,
	handlers HandlerFactory,
	sources SourceSelection,
	entries EntryStore,
	progress ProgressReporter,
	status StatusStore,
) *LibrarySyncScheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}
	return &LibrarySyncScheduler{
		config:   cfg,
		handlers: handlers,
		sources:  sources,
		entries:  entries,
		progress: progress,
		status:   status,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// ValidateCronSchedule validates a five-field cron schedule string.
func ValidateCronSchedule(schedule string) error {
	_, err := cronParser.Parse(schedule)
	return err
}

// GetCronDescription returns a human-readable description of a cron schedule.
func GetCronDescription(schedule string) string {
	switch schedule {
	case "0 * * * *":
		return "Every hour at :00"
	case "*/15 * * * *":
		return "Every 15 minutes"
	case "*/30 * * * *":
		return "Every 30 minutes"
	case "0 */6 * * *":
		return "Every 6 hours"
	case "0 0 * * *":
		return "Daily at midnight"
	default:
		return "Custom schedule: " + schedule
	}
}

// Start begins the scheduler if sync is enabled.
func (s *LibrarySyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		logging.Info("library sync scheduler: disabled")
		return nil
	}
	if err := ValidateCronSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid library sync schedule %q: %w", s.config.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, s.runSync)
	if err != nil {
		return fmt.Errorf("failed to schedule library sync: %w", err)
	}
	s.entryID = entryID

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.run++
	run := s.run
	s.cron.Start()
	s.isRunning = true

	logging.Info("library sync scheduler: started",
		logging.String("schedule", s.config.Schedule),
		logging.String("description", GetCronDescription(s.config.Schedule)))

	go func() {
		<-ctx.Done()
		s.stopRun(run)
	}()

	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *LibrarySyncScheduler) Stop() {
	s.mu.RLock()
	run := s.run
	s.mu.RUnlock()
	s.stopRun(run)
}

// stopRun stops the scheduler only if it is still on the given run, so a
// stale context watcher cannot stop a rescheduled instance.
func (s *LibrarySyncScheduler) stopRun(run int) {
	s.mu.Lock()
	if !s.isRunning || s.run != run {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancelFunc
	s.cancelFunc = nil
	c := s.cron
	c.Remove(s.entryID)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-c.Stop().Done()
	logging.Info("library sync scheduler: stopped")
}

// Reschedule restarts the scheduler with a new configuration.
func (s *LibrarySyncScheduler) Reschedule(ctx context.Context, cfg LibrarySyncConfig) error {
	s.Stop()

	s.mu.Lock()
	if cfg.Timeout <= 0 {
		cfg.Timeout = s.config.Timeout
	}
	s.config = cfg
	s.cron = cron.New(cron.WithParser(cronParser))
	s.mu.Unlock()

	return s.Start(ctx)
}

// RunNow triggers an immediate sync in the background.
func (s *LibrarySyncScheduler) RunNow() {
	go s.runSync()
}

// IsRunning reports whether the scheduler is active.
func (s *LibrarySyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns the next scheduled run, or nil when idle.
func (s *LibrarySyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *LibrarySyncScheduler) runSync() {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		logging.Info("library sync: skipped (already syncing)")
		return
	}
	s.isSyncing = true
	timeout := s.config.Timeout
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := s.SyncOnce(ctx); err != nil {
		logging.Warn("library sync: run failed", logging.Err(err))
	}
}

// SyncOnce lists the active source and replaces its cached entries. It
// returns the number of books seen.
func (s *LibrarySyncScheduler) SyncOnce(ctx context.Context) (int, error) {
	running, err := s.progress.IsSyncRunning()
	if err != nil {
		return 0, fmt.Errorf("failed to read sync progress: %w", err)
	}
	if running {
		s.recordStatus(StatusSkipped, "Another sync is in progress")
		return 0, nil
	}

	kind := s.sources.CurrentKind()
	sourceName := s.sources.ActiveSource(kind)
	log := logging.L().With(logging.Kind(string(kind)), logging.Source(sourceName))

	startTime := time.Now()
	if err := s.progress.StartSync(kind, sourceName, 0); err != nil {
		return 0, fmt.Errorf("failed to start sync: %w", err)
	}

	books, err := s.listBooks(ctx, kind, sourceName)
	if err != nil {
		s.fail(err)
		return 0, err
	}

	entries := make([]entities.LibraryEntry, 0, len(books))
	for _, book := range books {
		entries = append(entries, entities.LibraryEntry{
			BookID:       book.ID,
			Title:        book.Title,
			Size:         book.Size,
			LastModified: book.LastModified,
		})
	}
	_ = s.progress.UpdateProgress(len(entries), len(entries), 0, 0, "")

	if err := s.entries.ReplaceEntries(ctx, kind, sourceName, entries); err != nil {
		err = fmt.Errorf("failed to store library entries: %w", err)
		s.fail(err)
		return 0, err
	}

	msg := fmt.Sprintf("Listed %d books in %v", len(entries), time.Since(startTime).Round(time.Millisecond))
	log.Info("library sync: " + msg)
	_ = s.progress.CompleteSync(true, "")
	s.recordStatus(StatusSuccess, msg)
	return len(entries), nil
}

func (s *LibrarySyncScheduler) listBooks(ctx context.Context, kind entities.StorageKind, sourceName string) ([]replication.BookSummary, error) {
	if s.handlers == nil {
		return nil, errors.New("no handler factory configured")
	}
	handler, err := s.handlers(kind, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", kind, err)
	}
	return handler.GetBookList(ctx)
}

func (s *LibrarySyncScheduler) fail(err error) {
	_ = s.progress.CompleteSync(false, err.Error())
	s.recordStatus(StatusFailed, err.Error())
}

func (s *LibrarySyncScheduler) recordStatus(status, message string) {
	if s.status == nil {
		return
	}
	values := map[string]string{
		entities.SettingKeyLibrarySyncLastAt:      strconv.FormatInt(time.Now().Unix(), 10),
		entities.SettingKeyLibrarySyncLastStatus:  status,
		entities.SettingKeyLibrarySyncLastMessage: message,
	}
	for key, value := range values {
		if err := s.status.SetSetting(key, value); err != nil {
			logging.Warn("library sync: failed to record status", logging.String("key", key), logging.Err(err))
		}
	}
}
