package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarysync/internal/database"
	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/database/settings"
	syncrepo "github.com/mrlokans/librarysync/internal/database/sync"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/replication/filestore"
	"github.com/mrlokans/librarysync/internal/storage"
	"github.com/mrlokans/librarysync/internal/storage/providers/filesystem"
)

type fixedSelection struct {
	kind entities.StorageKind
	name string
}

func (f fixedSelection) CurrentKind() entities.StorageKind { return f.kind }
func (f fixedSelection) ActiveSource(entities.StorageKind) string { return f.name }

type testEnv struct {
	fs       afero.Fs
	library  *library.Repository
	settings *settings.Repository
	progress *syncrepo.Repository
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &testEnv{
		fs:       afero.NewMemMapFs(),
		library:  library.NewRepository(db.DB),
		settings: settings.NewRepository(db.DB),
		progress: syncrepo.NewRepository(db.DB, entities.SyncTypeLibrary),
	}
}

func (e *testEnv) factory(kind entities.StorageKind, sourceName string) (replication.Handler, error) {
	connector := filestore.ConnectorFunc(func(context.Context, string, bool) (storage.Client, error) {
		return filesystem.NewClientFromFs(e.fs), nil
	})
	settings := replication.DefaultSettings()
	settings.SourceName = sourceName
	return filestore.New(kind, connector, settings, filestore.WithRoot("/library")), nil
}

func (e *testEnv) scheduler(cfg LibrarySyncConfig, factory HandlerFactory) *LibrarySyncScheduler {
	return NewLibrarySyncScheduler(cfg, factory,
		fixedSelection{kind: entities.StorageKindWebDAV, name: "nas"},
		e.library, e.progress, e.settings)
}

func TestSyncOnce_ReplacesEntries(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(env.fs, "/library/Dune.epub", []byte("epub"), 0o644))
	require.NoError(t, afero.WriteFile(env.fs, "/library/Emma/bookdata_10.json", []byte(`{"title":"Emma"}`), 0o644))

	require.NoError(t, env.library.ReplaceEntries(ctx, entities.StorageKindWebDAV, "nas",
		[]entities.LibraryEntry{{BookID: "stale", Title: "Gone"}}))

	s := env.scheduler(LibrarySyncConfig{}, env.factory)
	count, err := s.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entries, err := env.library.ListEntries(ctx, entities.StorageKindWebDAV, "nas")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Dune", entries[0].Title)
	assert.Equal(t, "Emma", entries[1].Title)
	assert.Equal(t, "Emma/bookdata_10.json", entries[1].BookID)

	status, ok, err := env.settings.GetValue(entities.SettingKeyLibrarySyncLastStatus)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusSuccess, status)

	progress, err := env.progress.GetSyncProgress()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, progress.Status)
	assert.Equal(t, entities.StorageKindWebDAV, progress.Kind)
	assert.Equal(t, "nas", progress.SourceName)
}

func TestSyncOnce_FactoryError(t *testing.T) {
	env := setupEnv(t)
	failing := func(entities.StorageKind, string) (replication.Handler, error) {
		return nil, errors.New("locked")
	}

	s := env.scheduler(LibrarySyncConfig{}, failing)
	_, err := s.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	status, _, err := env.settings.GetValue(entities.SettingKeyLibrarySyncLastStatus)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	msg, _, err := env.settings.GetValue(entities.SettingKeyLibrarySyncLastMessage)
	require.NoError(t, err)
	assert.Contains(t, msg, "locked")

	progress, err := env.progress.GetSyncProgress()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, progress.Status)
}

func TestSyncOnce_SkipsWhileAnotherSyncRuns(t *testing.T) {
	env := setupEnv(t)
	require.NoError(t, env.progress.StartSync(entities.StorageKindWebDAV, "nas", 0))

	called := false
	factory := func(kind entities.StorageKind, name string) (replication.Handler, error) {
		called = true
		return env.factory(kind, name)
	}

	s := env.scheduler(LibrarySyncConfig{}, factory)
	count, err := s.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.False(t, called)

	status, _, err := env.settings.GetValue(entities.SettingKeyLibrarySyncLastStatus)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
}

func TestValidateCronSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"*/30 * * * *", false},
		{"0 0 * * 0", false},
		{"* * * *", true},
		{"0 0 * * * *", true},
		{"not a schedule", true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := ValidateCronSchedule(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetCronDescription(t *testing.T) {
	assert.Equal(t, "Every 30 minutes", GetCronDescription("*/30 * * * *"))
	assert.Equal(t, "Custom schedule: 5 4 * * *", GetCronDescription("5 4 * * *"))
}

func TestScheduler_StartStop(t *testing.T) {
	env := setupEnv(t)

	disabled := env.scheduler(LibrarySyncConfig{Enabled: false, Schedule: "*/5 * * * *"}, env.factory)
	require.NoError(t, disabled.Start(context.Background()))
	assert.False(t, disabled.IsRunning())
	assert.Nil(t, disabled.GetNextRunTime())

	invalid := env.scheduler(LibrarySyncConfig{Enabled: true, Schedule: "bogus"}, env.factory)
	assert.Error(t, invalid.Start(context.Background()))
	assert.False(t, invalid.IsRunning())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := env.scheduler(LibrarySyncConfig{Enabled: true, Schedule: "*/5 * * * *"}, env.factory)
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())

	next := s.GetNextRunTime()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())
}

func TestScheduler_StopsWhenContextEnds(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	s := env.scheduler(LibrarySyncConfig{Enabled: true, Schedule: "0 * * * *"}, env.factory)
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestScheduler_Reschedule(t *testing.T) {
	env := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := env.scheduler(LibrarySyncConfig{Enabled: true, Schedule: "0 * * * *"}, env.factory)
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Reschedule(ctx, LibrarySyncConfig{Enabled: true, Schedule: "*/15 * * * *"}))
	assert.True(t, s.IsRunning())
	require.NotNil(t, s.GetNextRunTime())

	require.NoError(t, s.Reschedule(ctx, LibrarySyncConfig{Enabled: false}))
	assert.False(t, s.IsRunning())
}

func TestRunNow_ListsInBackground(t *testing.T) {
	env := setupEnv(t)
	require.NoError(t, afero.WriteFile(env.fs, "/library/Dune.epub", []byte("epub"), 0o644))

	s := env.scheduler(LibrarySyncConfig{}, env.factory)
	s.RunNow()

	assert.Eventually(t, func() bool {
		entries, err := env.library.ListEntries(context.Background(), entities.StorageKindWebDAV, "nas")
		return err == nil && len(entries) == 1
	}, 2*time.Second, 20*time.Millisecond)
}
