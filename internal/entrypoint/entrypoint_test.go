package entrypoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarysync/internal/config"
	"github.com/mrlokans/librarysync/internal/entities"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.Credentials.Manager = config.CredentialManagerNone
	return cfg
}

func TestBuild_SeedsDefaultCloudSources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.GoogleDrive.ClientID = "gdrive-app"

	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	summaries, err := app.Sources.ListStorageSources(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "gdrive-default", summaries[0].Name)
	assert.True(t, summaries[0].Active)

	assert.Equal(t, entities.StorageKindBrowser, app.Registry.CurrentKind())

	w := httptest.NewRecorder()
	app.Router("test").ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storage": "browser"`)
}

func TestBuild_UnknownCredentialManager(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials.Manager = "vault"

	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "credential manager")
}

func TestBuild_PersistsRegistryAcrossRuns(t *testing.T) {
	cfg := testConfig(t)

	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, app.Registry.SetCurrentKind(entities.StorageKindWebDAV))
	require.NoError(t, app.Close())

	app, err = Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	assert.Equal(t, entities.StorageKindWebDAV, app.Registry.CurrentKind())
}
