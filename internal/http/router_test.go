package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebdav "golang.org/x/net/webdav"

	"github.com/mrlokans/librarysync/internal/config"
	"github.com/mrlokans/librarysync/internal/credentials"
	"github.com/mrlokans/librarysync/internal/database"
	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/database/settings"
	"github.com/mrlokans/librarysync/internal/database/sources"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/replication/backends"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

type apiEnv struct {
	router   *gin.Engine
	registry *storagesource.Registry
	library  *library.Repository
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := storagesource.NewRegistry(settings.NewRepository(db.DB))
	require.NoError(t, registry.Load())

	sourceRepo := sources.NewRepository(db.DB)
	manager := credentials.NoopManager{}
	libraryRepo := library.NewRepository(db.DB)
	coordinator := storagesource.NewCoordinator(sourceRepo, manager, storagesource.ContextPrompter{})

	set := backends.NewSet(backends.Deps{
		Unlocker:   coordinator,
		Library:    libraryRepo,
		Timeout:    5 * time.Second,
		RemoteRoot: "/LibrarySync",
	}, config.Replication{AskForStorageUnlock: true, SaveBehavior: "newOnly"}, registry)

	router := NewRouter(RouterConfig{
		Database: db,
		Version:  "test",
		Sources:  storagesource.NewService(sourceRepo, manager, registry),
		Registry: registry,
		Handlers: set,
		Secrets:  coordinator,
		Library:  libraryRepo,
	})
	return &apiEnv{router: router, registry: registry, library: libraryRepo}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAPI_FilesystemSourceLifecycle(t *testing.T) {
	env := setupAPI(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dune.epub"), []byte("epub"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Emma"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Emma", "bookdata_10.json"), []byte(`{"title":"Emma"}`), 0o644))

	w := env.do(t, "POST", "/api/sources", gin.H{
		"name":        "disk",
		"kind":        "fs",
		"credentials": gin.H{"fsPath": dir},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, "GET", "/api/sources?kind=fs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sources []storagesource.Summary `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Sources, 1)
	assert.Equal(t, "disk", list.Sources[0].Name)
	assert.False(t, list.Sources[0].Encrypted)

	w = env.do(t, "PUT", "/api/sources/active", gin.H{"kind": "fs", "name": "disk", "select": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var active ActiveSourcesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	assert.Equal(t, entities.StorageKindFilesystem, active.Current)
	assert.Equal(t, "disk", active.Active[entities.StorageKindFilesystem])

	w = env.do(t, "GET", "/api/library/fs/books", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var books BookListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	assert.Equal(t, "disk", books.Source)
	require.Len(t, books.Books, 2)
	assert.Equal(t, "Dune", books.Books[0].Title)
	assert.True(t, books.Books[0].PlainFile)
	assert.Equal(t, "Emma", books.Books[1].Title)

	w = env.do(t, "POST", "/api/library/fs/delete", gin.H{"titles": []string{"Emma", "Ghost"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result replication.DeleteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Cancelled)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, replication.DeleteDeleted, result.Outcomes[0].Status)
	assert.Equal(t, replication.DeleteSkipped, result.Outcomes[1].Status)
	assert.NoDirExists(t, filepath.Join(dir, "Emma"))

	w = env.do(t, "DELETE", "/api/sources/disk", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, entities.StorageKindBrowser, env.registry.CurrentKind(), "removing the active filesystem source resets the selection")
}

func TestAPI_SourceValidation(t *testing.T) {
	env := setupAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"missing credentials", "POST", "/api/sources", gin.H{"name": "x", "kind": "webdav"}, http.StatusBadRequest},
		{"unrecognised credentials", "POST", "/api/sources", gin.H{"name": "x", "kind": "webdav", "credentials": gin.H{"foo": 1}}, http.StatusBadRequest},
		{"credentials of another kind", "POST", "/api/sources", gin.H{"name": "x", "kind": "webdav", "credentials": gin.H{"fsPath": "/tmp"}}, http.StatusBadRequest},
		{"unknown kind filter", "GET", "/api/sources?kind=dropbox", nil, http.StatusBadRequest},
		{"delete default source", "DELETE", "/api/sources/gdrive-default", nil, http.StatusBadRequest},
		{"delete missing source", "DELETE", "/api/sources/missing", nil, http.StatusNotFound},
		{"activate missing source", "PUT", "/api/sources/active", gin.H{"kind": "webdav", "name": "missing"}, http.StatusNotFound},
		{"activate unknown kind", "PUT", "/api/sources/active", gin.H{"kind": "dropbox"}, http.StatusBadRequest},
		{"books of unknown kind", "GET", "/api/library/dropbox/books", nil, http.StatusBadRequest},
		{"delete without titles", "POST", "/api/library/fs/delete", gin.H{"titles": []string{" "}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestAPI_EncryptedWebDAVSourceUnlocksWithHeader(t *testing.T) {
	env := setupAPI(t)

	fs := xwebdav.NewMemFS()
	require.NoError(t, fs.Mkdir(context.Background(), "/LibrarySync", 0o755))
	dav := &xwebdav.Handler{FileSystem: fs, LockSystem: xwebdav.NewMemLS()}
	server := httptest.NewServer(dav)
	defer server.Close()

	w := env.do(t, "POST", "/api/sources", gin.H{
		"name":        "nas",
		"kind":        "webdav",
		"credentials": gin.H{"url": server.URL, "username": "reader", "password": "pw"},
		"secret":      "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, "PUT", "/api/sources/active", gin.H{"kind": "webdav", "name": "nas"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "GET", "/api/library/webdav/books", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

	w = env.do(t, "GET", "/api/library/webdav/books", nil, SecretHeader, "wrong")
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.do(t, "GET", "/api/library/webdav/books", nil, SecretHeader, "s3cret")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"kind":"webdav","source":"nas","books":[]}`, w.Body.String())

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		headers []string
		want    int
	}{
		{"books without secret after unlock", "GET", "/api/library/webdav/books", nil, nil, http.StatusUnauthorized},
		{"books with secret", "GET", "/api/library/webdav/books", nil, []string{SecretHeader, "s3cret"}, http.StatusOK},
		{"delete without secret", "POST", "/api/library/webdav/delete", gin.H{"titles": []string{"Dune"}}, nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, tt.headers...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), CodeUnlockFailed)
			}
		})
	}
}

func TestAPI_BackendUnavailable(t *testing.T) {
	env := setupAPI(t)

	w := env.do(t, "POST", "/api/sources", gin.H{
		"name":        "gone",
		"kind":        "fs",
		"credentials": gin.H{"fsPath": filepath.Join(t.TempDir(), "missing")},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, env.registry.SetActiveSource("gone", entities.StorageKindFilesystem))

	w = env.do(t, "GET", "/api/library/fs/books", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), CodeBackendUnavailable)
}

func TestAPI_EntriesAndBrowserLibrary(t *testing.T) {
	env := setupAPI(t)
	ctx := context.Background()

	_, err := env.library.SaveBook(ctx, &entities.BookData{Title: "Local Book", Characters: 42})
	require.NoError(t, err)
	require.NoError(t, env.library.ReplaceEntries(ctx, entities.StorageKindBrowser, "",
		[]entities.LibraryEntry{{BookID: "1", Title: "Local Book"}}))

	w := env.do(t, "GET", "/api/library/browser/books", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var books BookListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	require.Len(t, books.Books, 1)
	assert.Equal(t, "Local Book", books.Books[0].Title)
	assert.Equal(t, int64(42), books.Books[0].Size)

	w = env.do(t, "GET", "/api/library/browser/entries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"Local Book"`)

	w = env.do(t, "POST", "/api/library/sync", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "sync routes need a scheduler")
}
