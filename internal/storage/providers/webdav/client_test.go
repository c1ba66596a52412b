package webdav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebdav "golang.org/x/net/webdav"

	"github.com/mrlokans/librarysync/internal/storage"
)

func newTestServer(t *testing.T, user, pass string) *httptest.Server {
	t.Helper()
	handler := &xwebdav.Handler{
		FileSystem: xwebdav.NewMemFS(),
		LockSystem: xwebdav.NewMemLS(),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_UploadListDownload(t *testing.T) {
	server := newTestServer(t, "reader", "secret")
	client := NewClient(server.URL, "reader", "secret", 5*time.Second)
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	require.NoError(t, storage.WriteFile(ctx, client, "/Dune/bookdata_1.json", []byte(`{"title":"Dune"}`)))
	require.NoError(t, storage.WriteFile(ctx, client, "/book.epub", []byte("epub")))

	entries, err := client.List(ctx, "/")
	require.NoError(t, err)

	byName := map[string]storage.FileInfo{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	require.Contains(t, byName, "Dune")
	require.Contains(t, byName, "book.epub")
	assert.True(t, byName["Dune"].IsDir)
	assert.Equal(t, "/book.epub", byName["book.epub"].Path)
	assert.Equal(t, int64(4), byName["book.epub"].Size)

	data, err := storage.ReadFile(ctx, client, "/Dune/bookdata_1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Dune"}`, string(data))
}

func TestClient_NotFound(t *testing.T) {
	server := newTestServer(t, "reader", "secret")
	client := NewClient(server.URL, "reader", "secret", 5*time.Second)
	ctx := context.Background()

	exists, err := client.Exists(ctx, "/missing.json")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = client.GetMetadata(ctx, "/missing.json")
	assert.True(t, storage.IsNotFound(err))

	_, err = storage.ListOrEmpty(ctx, client, "/missing")
	assert.NoError(t, err)

	assert.NoError(t, client.Delete(ctx, "/missing"))
}

func TestClient_DeleteDirectory(t *testing.T) {
	server := newTestServer(t, "reader", "secret")
	client := NewClient(server.URL, "reader", "secret", 5*time.Second)
	ctx := context.Background()

	require.NoError(t, client.Upload(ctx, "/Dune/progress_1.json", strings.NewReader("{}")))
	require.NoError(t, client.Delete(ctx, "/Dune"))

	exists, err := client.Exists(ctx, "/Dune")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_WrongCredentials(t *testing.T) {
	server := newTestServer(t, "reader", "secret")
	client := NewClient(server.URL, "reader", "wrong", 5*time.Second)

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))
}
