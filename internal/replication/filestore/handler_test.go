package filestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/storage"
	"github.com/mrlokans/librarysync/internal/storage/providers/filesystem"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

// faultyClient wraps a storage client and fails selected operations.
type faultyClient struct {
	storage.Client
	failDelete map[string]error
	failList   error
	onDelete   func(path string)
	closed     bool
}

func (c *faultyClient) List(ctx context.Context, p string) ([]storage.FileInfo, error) {
	if c.failList != nil {
		return nil, c.failList
	}
	return c.Client.List(ctx, p)
}

func (c *faultyClient) Delete(ctx context.Context, p string) error {
	if err, ok := c.failDelete[p]; ok {
		return err
	}
	err := c.Client.Delete(ctx, p)
	if c.onDelete != nil {
		c.onDelete(p)
	}
	return err
}

func (c *faultyClient) Close() error {
	c.closed = true
	return nil
}

type countingConnector struct {
	mu      sync.Mutex
	fs      afero.Fs
	calls   int
	sources []string
	clients []*faultyClient
	err     error
	during  func()
}

func (c *countingConnector) Connect(_ context.Context, sourceName string, _ bool) (storage.Client, error) {
	if c.during != nil {
		c.during()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.sources = append(c.sources, sourceName)
	if c.err != nil {
		return nil, c.err
	}
	client := &faultyClient{Client: filesystem.NewClientFromFs(c.fs), failDelete: map[string]error{}}
	c.clients = append(c.clients, client)
	return client, nil
}

func setupHandler(t *testing.T, settings replication.Settings, opts ...Option) (*Handler, *countingConnector) {
	t.Helper()
	connector := &countingConnector{fs: afero.NewMemMapFs()}
	settings.SourceName = "nas"
	opts = append([]Option{WithRoot("/library"), WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(entities.StorageKindWebDAV, connector, settings, opts...), connector
}

func writeFile(t *testing.T, fs afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
}

func TestGetBookList_FiltersHiddenAndUnknownFiles(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	writeFile(t, connector.fs, "/library/.hidden.epub", "x")
	writeFile(t, connector.fs, "/library/notes.txt", "x")
	writeFile(t, connector.fs, "/library/book.epub", "epub")
	writeFile(t, connector.fs, "/library/statistics_5.json", "[]")

	books, err := h.GetBookList(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "book.epub", books[0].ID)
	assert.Equal(t, "book", books[0].Title)
	assert.Equal(t, int64(4), books[0].Size)
	assert.True(t, books[0].PlainFile)
}

func TestGetBookList_BookFolders(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	writeFile(t, connector.fs, "/library/Dune/bookdata_100.json", `{"title":"Dune"}`)
	writeFile(t, connector.fs, "/library/Dune/progress_150.json", `{}`)
	writeFile(t, connector.fs, "/library/Empty/progress_1.json", `{}`)
	writeFile(t, connector.fs, "/library/.trash/bookdata_1.json", `{}`)

	books, err := h.GetBookList(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Dune/bookdata_100.json", books[0].ID)
	assert.Equal(t, int64(100), books[0].LastModified)
	assert.False(t, books[0].PlainFile)
}

func TestSaveBook_RoundTripAndFreshness(t *testing.T) {
	h, _ := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	present, err := h.IsBookPresentAndUpToDate(ctx, "Dune/bookdata_100.json")
	require.NoError(t, err)
	assert.False(t, present, "no remote file yet")

	book := &entities.BookData{ID: 7, Title: "Dune", Content: "<p>spice</p>", LastBookModified: 100, StorageSource: "old"}
	id, err := h.SaveBook(ctx, replication.RecordItem(book), replication.SaveOptions{RemoveStorageContext: true})
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, "old", book.StorageSource, "caller's record is not modified")

	ref, err := h.GetFilenameForRecentCheck(ctx, "Dune", replication.DataBook)
	require.NoError(t, err)
	assert.Equal(t, "Dune/bookdata_100.json", ref)

	present, err = h.IsBookPresentAndUpToDate(ctx, ref)
	require.NoError(t, err)
	assert.True(t, present)

	book.LastBookModified = 200
	_, err = h.SaveBook(ctx, replication.RecordItem(book), replication.SaveOptions{})
	require.NoError(t, err)

	present, err = h.IsBookPresentAndUpToDate(ctx, ref)
	require.NoError(t, err)
	assert.False(t, present, "older file was replaced")

	item, err := h.GetBook(ctx, "Dune")
	require.NoError(t, err)
	require.NotNil(t, item.Record)
	assert.Equal(t, "<p>spice</p>", item.Record.Content)
	assert.Equal(t, int64(200), item.Record.LastBookModified)
	assert.Equal(t, "old", item.Record.StorageSource)
}

func TestPresentAndUpToDate_RejectsMalformedReferences(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	writeFile(t, connector.fs, "/library/Dune/bookdata_100.json", `{}`)
	writeFile(t, connector.fs, "/library/statistics_100.json", `[]`)
	ctx := context.Background()

	tests := []struct {
		name  string
		check func(context.Context, string) (bool, error)
		ref   string
		want  bool
	}{
		{"book", h.IsBookPresentAndUpToDate, "Dune/bookdata_100.json", true},
		{"empty reference", h.IsBookPresentAndUpToDate, "", false},
		{"wrong kind", h.IsProgressPresentAndUpToDate, "Dune/bookdata_100.json", false},
		{"missing folder", h.IsBookPresentAndUpToDate, "bookdata_100.json", false},
		{"parent traversal", h.IsBookPresentAndUpToDate, "../bookdata_100.json", false},
		{"statistics", h.AreStatisticsPresentAndUpToDate, "statistics_100.json", true},
		{"statistics in folder", h.AreStatisticsPresentAndUpToDate, "Dune/statistics_100.json", false},
		{"goals absent", h.AreReadingGoalsPresentAndUpToDate, "readinggoals_1.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.check(ctx, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSave_NewOnlySkipsOlderData(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	require.NoError(t, h.SaveProgress(ctx, "Dune", replication.RecordItem(&entities.Bookmark{Progress: 0.5, LastBookmarkModified: 200}), replication.SaveOptions{}))
	require.NoError(t, h.SaveProgress(ctx, "Dune", replication.RecordItem(&entities.Bookmark{Progress: 0.1, LastBookmarkModified: 100}), replication.SaveOptions{}))

	item, err := h.GetProgress(ctx, "Dune")
	require.NoError(t, err)
	require.NotNil(t, item.Record)
	assert.Equal(t, 0.5, item.Record.Progress)

	settings := h.Settings()
	settings.SaveBehavior = replication.SaveOverwrite
	h.UpdateSettings(settings)
	require.NoError(t, h.SaveProgress(ctx, "Dune", replication.RecordItem(&entities.Bookmark{Progress: 0.1, LastBookmarkModified: 100}), replication.SaveOptions{}))

	item, err = h.GetProgress(ctx, "Dune")
	require.NoError(t, err)
	assert.Equal(t, 0.1, item.Record.Progress)

	files, err := afero.ReadDir(connector.fs, "/library/Dune")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSave_TimestampFallback(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	require.NoError(t, h.SaveAudioBook(ctx, "Dune", replication.RecordItem(&entities.AudioBook{Title: "Dune"}), replication.SaveOptions{}))
	exists, err := afero.Exists(connector.fs, "/library/Dune/audiobook_1700000000000.json")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, h.SaveSubtitleData(ctx, "Dune", replication.RecordItem(&entities.SubtitleData{Title: "Dune"}), replication.SaveOptions{SkipTimestampFallback: true}))
	exists, err = afero.Exists(connector.fs, "/library/Dune/subtitle_0.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSave_RawFileKeepsName(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	raw := &replication.Resource{Name: "progress_42.json", Data: []byte(`{"progress":0.3}`)}
	require.NoError(t, h.SaveProgress(ctx, "Dune", replication.RawItem[entities.Bookmark](raw), replication.SaveOptions{}))

	data, err := afero.ReadFile(connector.fs, "/library/Dune/progress_42.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"progress":0.3}`, string(data))
}

func TestGetBook_PlainFileAndAbsent(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	writeFile(t, connector.fs, "/library/Emma.epub", "epub-bytes")
	ctx := context.Background()

	item, err := h.GetBook(ctx, "Emma")
	require.NoError(t, err)
	require.NotNil(t, item.Raw)
	assert.Nil(t, item.Record)
	assert.Equal(t, "Emma.epub", item.Raw.Name)
	assert.Equal(t, "epub-bytes", string(item.Raw.Data))

	item, err = h.GetBook(ctx, "Missing")
	require.NoError(t, err)
	assert.True(t, item.Absent())

	cover, err := h.GetCover(ctx, "Missing")
	require.NoError(t, err)
	assert.Nil(t, cover)

	stats, lastModified, err := h.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Nil(t, stats)
	assert.Zero(t, lastModified)
}

func TestSaveBook_PlainFile(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	_, err := h.SaveBook(ctx, replication.RawItem[entities.BookData](&replication.Resource{Name: "Emma.epub", Data: []byte("e")}), replication.SaveOptions{})
	require.NoError(t, err)
	exists, err := afero.Exists(connector.fs, "/library/Emma.epub")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = h.SaveBook(ctx, replication.RawItem[entities.BookData](&replication.Resource{Name: "notes.txt"}), replication.SaveOptions{})
	assert.Error(t, err)
}

func TestCover_SaveGetRemove(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	require.NoError(t, h.SaveCover(ctx, "Dune", &replication.Resource{ContentType: "image/png", Data: []byte("png"), LastModified: 10}))
	require.NoError(t, h.SaveCover(ctx, "Dune", &replication.Resource{Name: "c.jpg", Data: []byte("jpg"), LastModified: 20}))

	cover, err := h.GetCover(ctx, "Dune")
	require.NoError(t, err)
	require.NotNil(t, cover)
	assert.Equal(t, "cover_20.jpg", cover.Name)
	assert.Equal(t, "image/jpeg", cover.ContentType)
	assert.Equal(t, "jpg", string(cover.Data))

	files, err := afero.ReadDir(connector.fs, "/library/Dune")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, h.SaveCover(ctx, "Dune", nil))
	cover, err = h.GetCover(ctx, "Dune")
	require.NoError(t, err)
	assert.Nil(t, cover)
}

func TestStatistics_MergeAndReplace(t *testing.T) {
	h, _ := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	require.NoError(t, h.SaveStatistics(ctx, []entities.Statistic{
		{Title: "Dune", DateKey: "2024-01-01", CharactersRead: 100, LastStatisticModified: 10},
	}, 10))
	require.NoError(t, h.SaveStatistics(ctx, []entities.Statistic{
		{Title: "Emma", DateKey: "2024-01-01", CharactersRead: 50, LastStatisticModified: 5},
	}, 5))

	rows, lastModified, err := h.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, int64(10), lastModified)

	settings := h.Settings()
	settings.StatisticsMergeMode = replication.MergeReplace
	settings.SaveBehavior = replication.SaveOverwrite
	h.UpdateSettings(settings)
	require.NoError(t, h.SaveStatistics(ctx, []entities.Statistic{
		{Title: "Emma", DateKey: "2024-01-02", LastStatisticModified: 30},
	}, 30))

	rows, lastModified, err = h.GetStatistics(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(30), lastModified)

	ref, err := h.GetFilenameForRecentCheck(ctx, "", replication.DataStatistics)
	require.NoError(t, err)
	assert.Equal(t, "statistics_30.json", ref)
}

func TestReadingGoals_Merge(t *testing.T) {
	h, _ := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	require.NoError(t, h.SaveReadingGoals(ctx, []entities.ReadingGoal{{GoalStartDate: "2024-01-01", GoalValue: 10, LastGoalModified: 1}}, 1))
	require.NoError(t, h.SaveReadingGoals(ctx, []entities.ReadingGoal{{GoalStartDate: "2024-02-01", GoalValue: 20, LastGoalModified: 2}}, 2))

	goals, lastModified, err := h.GetReadingGoals(ctx)
	require.NoError(t, err)
	assert.Len(t, goals, 2)
	assert.Equal(t, int64(2), lastModified)
}

func TestDeleteBookData_PartialFailure(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	writeFile(t, connector.fs, "/library/A/bookdata_1.json", `{}`)
	writeFile(t, connector.fs, "/library/B/bookdata_1.json", `{}`)
	writeFile(t, connector.fs, "/library/C.epub", `x`)
	ctx := context.Background()

	_, err := h.GetBookList(ctx)
	require.NoError(t, err)
	connector.clients[0].failDelete["/library/B"] = errors.New("server error")

	result, err := h.DeleteBookData(ctx, []string{"A", "B", "C", "D"}, false)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 4)
	assert.Equal(t, replication.DeleteDeleted, result.Outcomes[0].Status)
	assert.Equal(t, replication.DeleteFailed, result.Outcomes[1].Status)
	assert.Contains(t, result.Outcomes[1].Error, "server error")
	assert.Equal(t, replication.DeleteDeleted, result.Outcomes[2].Status)
	assert.Equal(t, replication.DeleteSkipped, result.Outcomes[3].Status)
	assert.False(t, result.Cancelled)

	exists, _ := afero.Exists(connector.fs, "/library/A")
	assert.False(t, exists)
	exists, _ = afero.Exists(connector.fs, "/library/B/bookdata_1.json")
	assert.True(t, exists)
}

func TestDeleteBookData_AlreadyCancelled(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	writeFile(t, connector.fs, "/library/A/bookdata_1.json", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.DeleteBookData(ctx, []string{"A"}, false)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Empty(t, result.Outcomes)
	assert.Zero(t, connector.calls)

	exists, _ := afero.Exists(connector.fs, "/library/A/bookdata_1.json")
	assert.True(t, exists)
}

func TestDeleteBookData_CancelledBetweenItems(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	writeFile(t, connector.fs, "/library/A/bookdata_1.json", `{}`)
	writeFile(t, connector.fs, "/library/B/bookdata_1.json", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := h.GetBookList(ctx)
	require.NoError(t, err)
	connector.clients[0].onDelete = func(string) { cancel() }

	result, err := h.DeleteBookData(ctx, []string{"A", "B"}, false)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "A", result.Outcomes[0].Title)
	assert.Equal(t, replication.DeleteDeleted, result.Outcomes[0].Status)

	exists, _ := afero.Exists(connector.fs, "/library/B/bookdata_1.json")
	assert.True(t, exists)
}

func TestUpdateSettings_InvalidatesConnection(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	_, err := h.GetBookList(ctx)
	require.NoError(t, err)
	_, err = h.GetBookList(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, connector.calls, "connection is cached")

	h.UpdateSettings(h.Settings())
	_, err = h.GetBookList(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, connector.calls, "same source keeps the connection")

	settings := h.Settings()
	settings.SourceName = "cloud"
	h.UpdateSettings(settings)
	assert.True(t, connector.clients[0].closed)

	_, err = h.GetBookList(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, connector.calls)
	assert.Equal(t, []string{"nas", "cloud"}, connector.sources)
}

func TestConnection_SettingsChangedWhileConnecting(t *testing.T) {
	h, connector := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	connector.during = func() {
		connector.during = nil
		settings := h.Settings()
		settings.SourceName = "other"
		h.UpdateSettings(settings)
	}

	_, err := h.GetBookList(ctx)
	require.NoError(t, err)
	_, err = h.GetBookList(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, connector.calls, "stale client was not cached")
	assert.Equal(t, []string{"nas", "other"}, connector.sources)
}

func TestErrors(t *testing.T) {
	t.Run("storage failure is backend unavailable", func(t *testing.T) {
		h, connector := setupHandler(t, replication.DefaultSettings())
		_, err := h.GetBookList(context.Background())
		require.NoError(t, err)

		connector.clients[0].failList = errors.New("503 service unavailable")
		_, err = h.GetBook(context.Background(), "Dune")
		assert.True(t, replication.IsBackendUnavailable(err))
	})

	t.Run("connector error is returned unchanged", func(t *testing.T) {
		h, connector := setupHandler(t, replication.DefaultSettings())
		connector.err = errors.New("unlock failed")

		_, err := h.GetBookList(context.Background())
		assert.EqualError(t, err, "unlock failed")
		assert.False(t, replication.IsBackendUnavailable(err))
	})
}

func TestListingCache(t *testing.T) {
	settings := replication.DefaultSettings()
	settings.CacheStorageData = true
	h, connector := setupHandler(t, settings)
	ctx := context.Background()

	books, err := h.GetBookList(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	writeFile(t, connector.fs, "/library/book.epub", "x")
	books, err = h.GetBookList(ctx)
	require.NoError(t, err)
	assert.Empty(t, books, "listing served from cache")

	require.NoError(t, h.ClearData(ctx, false))
	books, err = h.GetBookList(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, 1, connector.calls)

	require.NoError(t, h.ClearData(ctx, true))
	_, err = h.GetBookList(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, connector.calls)
}

type memoryCache struct {
	books     []entities.BookData
	bookmarks []entities.Bookmark
}

func (c *memoryCache) SaveBook(_ context.Context, book *entities.BookData) (uint, error) {
	c.books = append(c.books, *book)
	return uint(len(c.books)), nil
}

func (c *memoryCache) SaveBookmark(_ context.Context, bookmark *entities.Bookmark) error {
	c.bookmarks = append(c.bookmarks, *bookmark)
	return nil
}

func TestPrepareBookForReading(t *testing.T) {
	cache := &memoryCache{}
	h, connector := setupHandler(t, replication.DefaultSettings(), WithCache(cache))
	writeFile(t, connector.fs, "/library/Dune/bookdata_1.json", `{"id":99,"title":"Dune"}`)
	writeFile(t, connector.fs, "/library/Dune/progress_2.json", `{"dataId":99,"progress":0.4}`)
	writeFile(t, connector.fs, "/library/Dune/lastread_5.json", `{"lastBookOpen":5}`)
	ctx := context.Background()

	id, err := h.PrepareBookForReading(ctx, "Dune")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	require.Len(t, cache.books, 1)
	assert.Equal(t, "nas", cache.books[0].StorageSource)
	assert.Equal(t, int64(5), cache.books[0].LastBookOpen)
	require.Len(t, cache.bookmarks, 1)
	assert.Equal(t, uint(1), cache.bookmarks[0].BookID)

	id, err = h.PrepareBookForReading(ctx, "Missing")
	require.NoError(t, err)
	assert.Equal(t, replication.NotReady, id)
}

func TestUpdateLastRead(t *testing.T) {
	h, _ := setupHandler(t, replication.DefaultSettings())
	ctx := context.Background()

	require.NoError(t, h.UpdateLastRead(ctx, &entities.BookData{Title: "Dune", LastBookOpen: 77}))
	ref, err := h.GetFilenameForRecentCheck(ctx, "Dune", replication.DataLastRead)
	require.NoError(t, err)
	assert.Equal(t, "Dune/lastread_77.json", ref)

	_, err = h.GetFilenameForRecentCheck(ctx, "Dune", replication.DataKind("bogus"))
	assert.Error(t, err)
}
