package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/storage"
	"github.com/mrlokans/librarysync/internal/utils"
)

var coverExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

func (h *Handler) filePath(folder, name string) string {
	return storage.Join(h.root, folder, name)
}

// download reads a file. A file that vanished since it was listed is reported
// as not found.
func (h *Handler) download(ctx context.Context, client storage.Client, folder, name string) ([]byte, bool, error) {
	data, err := storage.ReadFile(ctx, client, h.filePath(folder, name))
	if storage.IsNotFound(err) {
		h.forget(folder)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, h.unavailable("download", err)
	}
	return data, true, nil
}

func (h *Handler) readJSON(ctx context.Context, client storage.Client, folder, name string, v any) (bool, error) {
	data, found, err := h.download(ctx, client, folder, name)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", reference(folder, name), err)
	}
	return true, nil
}

// write stores a data file and removes older files of the same kind. Unless
// force is set, SaveNewOnly skips the write when a file at least as recent
// exists.
func (h *Handler) write(ctx context.Context, folder string, kind replication.DataKind, modified int64, ext string, data []byte, force bool) error {
	client, err := h.connection(ctx)
	if err != nil {
		return err
	}
	entries, err := h.list(ctx, client, folder)
	if err != nil {
		return err
	}

	if latest, ok := latestOf(entries, kind); ok && !force &&
		h.Settings().SaveBehavior == replication.SaveNewOnly && latest.Modified >= modified {
		logging.Debug("Skipping save, stored copy is up to date",
			logging.String("ref", reference(folder, latest.Name)))
		return nil
	}

	name := fileName(kind, modified, ext)
	if err := storage.WriteFile(ctx, client, h.filePath(folder, name), data); err != nil {
		return h.unavailable("upload", err)
	}
	h.forget(folder)

	for _, e := range entries {
		f, ok := parseFileName(e.Name)
		if e.IsDir || !ok || f.Kind != kind || f.Name == name {
			continue
		}
		if err := client.Delete(ctx, h.filePath(folder, e.Name)); err != nil {
			logging.Warn("Failed to remove outdated file",
				logging.String("ref", reference(folder, e.Name)), logging.Err(err))
		}
	}
	return nil
}

func (h *Handler) writeRaw(ctx context.Context, folder string, kind replication.DataKind, raw *replication.Resource) error {
	if f, ok := parseFileName(raw.Name); ok && f.Kind == kind {
		return h.write(ctx, folder, kind, f.Modified, f.Ext, raw.Data, false)
	}
	modified := raw.LastModified
	if modified == 0 {
		modified = h.nowMillis()
	}
	ext := strings.TrimPrefix(path.Ext(raw.Name), ".")
	if ext == "" {
		ext = "json"
	}
	return h.write(ctx, folder, kind, modified, ext, raw.Data, false)
}

func (h *Handler) isUpToDate(ctx context.Context, ref string, kind replication.DataKind) (bool, error) {
	folder, file, ok := parseReference(ref, kind)
	if !ok {
		return false, nil
	}
	client, err := h.connection(ctx)
	if err != nil {
		return false, err
	}
	entries, err := h.list(ctx, client, folder)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir && e.Name == file.Name {
			return true, nil
		}
	}
	return false, nil
}

func (h *Handler) IsBookPresentAndUpToDate(ctx context.Context, ref string) (bool, error) {
	return h.isUpToDate(ctx, ref, replication.DataBook)
}

func (h *Handler) IsProgressPresentAndUpToDate(ctx context.Context, ref string) (bool, error) {
	return h.isUpToDate(ctx, ref, replication.DataProgress)
}

func (h *Handler) IsAudioBookPresentAndUpToDate(ctx context.Context, ref string) (bool, error) {
	return h.isUpToDate(ctx, ref, replication.DataAudioBook)
}

func (h *Handler) IsSubtitleDataPresentAndUpToDate(ctx context.Context, ref string) (bool, error) {
	return h.isUpToDate(ctx, ref, replication.DataSubtitle)
}

func (h *Handler) AreStatisticsPresentAndUpToDate(ctx context.Context, ref string) (bool, error) {
	return h.isUpToDate(ctx, ref, replication.DataStatistics)
}

func (h *Handler) AreReadingGoalsPresentAndUpToDate(ctx context.Context, ref string) (bool, error) {
	return h.isUpToDate(ctx, ref, replication.DataGoals)
}

func (h *Handler) GetFilenameForRecentCheck(ctx context.Context, title string, kind replication.DataKind) (string, error) {
	var folder string
	switch {
	case rootKinds[kind]:
	case perBookKinds[kind]:
		folder = folderName(title)
	default:
		return "", fmt.Errorf("unknown data kind %q", kind)
	}

	client, err := h.connection(ctx)
	if err != nil {
		return "", err
	}
	entries, err := h.list(ctx, client, folder)
	if err != nil {
		return "", err
	}
	if latest, ok := latestOf(entries, kind); ok {
		return reference(folder, latest.Name), nil
	}
	return "", nil
}

func (h *Handler) GetBookList(ctx context.Context) ([]replication.BookSummary, error) {
	client, err := h.connection(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := h.list(ctx, client, "")
	if err != nil {
		return nil, err
	}

	visible := storage.FilterFiles(entries, func(e storage.FileInfo) bool {
		return !utils.IsHidden(e.Name)
	})

	var books []replication.BookSummary
	for _, e := range visible {
		if !e.IsDir {
			if utils.IsBookFile(e.Name) {
				books = append(books, replication.BookSummary{
					ID:           e.Name,
					Title:        utils.TrimBookExtension(e.Name),
					Size:         e.Size,
					LastModified: e.ModifiedAt.UnixMilli(),
					PlainFile:    true,
				})
			}
			continue
		}

		files, err := h.list(ctx, client, e.Name)
		if err != nil {
			return nil, err
		}
		latest, ok := latestOf(files, replication.DataBook)
		if !ok {
			continue
		}
		var size int64
		for _, f := range files {
			if f.Name == latest.Name {
				size = f.Size
			}
		}
		books = append(books, replication.BookSummary{
			ID:           reference(e.Name, latest.Name),
			Title:        e.Name,
			Size:         size,
			LastModified: latest.Modified,
		})
	}

	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	return books, nil
}

func (h *Handler) GetBook(ctx context.Context, title string) (replication.Item[entities.BookData], error) {
	var none replication.Item[entities.BookData]
	client, err := h.connection(ctx)
	if err != nil {
		return none, err
	}

	folder := folderName(title)
	entries, err := h.list(ctx, client, folder)
	if err != nil {
		return none, err
	}
	if latest, ok := latestOf(entries, replication.DataBook); ok {
		var book entities.BookData
		found, err := h.readJSON(ctx, client, folder, latest.Name, &book)
		if err != nil {
			return none, err
		}
		if found {
			if lastRead, ok := latestOf(entries, replication.DataLastRead); ok {
				book.LastBookOpen = max(book.LastBookOpen, lastRead.Modified)
			}
			return replication.RecordItem(&book), nil
		}
	}

	rootEntries, err := h.list(ctx, client, "")
	if err != nil {
		return none, err
	}
	for _, e := range rootEntries {
		if e.IsDir || !matchesPlainFile(e.Name, title) {
			continue
		}
		data, found, err := h.download(ctx, client, "", e.Name)
		if err != nil || !found {
			return none, err
		}
		return replication.RawItem[entities.BookData](&replication.Resource{
			Name:         e.Name,
			ContentType:  mime.TypeByExtension(path.Ext(e.Name)),
			Data:         data,
			LastModified: e.ModifiedAt.UnixMilli(),
		}), nil
	}
	return none, nil
}

func matchesPlainFile(name, title string) bool {
	return utils.IsBookFile(name) && (name == title || utils.TrimBookExtension(name) == title)
}

func fetchRecord[T any](ctx context.Context, h *Handler, title string, kind replication.DataKind) (replication.Item[T], error) {
	var none replication.Item[T]
	client, err := h.connection(ctx)
	if err != nil {
		return none, err
	}

	folder := folderName(title)
	entries, err := h.list(ctx, client, folder)
	if err != nil {
		return none, err
	}
	latest, ok := latestOf(entries, kind)
	if !ok {
		return none, nil
	}

	var record T
	found, err := h.readJSON(ctx, client, folder, latest.Name, &record)
	if err != nil || !found {
		return none, err
	}
	return replication.RecordItem(&record), nil
}

func (h *Handler) GetProgress(ctx context.Context, title string) (replication.Item[entities.Bookmark], error) {
	return fetchRecord[entities.Bookmark](ctx, h, title, replication.DataProgress)
}

func (h *Handler) GetAudioBook(ctx context.Context, title string) (replication.Item[entities.AudioBook], error) {
	return fetchRecord[entities.AudioBook](ctx, h, title, replication.DataAudioBook)
}

func (h *Handler) GetSubtitleData(ctx context.Context, title string) (replication.Item[entities.SubtitleData], error) {
	return fetchRecord[entities.SubtitleData](ctx, h, title, replication.DataSubtitle)
}

func (h *Handler) GetCover(ctx context.Context, title string) (*replication.Resource, error) {
	client, err := h.connection(ctx)
	if err != nil {
		return nil, err
	}

	folder := folderName(title)
	entries, err := h.list(ctx, client, folder)
	if err != nil {
		return nil, err
	}
	latest, ok := latestOf(entries, replication.DataCover)
	if !ok {
		return nil, nil
	}

	data, found, err := h.download(ctx, client, folder, latest.Name)
	if err != nil || !found {
		return nil, err
	}
	return &replication.Resource{
		Name:         latest.Name,
		ContentType:  mime.TypeByExtension("." + latest.Ext),
		Data:         data,
		LastModified: latest.Modified,
	}, nil
}

func getRootRecords[T any](ctx context.Context, h *Handler, kind replication.DataKind) ([]T, int64, error) {
	client, err := h.connection(ctx)
	if err != nil {
		return nil, 0, err
	}
	entries, err := h.list(ctx, client, "")
	if err != nil {
		return nil, 0, err
	}
	latest, ok := latestOf(entries, kind)
	if !ok {
		return nil, 0, nil
	}

	var rows []T
	found, err := h.readJSON(ctx, client, "", latest.Name, &rows)
	if err != nil || !found {
		return nil, 0, err
	}
	return rows, latest.Modified, nil
}

func (h *Handler) GetStatistics(ctx context.Context) ([]entities.Statistic, int64, error) {
	return getRootRecords[entities.Statistic](ctx, h, replication.DataStatistics)
}

func (h *Handler) GetReadingGoals(ctx context.Context) ([]entities.ReadingGoal, int64, error) {
	return getRootRecords[entities.ReadingGoal](ctx, h, replication.DataGoals)
}

// saveItem stores a record or raw file of kind for a book. stamp returns the
// record's modification timestamp field.
func saveItem[T any](ctx context.Context, h *Handler, folder string, kind replication.DataKind, item replication.Item[T], opts replication.SaveOptions, stamp func(*T) *int64) error {
	if item.Raw != nil {
		return h.writeRaw(ctx, folder, kind, item.Raw)
	}
	if item.Record == nil {
		return nil
	}

	record := *item.Record
	modified := stamp(&record)
	if *modified == 0 && !opts.SkipTimestampFallback {
		*modified = h.nowMillis()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return h.write(ctx, folder, kind, *modified, "json", data, false)
}

// SaveBook stores a book record in its folder or a plain ebook file at the
// root. File stores do not assign ids, so the returned id is always zero.
func (h *Handler) SaveBook(ctx context.Context, data replication.Item[entities.BookData], opts replication.SaveOptions) (uint, error) {
	if data.Raw != nil {
		name := utils.SanitizeFilename(data.Raw.Name)
		if !utils.IsBookFile(name) {
			return 0, fmt.Errorf("unsupported book file %q", data.Raw.Name)
		}
		client, err := h.connection(ctx)
		if err != nil {
			return 0, err
		}
		if err := storage.WriteFile(ctx, client, h.filePath("", name), data.Raw.Data); err != nil {
			return 0, h.unavailable("upload", err)
		}
		h.forget("")
		return 0, nil
	}
	if data.Record == nil {
		return 0, nil
	}
	if strings.TrimSpace(data.Record.Title) == "" {
		return 0, fmt.Errorf("book has no title")
	}

	folder := folderName(data.Record.Title)
	err := saveItem(ctx, h, folder, replication.DataBook, data, opts, func(b *entities.BookData) *int64 {
		if opts.RemoveStorageContext {
			b.StorageSource = ""
		}
		b.ID = 0
		return &b.LastBookModified
	})
	if err != nil {
		return 0, err
	}
	h.forget("")
	return 0, nil
}

func (h *Handler) SaveProgress(ctx context.Context, title string, data replication.Item[entities.Bookmark], opts replication.SaveOptions) error {
	return saveItem(ctx, h, folderName(title), replication.DataProgress, data, opts, func(b *entities.Bookmark) *int64 {
		return &b.LastBookmarkModified
	})
}

func (h *Handler) SaveAudioBook(ctx context.Context, title string, data replication.Item[entities.AudioBook], opts replication.SaveOptions) error {
	return saveItem(ctx, h, folderName(title), replication.DataAudioBook, data, opts, func(a *entities.AudioBook) *int64 {
		return &a.LastAudioBookModified
	})
}

func (h *Handler) SaveSubtitleData(ctx context.Context, title string, data replication.Item[entities.SubtitleData], opts replication.SaveOptions) error {
	return saveItem(ctx, h, folderName(title), replication.DataSubtitle, data, opts, func(s *entities.SubtitleData) *int64 {
		return &s.LastSubtitleDataModified
	})
}

func (h *Handler) SaveCover(ctx context.Context, title string, cover *replication.Resource) error {
	folder := folderName(title)
	if cover != nil {
		modified := cover.LastModified
		if modified == 0 {
			modified = h.nowMillis()
		}
		ext := strings.TrimPrefix(path.Ext(cover.Name), ".")
		if ext == "" {
			ext = coverExtensions[cover.ContentType]
		}
		if ext == "" {
			ext = "jpg"
		}
		return h.write(ctx, folder, replication.DataCover, modified, ext, cover.Data, true)
	}

	client, err := h.connection(ctx)
	if err != nil {
		return err
	}
	entries, err := h.list(ctx, client, folder)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if f, ok := parseFileName(e.Name); ok && f.Kind == replication.DataCover {
			if err := client.Delete(ctx, h.filePath(folder, e.Name)); err != nil {
				return h.unavailable("delete", err)
			}
		}
	}
	h.forget(folder)
	return nil
}

func (h *Handler) saveRootRecords(ctx context.Context, kind replication.DataKind, rows any, lastModified int64, force bool) error {
	if lastModified == 0 {
		lastModified = h.nowMillis()
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return h.write(ctx, "", kind, lastModified, "json", data, force)
}

// SaveStatistics stores statistics, merging with the stored ones when the
// statistics merge mode is merge.
func (h *Handler) SaveStatistics(ctx context.Context, rows []entities.Statistic, lastModified int64) error {
	mode := h.Settings().StatisticsMergeMode
	if mode == replication.MergeMerge {
		stored, storedModified, err := h.GetStatistics(ctx)
		if err != nil {
			return err
		}
		rows = replication.MergeStatistics(stored, rows, mode)
		lastModified = replication.LatestModified(lastModified, storedModified)
	}
	return h.saveRootRecords(ctx, replication.DataStatistics, rows, lastModified, mode == replication.MergeMerge)
}

// SaveReadingGoals stores goals, merging with the stored ones when the
// reading goals merge mode is merge.
func (h *Handler) SaveReadingGoals(ctx context.Context, rows []entities.ReadingGoal, lastModified int64) error {
	mode := h.Settings().ReadingGoalsMergeMode
	if mode == replication.MergeMerge {
		stored, storedModified, err := h.GetReadingGoals(ctx)
		if err != nil {
			return err
		}
		rows = replication.MergeReadingGoals(stored, rows, mode)
		lastModified = replication.LatestModified(lastModified, storedModified)
	}
	return h.saveRootRecords(ctx, replication.DataGoals, rows, lastModified, mode == replication.MergeMerge)
}

// DeleteBookData removes the folders and plain files of the given titles.
// Statistics live in a shared file and are kept, so keepLocalStatistics has
// no effect on file stores.
func (h *Handler) DeleteBookData(ctx context.Context, titles []string, _ bool) (replication.DeleteResult, error) {
	var result replication.DeleteResult
	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	client, err := h.connection(ctx)
	if err != nil {
		return result, err
	}
	rootEntries, err := h.list(ctx, client, "")
	if err != nil {
		return result, err
	}
	defer h.forget("")

	for _, title := range titles {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		deleted, err := h.deleteBook(ctx, client, rootEntries, title)
		switch {
		case err != nil:
			logging.Warn("Failed to delete book", logging.String("title", title), logging.Err(err))
			result.Failed(title, err)
		case deleted:
			result.Deleted(title)
		default:
			result.Skipped(title)
		}
	}
	return result, nil
}

func (h *Handler) deleteBook(ctx context.Context, client storage.Client, rootEntries []storage.FileInfo, title string) (bool, error) {
	folder := folderName(title)
	deleted := false
	for _, e := range rootEntries {
		if (e.IsDir && e.Name == folder) || (!e.IsDir && matchesPlainFile(e.Name, title)) {
			if err := client.Delete(ctx, h.filePath("", e.Name)); err != nil {
				return deleted, h.unavailable("delete", err)
			}
			deleted = true
		}
	}
	h.forget(folder)
	return deleted, nil
}

func (h *Handler) UpdateLastRead(ctx context.Context, book *entities.BookData) error {
	if book == nil {
		return nil
	}
	lastOpen := book.LastBookOpen
	if lastOpen == 0 {
		lastOpen = h.nowMillis()
	}
	data, err := json.Marshal(map[string]int64{"lastBookOpen": lastOpen})
	if err != nil {
		return err
	}
	return h.write(ctx, folderName(book.Title), replication.DataLastRead, lastOpen, "json", data, false)
}

// PrepareBookForReading copies a book and its progress into the local cache
// and returns the local id, or replication.NotReady when the book is absent,
// is a plain file, or no cache is configured.
func (h *Handler) PrepareBookForReading(ctx context.Context, title string) (int, error) {
	if h.cache == nil {
		return replication.NotReady, nil
	}

	book, err := h.GetBook(ctx, title)
	if err != nil {
		return replication.NotReady, err
	}
	if book.Record == nil {
		return replication.NotReady, nil
	}

	book.Record.ID = 0
	book.Record.StorageSource = h.Settings().SourceName
	id, err := h.cache.SaveBook(ctx, book.Record)
	if err != nil {
		return replication.NotReady, fmt.Errorf("failed to cache book %q: %w", title, err)
	}

	progress, err := h.GetProgress(ctx, title)
	if err != nil {
		return replication.NotReady, err
	}
	if progress.Record != nil {
		progress.Record.BookID = id
		if err := h.cache.SaveBookmark(ctx, progress.Record); err != nil {
			return replication.NotReady, fmt.Errorf("failed to cache progress of %q: %w", title, err)
		}
	}
	return int(id), nil
}
