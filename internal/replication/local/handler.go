// Package local implements replication.Handler on the embedded database. It
// backs the in-browser default storage kind.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
	"github.com/mrlokans/librarysync/internal/replication"
)

// Handler stores library data in the local database.
type Handler struct {
	repo *library.Repository
	now  func() time.Time

	mu       sync.RWMutex
	settings replication.Settings
}

// New creates a local handler.
func New(repo *library.Repository, settings replication.Settings) *Handler {
	return &Handler{repo: repo, now: time.Now, settings: settings}
}

func (h *Handler) Kind() entities.StorageKind {
	return entities.StorageKindBrowser
}

func (h *Handler) Settings() replication.Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// UpdateSettings only stores the settings; the database connection is shared.
func (h *Handler) UpdateSettings(settings replication.Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = settings
}

func (h *Handler) fail(op string, err error) error {
	return replication.Unavailable(entities.StorageKindBrowser, op, err)
}

// Reference identifiers of local data are "<title>/<kind>_<millis>", the same
// shape file stores use without the extension.
func reference(title string, kind replication.DataKind, modified int64) string {
	if title == "" {
		return fmt.Sprintf("%s_%d", kind, modified)
	}
	return fmt.Sprintf("%s/%s_%d", title, kind, modified)
}

func parseReference(ref string, kind replication.DataKind) (title string, modified int64, ok bool) {
	i := strings.LastIndex(ref, "/")
	if i >= 0 {
		title = ref[:i]
	}
	rest, found := strings.CutPrefix(ref[i+1:], string(kind)+"_")
	if !found {
		return "", 0, false
	}
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	modified, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return title, modified, true
}

// isUpToDate checks that the stored timestamp of kind for the referenced title is
// exactly the referenced one.
func (h *Handler) isUpToDate(ctx context.Context, ref string, kind replication.DataKind) (bool, error) {
	title, modified, ok := parseReference(ref, kind)
	if !ok {
		return false, nil
	}
	stored, found, err := h.modifiedOf(ctx, title, kind)
	if err != nil || !found {
		return false, err
	}
	return stored == modified, nil
}

func (h *Handler) modifiedOf(ctx context.Context, title string, kind replication.DataKind) (int64, bool, error) {
	switch kind {
	case replication.DataBook, replication.DataLastRead:
		book, err := h.repo.GetBook(ctx, title)
		if err != nil || book == nil {
			return 0, false, h.fail("get book", err)
		}
		if kind == replication.DataLastRead {
			return book.LastBookOpen, book.LastBookOpen > 0, nil
		}
		return book.LastBookModified, true, nil
	case replication.DataProgress:
		book, err := h.repo.GetBook(ctx, title)
		if err != nil || book == nil {
			return 0, false, h.fail("get book", err)
		}
		bookmark, err := h.repo.GetBookmark(ctx, book.ID)
		if err != nil || bookmark == nil {
			return 0, false, h.fail("get progress", err)
		}
		return bookmark.LastBookmarkModified, true, nil
	case replication.DataAudioBook:
		audioBook, err := h.repo.GetAudioBook(ctx, title)
		if err != nil || audioBook == nil {
			return 0, false, h.fail("get audiobook", err)
		}
		return audioBook.LastAudioBookModified, true, nil
	case replication.DataSubtitle:
		subtitles, err := h.repo.GetSubtitleData(ctx, title)
		if err != nil || subtitles == nil {
			return 0, false, h.fail("get subtitles", err)
		}
		return subtitles.LastSubtitleDataModified, true, nil
	case replication.DataCover:
		cover, err := h.repo.GetCover(ctx, title)
		if err != nil || cover == nil {
			return 0, false, h.fail("get cover", err)
		}
		return cover.UpdatedAt.UnixMilli(), true, nil
	case replication.DataStatistics:
		rows, modified, err := h.repo.GetStatistics(ctx)
		if err != nil {
			return 0, false, h.fail("get statistics", err)
		}
		return modified, len(rows) > 0 || modified > 0, nil
	case replication.DataGoals:
		rows, modified, err := h.repo.GetReadingGoals(ctx)
		if err != nil {
			return 0, false, h.fail("get reading goals", err)
		}
		return modified, len(rows) > 0 || modified > 0, nil
	}
	return 0, false, fmt.Errorf("unknown data kind %q", kind)
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
	modified, found, err := h.modifiedOf(ctx, title, kind)
	if err != nil || !found {
		return "", err
	}
	if kind == replication.DataStatistics || kind == replication.DataGoals {
		title = ""
	}
	return reference(title, kind, modified), nil
}

func (h *Handler) GetBookList(ctx context.Context) ([]replication.BookSummary, error) {
	books, err := h.repo.ListBooks(ctx)
	if err != nil {
		return nil, h.fail("list books", err)
	}
	summaries := make([]replication.BookSummary, 0, len(books))
	for _, b := range books {
		summaries = append(summaries, replication.BookSummary{
			ID:           strconv.FormatUint(uint64(b.ID), 10),
			Title:        b.Title,
			Size:         int64(b.Characters),
			LastModified: b.LastBookModified,
		})
	}
	return summaries, nil
}

func (h *Handler) GetBook(ctx context.Context, title string) (replication.Item[entities.BookData], error) {
	book, err := h.repo.GetBook(ctx, title)
	if err != nil {
		return replication.Item[entities.BookData]{}, h.fail("get book", err)
	}
	return replication.Item[entities.BookData]{Record: book}, nil
}

func (h *Handler) GetProgress(ctx context.Context, title string) (replication.Item[entities.Bookmark], error) {
	var none replication.Item[entities.Bookmark]
	book, err := h.repo.GetBook(ctx, title)
	if err != nil || book == nil {
		return none, h.fail("get book", err)
	}
	bookmark, err := h.repo.GetBookmark(ctx, book.ID)
	if err != nil {
		return none, h.fail("get progress", err)
	}
	return replication.Item[entities.Bookmark]{Record: bookmark}, nil
}

func (h *Handler) GetAudioBook(ctx context.Context, title string) (replication.Item[entities.AudioBook], error) {
	audioBook, err := h.repo.GetAudioBook(ctx, title)
	if err != nil {
		return replication.Item[entities.AudioBook]{}, h.fail("get audiobook", err)
	}
	return replication.Item[entities.AudioBook]{Record: audioBook}, nil
}

func (h *Handler) GetSubtitleData(ctx context.Context, title string) (replication.Item[entities.SubtitleData], error) {
	subtitles, err := h.repo.GetSubtitleData(ctx, title)
	if err != nil {
		return replication.Item[entities.SubtitleData]{}, h.fail("get subtitles", err)
	}
	return replication.Item[entities.SubtitleData]{Record: subtitles}, nil
}

func (h *Handler) GetCover(ctx context.Context, title string) (*replication.Resource, error) {
	cover, err := h.repo.GetCover(ctx, title)
	if err != nil || cover == nil {
		return nil, h.fail("get cover", err)
	}
	return &replication.Resource{
		Name:         cover.Title,
		ContentType:  cover.ContentType,
		Data:         cover.Data,
		LastModified: cover.UpdatedAt.UnixMilli(),
	}, nil
}

func (h *Handler) GetStatistics(ctx context.Context) ([]entities.Statistic, int64, error) {
	rows, modified, err := h.repo.GetStatistics(ctx)
	if err != nil {
		return nil, 0, h.fail("get statistics", err)
	}
	return rows, modified, nil
}

func (h *Handler) GetReadingGoals(ctx context.Context) ([]entities.ReadingGoal, int64, error) {
	rows, modified, err := h.repo.GetReadingGoals(ctx)
	if err != nil {
		return nil, 0, h.fail("get reading goals", err)
	}
	return rows, modified, nil
}

func (h *Handler) stamp(modified *int64, opts replication.SaveOptions) {
	if *modified == 0 && !opts.SkipTimestampFallback {
		*modified = h.now().UnixMilli()
	}
}

// decodeRaw reads a raw JSON file produced by a file store.
func decodeRaw[T any](raw *replication.Resource) (*T, error) {
	var record T
	if err := json.Unmarshal(raw.Data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", raw.Name, err)
	}
	return &record, nil
}

func recordOf[T any](item replication.Item[T]) (*T, error) {
	if item.Record != nil {
		record := *item.Record
		return &record, nil
	}
	if item.Raw != nil {
		return decodeRaw[T](item.Raw)
	}
	return nil, nil
}

// SaveBook stores a book record and returns its id. Raw ebook files cannot be
// stored locally without parsing them and are rejected.
func (h *Handler) SaveBook(ctx context.Context, data replication.Item[entities.BookData], opts replication.SaveOptions) (uint, error) {
	if data.Raw != nil && !strings.HasSuffix(data.Raw.Name, ".json") {
		return 0, fmt.Errorf("cannot store unprocessed book file %q locally", data.Raw.Name)
	}
	book, err := recordOf(data)
	if err != nil || book == nil {
		return 0, err
	}
	if opts.RemoveStorageContext {
		book.StorageSource = ""
	}
	h.stamp(&book.LastBookModified, opts)

	id, err := h.repo.SaveBook(ctx, book)
	if err != nil {
		return 0, h.fail("save book", err)
	}
	return id, nil
}

func (h *Handler) SaveProgress(ctx context.Context, title string, data replication.Item[entities.Bookmark], opts replication.SaveOptions) error {
	bookmark, err := recordOf(data)
	if err != nil || bookmark == nil {
		return err
	}
	book, err := h.repo.GetBook(ctx, title)
	if err != nil {
		return h.fail("get book", err)
	}
	if book == nil {
		return fmt.Errorf("cannot save progress of unknown book %q", title)
	}
	bookmark.BookID = book.ID
	h.stamp(&bookmark.LastBookmarkModified, opts)
	return h.fail("save progress", h.repo.SaveBookmark(ctx, bookmark))
}

func (h *Handler) SaveAudioBook(ctx context.Context, title string, data replication.Item[entities.AudioBook], opts replication.SaveOptions) error {
	audioBook, err := recordOf(data)
	if err != nil || audioBook == nil {
		return err
	}
	audioBook.Title = title
	h.stamp(&audioBook.LastAudioBookModified, opts)
	return h.fail("save audiobook", h.repo.SaveAudioBook(ctx, audioBook))
}

func (h *Handler) SaveSubtitleData(ctx context.Context, title string, data replication.Item[entities.SubtitleData], opts replication.SaveOptions) error {
	subtitles, err := recordOf(data)
	if err != nil || subtitles == nil {
		return err
	}
	subtitles.Title = title
	h.stamp(&subtitles.LastSubtitleDataModified, opts)
	return h.fail("save subtitles", h.repo.SaveSubtitleData(ctx, subtitles))
}

func (h *Handler) SaveCover(ctx context.Context, title string, cover *replication.Resource) error {
	if cover == nil {
		return h.fail("delete cover", h.repo.DeleteCover(ctx, title))
	}
	updatedAt := h.now()
	if cover.LastModified > 0 {
		updatedAt = time.UnixMilli(cover.LastModified)
	}
	return h.fail("save cover", h.repo.SaveCover(ctx, &entities.Cover{
		Title:       title,
		Data:        cover.Data,
		ContentType: cover.ContentType,
		UpdatedAt:   updatedAt,
	}))
}

func (h *Handler) SaveStatistics(ctx context.Context, rows []entities.Statistic, lastModified int64) error {
	mode := h.Settings().StatisticsMergeMode
	if mode == replication.MergeMerge {
		stored, storedModified, err := h.repo.GetStatistics(ctx)
		if err != nil {
			return h.fail("get statistics", err)
		}
		rows = replication.MergeStatistics(stored, rows, mode)
		lastModified = replication.LatestModified(lastModified, storedModified)
	}
	return h.fail("save statistics", h.repo.ReplaceStatistics(ctx, rows, lastModified))
}

func (h *Handler) SaveReadingGoals(ctx context.Context, rows []entities.ReadingGoal, lastModified int64) error {
	mode := h.Settings().ReadingGoalsMergeMode
	if mode == replication.MergeMerge {
		stored, storedModified, err := h.repo.GetReadingGoals(ctx)
		if err != nil {
			return h.fail("get reading goals", err)
		}
		rows = replication.MergeReadingGoals(stored, rows, mode)
		lastModified = replication.LatestModified(lastModified, storedModified)
	}
	return h.fail("save reading goals", h.repo.ReplaceReadingGoals(ctx, rows, lastModified))
}

func (h *Handler) DeleteBookData(ctx context.Context, titles []string, keepLocalStatistics bool) (replication.DeleteResult, error) {
	var result replication.DeleteResult
	for _, title := range titles {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		deleted, err := h.repo.DeleteBook(ctx, title, keepLocalStatistics)
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

func (h *Handler) ClearData(ctx context.Context, clearAll bool) error {
	return h.fail("clear", h.repo.Clear(ctx, clearAll))
}

func (h *Handler) UpdateLastRead(ctx context.Context, book *entities.BookData) error {
	if book == nil {
		return nil
	}
	at := book.LastBookOpen
	if at == 0 {
		at = h.now().UnixMilli()
	}
	return h.fail("update last read", h.repo.UpdateLastRead(ctx, book.Title, at))
}

// PrepareBookForReading returns the id of a stored book.
func (h *Handler) PrepareBookForReading(ctx context.Context, title string) (int, error) {
	book, err := h.repo.GetBook(ctx, title)
	if err != nil {
		return replication.NotReady, h.fail("get book", err)
	}
	if book == nil {
		return replication.NotReady, nil
	}
	return int(book.ID), nil
}

var _ replication.Handler = (*Handler)(nil)
