// Package replication defines the contract every storage backend implements
// so that library data can be synchronized without knowing which backend is
// active.
package replication

import (
	"context"

	"github.com/mrlokans/librarysync/internal/entities"
)

// DataKind names one kind of per-book data a handler replicates.
type DataKind string

const (
	DataBook       DataKind = "bookdata"
	DataProgress   DataKind = "progress"
	DataAudioBook  DataKind = "audiobook"
	DataSubtitle   DataKind = "subtitle"
	DataCover      DataKind = "cover"
	DataLastRead   DataKind = "lastread"
	DataStatistics DataKind = "statistics"
	DataGoals      DataKind = "readinggoals"
)

// Resource is raw file content, e.g. a plain ebook file or a cover image.
type Resource struct {
	Name         string
	ContentType  string
	Data         []byte
	LastModified int64
}

// Item is the result of a fetch: a structured record, a raw resource, or
// neither when the data is absent.
type Item[T any] struct {
	Record *T
	Raw    *Resource
}

// RecordItem wraps a record.
func RecordItem[T any](record *T) Item[T] {
	return Item[T]{Record: record}
}

// RawItem wraps a raw resource.
func RawItem[T any](raw *Resource) Item[T] {
	return Item[T]{Raw: raw}
}

// Absent reports whether the item carries no data.
func (i Item[T]) Absent() bool {
	return i.Record == nil && i.Raw == nil
}

// BookSummary is one entry of a backend's book list.
type BookSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
	// PlainFile marks an ebook file that has not been imported yet.
	PlainFile bool `json:"plainFile"`
}

// SaveOptions are the flags accepted by per-book save operations.
type SaveOptions struct {
	// SkipTimestampFallback keeps a zero modification timestamp instead of
	// replacing it with the current time.
	SkipTimestampFallback bool
	// RemoveStorageContext drops the storage source a record was replicated from.
	RemoveStorageContext bool
}

// Readiness codes returned by PrepareBookForReading.
const (
	NotReady = 0
)

// Handler is the capability set of a storage backend. Absent data is never an
// error; transport and authorization failures are BackendUnavailableError.
type Handler interface {
	Kind() entities.StorageKind

	IsBookPresentAndUpToDate(ctx context.Context, ref string) (bool, error)
	IsProgressPresentAndUpToDate(ctx context.Context, ref string) (bool, error)
	IsAudioBookPresentAndUpToDate(ctx context.Context, ref string) (bool, error)
	IsSubtitleDataPresentAndUpToDate(ctx context.Context, ref string) (bool, error)
	AreStatisticsPresentAndUpToDate(ctx context.Context, ref string) (bool, error)
	AreReadingGoalsPresentAndUpToDate(ctx context.Context, ref string) (bool, error)
	// GetFilenameForRecentCheck returns the reference identifier of the newest
	// stored data of kind for a book, or "" when there is none.
	GetFilenameForRecentCheck(ctx context.Context, title string, kind DataKind) (string, error)

	GetBookList(ctx context.Context) ([]BookSummary, error)
	GetBook(ctx context.Context, title string) (Item[entities.BookData], error)
	GetProgress(ctx context.Context, title string) (Item[entities.Bookmark], error)
	GetAudioBook(ctx context.Context, title string) (Item[entities.AudioBook], error)
	GetSubtitleData(ctx context.Context, title string) (Item[entities.SubtitleData], error)
	GetCover(ctx context.Context, title string) (*Resource, error)
	GetStatistics(ctx context.Context) ([]entities.Statistic, int64, error)
	GetReadingGoals(ctx context.Context) ([]entities.ReadingGoal, int64, error)

	SaveBook(ctx context.Context, data Item[entities.BookData], opts SaveOptions) (uint, error)
	SaveProgress(ctx context.Context, title string, data Item[entities.Bookmark], opts SaveOptions) error
	SaveAudioBook(ctx context.Context, title string, data Item[entities.AudioBook], opts SaveOptions) error
	SaveSubtitleData(ctx context.Context, title string, data Item[entities.SubtitleData], opts SaveOptions) error
	// SaveCover stores a cover; a nil resource removes it.
	SaveCover(ctx context.Context, title string, cover *Resource) error
	SaveStatistics(ctx context.Context, rows []entities.Statistic, lastModified int64) error
	SaveReadingGoals(ctx context.Context, rows []entities.ReadingGoal, lastModified int64) error

	// DeleteBookData deletes each book, checking ctx between items. Per-book
	// failures are reported in the result rather than returned.
	DeleteBookData(ctx context.Context, titles []string, keepLocalStatistics bool) (DeleteResult, error)

	ClearData(ctx context.Context, clearAll bool) error
	UpdateLastRead(ctx context.Context, book *entities.BookData) error
	PrepareBookForReading(ctx context.Context, title string) (int, error)
	// UpdateSettings may be called at any time; a changed source name
	// releases the current connection.
	UpdateSettings(settings Settings)
}
