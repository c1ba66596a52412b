// Package library stores library data in the embedded database: books and
// their per-book records, reading statistics and goals, and the cached book
// lists of remote backends.
package library

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarysync/internal/entities"
)

// Repository handles library database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new library repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func first[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetBook returns the book with the given title, or nil.
func (r *Repository) GetBook(ctx context.Context, title string) (*entities.BookData, error) {
	return first[entities.BookData](ctx, r.db, "title = ?", title)
}

// ListBooks returns all books ordered by title.
func (r *Repository) ListBooks(ctx context.Context) ([]entities.BookData, error) {
	var books []entities.BookData
	err := r.db.WithContext(ctx).Omit("content", "style_sheet").Order("title ASC").Find(&books).Error
	return books, err
}

// SaveBook inserts or updates a book by title and returns its id.
func (r *Repository) SaveBook(ctx context.Context, book *entities.BookData) (uint, error) {
	existing, err := r.GetBook(ctx, book.Title)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		book.ID = existing.ID
	}
	if err := r.db.WithContext(ctx).Save(book).Error; err != nil {
		return 0, fmt.Errorf("failed to save book %q: %w", book.Title, err)
	}
	return book.ID, nil
}

// UpdateLastRead sets the last open timestamp of a book.
func (r *Repository) UpdateLastRead(ctx context.Context, title string, at int64) error {
	return r.db.WithContext(ctx).Model(&entities.BookData{}).
		Where("title = ?", title).
		Update("last_book_open", at).Error
}

type scopedDelete struct {
	model any
	query string
	arg   any
}

// DeleteBook removes a book and every record that belongs to it. It reports
// false when no book with that title exists.
func (r *Repository) DeleteBook(ctx context.Context, title string, keepStatistics bool) (bool, error) {
	book, err := r.GetBook(ctx, title)
	if err != nil {
		return false, err
	}
	if book == nil {
		return false, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deletes := []scopedDelete{
			{&entities.Bookmark{}, "book_id = ?", book.ID},
			{&entities.AudioBook{}, "title = ?", title},
			{&entities.SubtitleData{}, "title = ?", title},
			{&entities.Cover{}, "title = ?", title},
			{&entities.BookData{}, "id = ?", book.ID},
		}
		if !keepStatistics {
			deletes = append(deletes, scopedDelete{&entities.Statistic{}, "title = ?", title})
		}
		for _, d := range deletes {
			if err := tx.Where(d.query, d.arg).Delete(d.model).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete book %q: %w", title, err)
	}
	return true, nil
}

// GetBookmark returns the progress of a book, or nil.
func (r *Repository) GetBookmark(ctx context.Context, bookID uint) (*entities.Bookmark, error) {
	return first[entities.Bookmark](ctx, r.db, "book_id = ?", bookID)
}

func (r *Repository) SaveBookmark(ctx context.Context, bookmark *entities.Bookmark) error {
	return r.db.WithContext(ctx).Save(bookmark).Error
}

func (r *Repository) GetAudioBook(ctx context.Context, title string) (*entities.AudioBook, error) {
	return first[entities.AudioBook](ctx, r.db, "title = ?", title)
}

func (r *Repository) SaveAudioBook(ctx context.Context, audioBook *entities.AudioBook) error {
	return r.db.WithContext(ctx).Save(audioBook).Error
}

func (r *Repository) GetSubtitleData(ctx context.Context, title string) (*entities.SubtitleData, error) {
	return first[entities.SubtitleData](ctx, r.db, "title = ?", title)
}

func (r *Repository) SaveSubtitleData(ctx context.Context, subtitles *entities.SubtitleData) error {
	return r.db.WithContext(ctx).Save(subtitles).Error
}

func (r *Repository) GetCover(ctx context.Context, title string) (*entities.Cover, error) {
	return first[entities.Cover](ctx, r.db, "title = ?", title)
}

func (r *Repository) SaveCover(ctx context.Context, cover *entities.Cover) error {
	return r.db.WithContext(ctx).Save(cover).Error
}

func (r *Repository) DeleteCover(ctx context.Context, title string) error {
	return r.db.WithContext(ctx).Where("title = ?", title).Delete(&entities.Cover{}).Error
}

// GetStatistics returns all statistics and their modification time: the one
// saved with them, or the newest row timestamp when none was saved.
func (r *Repository) GetStatistics(ctx context.Context) ([]entities.Statistic, int64, error) {
	var rows []entities.Statistic
	if err := r.db.WithContext(ctx).Order("title ASC, date_key ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	lastModified, ok, err := r.modifiedAt(ctx, entities.SettingKeyStatisticsModified)
	if err != nil || ok {
		return rows, lastModified, err
	}
	for _, row := range rows {
		lastModified = max(lastModified, row.LastStatisticModified)
	}
	return rows, lastModified, nil
}

// ReplaceStatistics swaps the stored statistics for rows and records
// lastModified as their modification time.
func (r *Repository) ReplaceStatistics(ctx context.Context, rows []entities.Statistic, lastModified int64) error {
	return replaceAll(ctx, r.db, &entities.Statistic{}, rows, entities.SettingKeyStatisticsModified, lastModified)
}

// GetReadingGoals returns all goals and their modification time, like
// GetStatistics.
func (r *Repository) GetReadingGoals(ctx context.Context) ([]entities.ReadingGoal, int64, error) {
	var rows []entities.ReadingGoal
	if err := r.db.WithContext(ctx).Order("goal_start_date ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	lastModified, ok, err := r.modifiedAt(ctx, entities.SettingKeyReadingGoalsModified)
	if err != nil || ok {
		return rows, lastModified, err
	}
	for _, row := range rows {
		lastModified = max(lastModified, row.LastGoalModified)
	}
	return rows, lastModified, nil
}

// ReplaceReadingGoals swaps the stored reading goals for rows and records
// lastModified as their modification time.
func (r *Repository) ReplaceReadingGoals(ctx context.Context, rows []entities.ReadingGoal, lastModified int64) error {
	return replaceAll(ctx, r.db, &entities.ReadingGoal{}, rows, entities.SettingKeyReadingGoalsModified, lastModified)
}

func (r *Repository) modifiedAt(ctx context.Context, key string) (int64, bool, error) {
	setting, err := first[entities.Setting](ctx, r.db, "key = ?", key)
	if err != nil || setting == nil {
		return 0, false, err
	}
	value, err := strconv.ParseInt(setting.Value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s setting %q: %w", key, setting.Value, err)
	}
	return value, true, nil
}

func replaceAll[T any](ctx context.Context, db *gorm.DB, model *T, rows []T, modifiedKey string, lastModified int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		setting := entities.Setting{Key: modifiedKey, Value: strconv.FormatInt(lastModified, 10)}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&setting).Error
	})
}

// Clear removes book data. With all set, statistics and reading goals are
// removed as well.
func (r *Repository) Clear(ctx context.Context, all bool) error {
	models := []any{&entities.Bookmark{}, &entities.AudioBook{}, &entities.SubtitleData{}, &entities.Cover{}, &entities.BookData{}}
	if all {
		models = append(models, &entities.Statistic{}, &entities.ReadingGoal{}, &entities.LibraryEntry{})
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range models {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		if !all {
			return nil
		}
		return tx.Where("key IN ?", []string{entities.SettingKeyStatisticsModified, entities.SettingKeyReadingGoalsModified}).
			Delete(&entities.Setting{}).Error
	})
}

// ReplaceEntries swaps the cached book list of a backend source.
func (r *Repository) ReplaceEntries(ctx context.Context, kind entities.StorageKind, sourceName string, entries []entities.LibraryEntry) error {
	now := time.Now()
	for i := range entries {
		entries[i].ID = 0
		entries[i].Kind = kind
		entries[i].SourceName = sourceName
		entries[i].SnapshotAt = now
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ? AND source_name = ?", kind, sourceName).Delete(&entities.LibraryEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(entries, 100).Error
	})
}

// ListEntries returns the cached book list of a backend source.
func (r *Repository) ListEntries(ctx context.Context, kind entities.StorageKind, sourceName string) ([]entities.LibraryEntry, error) {
	var entries []entities.LibraryEntry
	err := r.db.WithContext(ctx).
		Where("kind = ? AND source_name = ?", kind, sourceName).
		Order("title ASC").
		Find(&entries).Error
	return entries, err
}
