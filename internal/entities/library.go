package entities

import (
	"time"
)

// BookData is the stored form of a book.
type BookData struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	Title            string `gorm:"uniqueIndex;size:512" json:"title"`
	StyleSheet       string `gorm:"type:text" json:"styleSheet,omitempty"`
	Content          string `gorm:"type:text" json:"content,omitempty"`
	CoverImage       string `gorm:"size:512" json:"coverImage,omitempty"`
	HasThumb         bool   `json:"hasThumb"`
	Characters       int    `json:"characters"`
	LastBookModified int64  `json:"lastBookModified"`
	LastBookOpen     int64  `json:"lastBookOpen"`

	// StorageSource names the source the book was last replicated from.
	StorageSource string `gorm:"size:255" json:"storageSource,omitempty"`
}

func (BookData) TableName() string {
	return "books"
}

// Bookmark is the reading progress of a book.
type Bookmark struct {
	BookID               uint    `gorm:"primaryKey" json:"dataId"`
	ExploredCharCount    int     `json:"exploredCharCount"`
	Progress             float64 `json:"progress"`
	ChapterReference     string  `gorm:"size:512" json:"chapterReference,omitempty"`
	ScrollY              float64 `json:"scrollY,omitempty"`
	LastBookmarkModified int64   `json:"lastBookmarkModified"`
}

func (Bookmark) TableName() string {
	return "bookmarks"
}

type AudioBook struct {
	Title                 string  `gorm:"primaryKey;size:512" json:"title"`
	PlaybackPosition      float64 `json:"playbackPosition"`
	LastAudioBookModified int64   `json:"lastAudioBookModified"`
}

func (AudioBook) TableName() string {
	return "audio_books"
}

type SubtitleData struct {
	Title                    string `gorm:"primaryKey;size:512" json:"title"`
	Subtitles                string `gorm:"type:text" json:"subtitles"`
	LastSubtitleDataModified int64  `json:"lastSubtitleDataModified"`
}

func (SubtitleData) TableName() string {
	return "subtitle_data"
}

type Cover struct {
	Title       string    `gorm:"primaryKey;size:512"`
	Data        []byte    `gorm:"type:blob"`
	ContentType string    `gorm:"size:100"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (Cover) TableName() string {
	return "covers"
}

// Statistic is one day of reading activity for a book.
type Statistic struct {
	Title                 string  `gorm:"primaryKey;size:512" json:"title"`
	DateKey               string  `gorm:"primaryKey;size:10" json:"dateKey"`
	CharactersRead        int     `json:"charactersRead"`
	ReadingTime           float64 `json:"readingTime"`
	MinReadingSpeed       float64 `json:"minReadingSpeed"`
	AltMinReadingSpeed    float64 `json:"altMinReadingSpeed"`
	MaxReadingSpeed       float64 `json:"maxReadingSpeed"`
	LastStatisticModified int64   `json:"lastStatisticModified"`
}

func (Statistic) TableName() string {
	return "statistics"
}

type ReadingGoal struct {
	GoalStartDate    string `gorm:"primaryKey;size:10" json:"goalStartDate"`
	GoalEndDate      string `gorm:"size:10" json:"goalEndDate"`
	GoalType         string `gorm:"size:20" json:"goalType"`
	GoalValue        int    `json:"goalValue"`
	GoalFrequency    string `gorm:"size:20" json:"goalFrequency"`
	LastGoalModified int64  `json:"lastGoalModified"`
}

func (ReadingGoal) TableName() string {
	return "reading_goals"
}

// LibraryEntry is a cached row of a backend's book list.
type LibraryEntry struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Kind         StorageKind `gorm:"size:20;uniqueIndex:idx_library_entry" json:"kind"`
	SourceName   string      `gorm:"size:255;uniqueIndex:idx_library_entry" json:"source_name"`
	BookID       string      `gorm:"size:512;uniqueIndex:idx_library_entry" json:"book_id"`
	Title        string      `gorm:"size:512" json:"title"`
	Size         int64       `json:"size"`
	LastModified int64       `json:"last_modified"`
	SnapshotAt   time.Time   `json:"snapshot_at"`
}

func (LibraryEntry) TableName() string {
	return "library_entries"
}
