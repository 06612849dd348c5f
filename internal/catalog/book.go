package catalog

import (
	"time"
)

// Book is one catalogued file.
type Book struct {
	ID       string
	Title    string
	Author   string
	Category string

	// FileRef is the opaque transport handle of the document; unique across
	// the catalog.
	FileRef  string
	FileName string
	FileSize int64 // bytes

	// CoverRef is empty when the record has no cover image.
	CoverRef string

	Downloads int64
	CreatedAt time.Time

	// SourceMessageID is set only for records rebuilt from channel history.
	SourceMessageID int
	AddedBy         int64
}

// HasCover reports whether a cover image is attached.
func (b Book) HasCover() bool {
	return b.CoverRef != ""
}

// FromHistory reports whether the record was created by a history scan.
func (b Book) FromHistory() bool {
	return b.SourceMessageID != 0
}

// BookmarkResult distinguishes a fresh bookmark from a repeated one. Both are
// successful outcomes.
type BookmarkResult int

const (
	BookmarkCreated BookmarkResult = iota + 1
	BookmarkAlreadyExists
)

// UserStats aggregates a user's counters.
type UserStats struct {
	Downloads int64
	Bookmarks []string
}
