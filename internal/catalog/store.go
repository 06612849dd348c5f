package catalog

import (
	"context"

	"github.com/ecaka12/telegram-book-bot/internal/errcodes"
)

var (
	ErrNotFound      = errcodes.NotFound("book")
	ErrDuplicateFile = errcodes.DuplicateFile("")
)

// Store is the persistent catalog: records, per-user download counters,
// per-user bookmark sets and the subscriber set. There is no referential
// integrity between the collections.
type Store interface {
	// NextID issues a fresh decimal record id from an atomic sequence.
	NextID(ctx context.Context) (string, error)
	// Insert fails with ErrDuplicateFile when FileRef is already catalogued
	// and leaves the store unchanged.
	Insert(ctx context.Context, b Book) error
	IncrementDownloads(ctx context.Context, id string) error

	FindByID(ctx context.Context, id string) (Book, error)
	FindByFile(ctx context.Context, fileRef string) (Book, error)
	// ListAll returns records in insertion order.
	ListAll(ctx context.Context) ([]Book, error)
	// Search matches keyword case-insensitively against title or author.
	Search(ctx context.Context, keyword string) ([]Book, error)
	// TopByDownloads orders by downloads descending, then insertion order.
	TopByDownloads(ctx context.Context, n int) ([]Book, error)
	Count(ctx context.Context) (int, error)

	RecordDownload(ctx context.Context, userID int64) error
	AddBookmark(ctx context.Context, userID int64, bookID string) (BookmarkResult, error)
	UserStats(ctx context.Context, userID int64) (UserStats, error)

	Subscribe(ctx context.Context, userID int64) error
	Unsubscribe(ctx context.Context, userID int64) error
	Subscribers(ctx context.Context) ([]int64, error)
}
