// Package catalogtest holds the behavioural checks every catalog.Store
// implementation must pass.
package catalogtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Book builds a record with a fresh id from s.
func Book(t *testing.T, s catalog.Store, title, author, fileRef string) catalog.Book {
	t.Helper()
	id, err := s.NextID(context.Background())
	require.NoError(t, err)
	return catalog.Book{
		ID:        id,
		Title:     title,
		Author:    author,
		Category:  "Tamil Novel",
		FileRef:   fileRef,
		FileName:  title + ".pdf",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// Run executes the store contract against stores built by newStore. Each
// subtest gets its own empty store.
func Run(t *testing.T, newStore func(t *testing.T) catalog.Store) {
	t.Run("insert and find", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		b := Book(t, s, "Ponniyin Selvan", "Kalki", "doc:1")
		b.CoverRef = "photo:9"
		b.SourceMessageID = 77
		require.NoError(t, s.Insert(ctx, b))

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.Title, got.Title)
		assert.Equal(t, "photo:9", got.CoverRef)
		assert.Equal(t, 77, got.SourceMessageID)
		assert.EqualValues(t, 0, got.Downloads)

		got, err = s.FindByFile(ctx, "doc:1")
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)

		_, err = s.FindByID(ctx, "404")
		assert.True(t, errors.Is(err, catalog.ErrNotFound))
		_, err = s.FindByFile(ctx, "doc:404")
		assert.True(t, errors.Is(err, catalog.ErrNotFound))
	})

	t.Run("duplicate file is rejected without change", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Insert(ctx, Book(t, s, "A", "X", "doc:same")))
		err := s.Insert(ctx, Book(t, s, "B", "Y", "doc:same"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, catalog.ErrDuplicateFile))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ids are unique under concurrency", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		const workers = 20
		ids := make(chan string, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := s.NextID(ctx)
				assert.NoError(t, err)
				ids <- id
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[string]bool{}
		for id := range ids {
			assert.False(t, seen[id], "id %s issued twice", id)
			seen[id] = true
		}
		assert.Len(t, seen, workers)
	})

	t.Run("concurrent download increments", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		b := Book(t, s, "A", "X", "doc:inc")
		require.NoError(t, s.Insert(ctx, b))

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.IncrementDownloads(ctx, b.ID))
				assert.NoError(t, s.RecordDownload(ctx, 7))
			}()
		}
		wg.Wait()

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.EqualValues(t, n, got.Downloads)

		stats, err := s.UserStats(ctx, 7)
		require.NoError(t, err)
		assert.EqualValues(t, n, stats.Downloads)

		err = s.IncrementDownloads(ctx, "404")
		assert.True(t, errors.Is(err, catalog.ErrNotFound))
	})

	t.Run("list search and top", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var books []catalog.Book
		for i, title := range []string{"Kadal Pura", "Udaiyar", "Kadalora Kavithaigal", "Sivagamiyin Sabatham"} {
			b := Book(t, s, title, fmt.Sprintf("Author %d", i), fmt.Sprintf("doc:%d", i))
			require.NoError(t, s.Insert(ctx, b))
			books = append(books, b)
		}
		require.NoError(t, s.IncrementDownloads(ctx, books[2].ID))
		require.NoError(t, s.IncrementDownloads(ctx, books[2].ID))
		require.NoError(t, s.IncrementDownloads(ctx, books[1].ID))
		require.NoError(t, s.IncrementDownloads(ctx, books[3].ID))

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := range books {
			assert.Equal(t, books[i].ID, all[i].ID)
		}

		found, err := s.Search(ctx, "KADAL")
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, books[0].ID, found[0].ID)
		assert.Equal(t, books[2].ID, found[1].ID)

		found, err = s.Search(ctx, "author 3")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, books[3].ID, found[0].ID)

		found, err = s.Search(ctx, "100%")
		require.NoError(t, err)
		assert.Empty(t, found)

		top, err := s.TopByDownloads(ctx, 3)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, books[2].ID, top[0].ID)
		// books[1] and books[3] tie; insertion order breaks the tie.
		assert.Equal(t, books[1].ID, top[1].ID)
		assert.Equal(t, books[3].ID, top[2].ID)
	})

	t.Run("bookmarks", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		res, err := s.AddBookmark(ctx, 1, "10")
		require.NoError(t, err)
		assert.Equal(t, catalog.BookmarkCreated, res)

		res, err = s.AddBookmark(ctx, 1, "10")
		require.NoError(t, err)
		assert.Equal(t, catalog.BookmarkAlreadyExists, res)

		res, err = s.AddBookmark(ctx, 1, "2")
		require.NoError(t, err)
		assert.Equal(t, catalog.BookmarkCreated, res)

		stats, err := s.UserStats(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "10"}, stats.Bookmarks)

		stats, err = s.UserStats(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, stats.Bookmarks)
		assert.EqualValues(t, 0, stats.Downloads)
	})

	t.Run("subscribers", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Subscribe(ctx, 5))
		require.NoError(t, s.Subscribe(ctx, 5))
		require.NoError(t, s.Subscribe(ctx, 3))
		require.NoError(t, s.Unsubscribe(ctx, 9))

		subs, err := s.Subscribers(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{3, 5}, subs)

		require.NoError(t, s.Unsubscribe(ctx, 5))
		require.NoError(t, s.Unsubscribe(ctx, 5))
		subs, err = s.Subscribers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, subs)
	})
}
