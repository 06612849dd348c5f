package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/catalog/catalogtest"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/chat/chattest"
	"github.com/ecaka12/telegram-book-bot/internal/errcodes"
	"github.com/ecaka12/telegram-book-bot/internal/repository/memory"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T, n int) (*BookService, *memory.Store, *chattest.Transport) {
	t.Helper()
	store := memory.NewStore()
	for i := 0; i < n; i++ {
		b := catalogtest.Book(t, store, fmt.Sprintf("Book %d", i+1), "Kalki", fmt.Sprintf("doc:%d", i+1))
		require.NoError(t, store.Insert(context.Background(), b))
	}
	tr := chattest.New()
	return NewBookService(store, tr, 10, 5, logger.New()), store, tr
}

func TestListPage(t *testing.T) {
	ctx := context.Background()
	s, _, _ := seeded(t, 23)

	p, err := s.ListPage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 23, p.Total)
	assert.Len(t, p.Books, 10)
	assert.False(t, p.HasPrev())
	assert.True(t, p.HasNext())

	p, err = s.ListPage(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Number)
	assert.Len(t, p.Books, 3)
	assert.Equal(t, "Book 21", p.Books[0].Title)
	assert.False(t, p.HasNext())

	empty, _, _ := seeded(t, 0)
	p, err = empty.ListPage(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, p.Pages)
	assert.Empty(t, p.Books)
}

func TestDeliverCountsOnlySuccessfulSends(t *testing.T) {
	ctx := context.Background()
	s, store, tr := seeded(t, 1)

	book, err := s.Deliver(ctx, 7, chat.User(7), "1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, book.Downloads)

	sent := tr.SentTo(7)
	require.Len(t, sent, 1)
	assert.Equal(t, "document", sent[0].Kind)
	assert.Equal(t, "doc:1", sent[0].Ref)
	assert.Equal(t, "📘 Book 1", sent[0].Text)

	tr.FailFor[8] = true
	_, err = s.Deliver(ctx, 8, chat.User(8), "1")
	assert.True(t, errcodes.Has(err, errcodes.CodeTransport))

	stored, _ := store.FindByID(ctx, "1")
	assert.EqualValues(t, 1, stored.Downloads)
	stats, _ := s.Stats(ctx, 8)
	assert.Zero(t, stats.Downloads)

	_, err = s.Deliver(ctx, 7, chat.User(7), "99")
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestBookmark(t *testing.T) {
	ctx := context.Background()
	s, _, _ := seeded(t, 2)

	res, err := s.Bookmark(ctx, 1, "2")
	require.NoError(t, err)
	assert.Equal(t, catalog.BookmarkCreated, res)

	res, err = s.Bookmark(ctx, 1, "2")
	require.NoError(t, err)
	assert.Equal(t, catalog.BookmarkAlreadyExists, res)

	_, err = s.Bookmark(ctx, 1, "404")
	assert.True(t, errors.Is(err, catalog.ErrNotFound))

	stats, err := s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, stats.Bookmarks)
}

func TestTopAndSearch(t *testing.T) {
	ctx := context.Background()
	s, store, _ := seeded(t, 8)
	require.NoError(t, store.IncrementDownloads(ctx, "8"))

	top, err := s.Top(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 5)
	assert.Equal(t, "8", top[0].ID)

	top, err = s.Top(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	_, err = s.Search(ctx, "  ")
	assert.True(t, errcodes.Has(err, errcodes.CodeUsage))

	found, err := s.Search(ctx, "book 1")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestSubscription(t *testing.T) {
	ctx := context.Background()
	s, store, _ := seeded(t, 0)

	require.NoError(t, s.Subscribe(ctx, 3))
	subs, _ := store.Subscribers(ctx)
	assert.Equal(t, []int64{3}, subs)

	require.NoError(t, s.Unsubscribe(ctx, 3))
	subs, _ = store.Subscribers(ctx)
	assert.Empty(t, subs)
}
