package services

import (
	"context"
	"strings"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/errcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const MaxTop = 50

// Page is one screen of the catalog listing. Number starts at 1.
type Page struct {
	Books  []catalog.Book
	Number int
	Pages  int
	Total  int
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.Pages }

// BookService holds the catalog operations ordinary users reach through
// commands and buttons.
type BookService struct {
	store    catalog.Store
	sender   chat.Sender
	pageSize int
	topN     int
	log      logger.Logger
}

func NewBookService(store catalog.Store, sender chat.Sender, pageSize, topN int, log logger.Logger) *BookService {
	if pageSize <= 0 {
		pageSize = 10
	}
	if topN <= 0 {
		topN = 5
	}
	return &BookService{store: store, sender: sender, pageSize: pageSize, topN: topN, log: log}
}

// ListPage returns page n of all books in insertion order. Out-of-range
// pages are clamped.
func (s *BookService) ListPage(ctx context.Context, n int) (Page, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return Page{}, err
	}

	p := Page{Total: len(all), Pages: (len(all) + s.pageSize - 1) / s.pageSize}
	if p.Pages == 0 {
		return p, nil
	}
	p.Number = min(max(n, 1), p.Pages)

	start := (p.Number - 1) * s.pageSize
	end := min(start+s.pageSize, len(all))
	p.Books = all[start:end]
	return p, nil
}

func (s *BookService) Search(ctx context.Context, keyword string) ([]catalog.Book, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.WithStack(errcodes.Usage("Usage: /search <keyword>"))
	}
	return s.store.Search(ctx, keyword)
}

// Top returns the n most downloaded books; n <= 0 uses the configured
// default.
func (s *BookService) Top(ctx context.Context, n int) ([]catalog.Book, error) {
	if n <= 0 {
		n = s.topN
	}
	return s.store.TopByDownloads(ctx, min(n, MaxTop))
}

func (s *BookService) BookWithID(ctx context.Context, id string) (catalog.Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return catalog.Book{}, errors.WithStack(errcodes.Usage("Usage: /book <book_id>"))
	}
	return s.store.FindByID(ctx, id)
}

// Deliver sends the book's file to chat on behalf of userID. Counters move
// only after the transport accepted the document.
func (s *BookService) Deliver(ctx context.Context, userID int64, to chat.Peer, bookID string) (catalog.Book, error) {
	book, err := s.BookWithID(ctx, bookID)
	if err != nil {
		return catalog.Book{}, err
	}

	if err := s.sender.SendDocument(ctx, to, book.FileRef, "📘 "+chat.EscapeMarkup(book.Title)); err != nil {
		return catalog.Book{}, errors.WithStack(errcodes.Transport("send document", err))
	}

	if err := s.store.IncrementDownloads(ctx, book.ID); err != nil {
		return book, err
	}
	if err := s.store.RecordDownload(ctx, userID); err != nil {
		return book, err
	}
	book.Downloads++

	s.log.Info("book delivered", logger.Data{"book_id": book.ID, "user_id": userID})
	return book, nil
}

func (s *BookService) Bookmark(ctx context.Context, userID int64, bookID string) (catalog.BookmarkResult, error) {
	book, err := s.BookWithID(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return s.store.AddBookmark(ctx, userID, book.ID)
}

func (s *BookService) Stats(ctx context.Context, userID int64) (catalog.UserStats, error) {
	return s.store.UserStats(ctx, userID)
}

func (s *BookService) Subscribe(ctx context.Context, userID int64) error {
	return s.store.Subscribe(ctx, userID)
}

func (s *BookService) Unsubscribe(ctx context.Context, userID int64) error {
	return s.store.Unsubscribe(ctx, userID)
}
