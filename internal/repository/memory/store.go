package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/pkg/errors"
)

// Store keeps the catalog in-process. It backs development runs and tests.
type Store struct {
	mu     sync.RWMutex
	seq    int64
	books  map[string]catalog.Book
	byFile map[string]string // file ref -> book id
	order  []string

	downloads   map[int64]int64
	bookmarks   map[int64]map[string]struct{}
	subscribers map[int64]struct{}
}

// NewStore initializes an empty store.
func NewStore() *Store {
	return &Store{
		books:       make(map[string]catalog.Book),
		byFile:      make(map[string]string),
		downloads:   make(map[int64]int64),
		bookmarks:   make(map[int64]map[string]struct{}),
		subscribers: make(map[int64]struct{}),
	}
}

var _ catalog.Store = (*Store)(nil)

func (s *Store) NextID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return strconv.FormatInt(s.seq, 10), nil
}

func (s *Store) Insert(_ context.Context, b catalog.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byFile[b.FileRef]; ok {
		return errors.WithStack(catalog.ErrDuplicateFile)
	}
	if _, ok := s.books[b.ID]; ok {
		return errors.Errorf("book id %s already in use", b.ID)
	}
	s.books[b.ID] = b
	s.byFile[b.FileRef] = b.ID
	s.order = append(s.order, b.ID)

	// Keep the sequence ahead of ids inserted from outside NextID.
	if n, err := strconv.ParseInt(b.ID, 10, 64); err == nil && n > s.seq {
		s.seq = n
	}
	return nil
}

func (s *Store) IncrementDownloads(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return errors.WithStack(catalog.ErrNotFound)
	}
	b.Downloads++
	s.books[id] = b
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return catalog.Book{}, errors.WithStack(catalog.ErrNotFound)
	}
	return b, nil
}

func (s *Store) FindByFile(_ context.Context, fileRef string) (catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFile[fileRef]
	if !ok {
		return catalog.Book{}, errors.WithStack(catalog.ErrNotFound)
	}
	return s.books[id], nil
}

// ListAll returns books in insertion order.
func (s *Store) ListAll(_ context.Context) ([]catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]catalog.Book, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.books[id])
	}
	return res, nil
}

func (s *Store) Search(ctx context.Context, keyword string) ([]catalog.Book, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	all, _ := s.ListAll(ctx)
	if keyword == "" {
		return nil, nil
	}
	var res []catalog.Book
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Title), keyword) || strings.Contains(strings.ToLower(b.Author), keyword) {
			res = append(res, b)
		}
	}
	return res, nil
}

func (s *Store) TopByDownloads(ctx context.Context, n int) ([]catalog.Book, error) {
	all, _ := s.ListAll(ctx)
	// Stable sort keeps insertion order among equal counters.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Downloads > all[j].Downloads
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books), nil
}

func (s *Store) RecordDownload(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads[userID]++
	return nil
}

func (s *Store) AddBookmark(_ context.Context, userID int64, bookID string) (catalog.BookmarkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.bookmarks[userID]
	if !ok {
		set = make(map[string]struct{})
		s.bookmarks[userID] = set
	}
	if _, ok := set[bookID]; ok {
		return catalog.BookmarkAlreadyExists, nil
	}
	set[bookID] = struct{}{}
	return catalog.BookmarkCreated, nil
}

func (s *Store) UserStats(_ context.Context, userID int64) (catalog.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := catalog.UserStats{Downloads: s.downloads[userID]}
	for id := range s.bookmarks[userID] {
		stats.Bookmarks = append(stats.Bookmarks, id)
	}
	sortIDs(stats.Bookmarks)
	return stats, nil
}

func (s *Store) Subscribe(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[userID] = struct{}{}
	return nil
}

func (s *Store) Unsubscribe(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, userID)
	return nil
}

func (s *Store) Subscribers(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]int64, 0, len(s.subscribers))
	for id := range s.subscribers {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res, nil
}

// sortIDs orders numeric ids numerically and anything else lexically after them.
func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return ids[i] < ids[j]
	})
}
