// Package upload runs the two-step administrator submission: a captioned
// cover photo, then the PDF it describes.
package upload

import (
	"context"
	"strings"
	"sync"
	"time"

	bookinfo "github.com/ecaka12/telegram-book-bot/bookInfo"
	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/errcodes"
	"github.com/ecaka12/telegram-book-bot/internal/session"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const (
	Command = "/upload"
	Usage   = "📝 Usage: send a cover photo captioned\n/upload <title> | <author> | <category>\nthen send the PDF."
)

type State int

const (
	Idle State = iota
	AwaitingDocument
)

func (s State) String() string {
	if s == AwaitingDocument {
		return "awaiting_document"
	}
	return "idle"
}

// Authorizer decides whether a user may submit records.
type Authorizer interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// Flow drives one session per administrator. Different administrators
// proceed independently; steps from the same administrator are serialized.
type Flow struct {
	store    catalog.Store
	sessions session.Table
	admins   Authorizer
	parser   bookinfo.Parser
	log      logger.Logger

	// OnCommit runs after a record is stored, typically to start the fanout.
	OnCommit func(book catalog.Book)

	now   func() time.Time
	locks sync.Map // admin id -> *sync.Mutex
}

func NewFlow(store catalog.Store, sessions session.Table, admins Authorizer, parser bookinfo.Parser, log logger.Logger) *Flow {
	return &Flow{
		store:    store,
		sessions: sessions,
		admins:   admins,
		parser:   parser,
		log:      log,
		now:      time.Now,
	}
}

// CaptionArgs returns what follows the /upload command in a caption, and
// whether the caption is an upload command at all. "/upload@SomeBot" is
// accepted.
func CaptionArgs(caption string) (string, bool) {
	caption = strings.TrimSpace(caption)
	if !strings.HasPrefix(caption, Command) {
		return "", false
	}
	rest := caption[len(Command):]
	if strings.HasPrefix(rest, "@") {
		i := strings.IndexAny(rest, " \t\n")
		if i < 0 {
			return "", true
		}
		rest = rest[i:]
	} else if rest != "" && !strings.ContainsAny(rest[:1], " \t\n") {
		// "/uploader" and the like.
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func (f *Flow) lock(adminID int64) func() {
	m, _ := f.locks.LoadOrStore(adminID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (f *Flow) authorize(ctx context.Context, userID int64) error {
	ok, err := f.admins.IsAdmin(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "check admin")
	}
	if !ok {
		return errors.WithStack(errcodes.Forbidden("Uploading books"))
	}
	return nil
}

// State reports where adminID's session stands.
func (f *Flow) State(ctx context.Context, adminID int64) (State, error) {
	_, ok, err := f.sessions.Get(ctx, adminID)
	if err != nil {
		return Idle, errors.Wrap(err, "load session")
	}
	if ok {
		return AwaitingDocument, nil
	}
	return Idle, nil
}

// Cover handles step one. args is the caption text after the command. A
// cover arriving while a document is awaited replaces the pending one.
func (f *Flow) Cover(ctx context.Context, adminID int64, photoRef, args string) error {
	if err := f.authorize(ctx, adminID); err != nil {
		return err
	}
	if strings.TrimSpace(args) == "" {
		return errors.WithStack(errcodes.Usage(Usage))
	}

	unlock := f.lock(adminID)
	defer unlock()

	err := f.sessions.Put(ctx, session.Session{
		AdminID:  adminID,
		CoverRef: photoRef,
		Caption:  strings.TrimSpace(args),
		Started:  f.now(),
	})
	if err != nil {
		return errors.Wrap(err, "store session")
	}
	f.log.Info("upload session started", logger.Data{"admin_id": adminID})
	return nil
}

// Document handles step two and returns the committed record. A non-PDF
// keeps the session; a duplicate file ends it without committing.
func (f *Flow) Document(ctx context.Context, adminID int64, doc chat.Document) (catalog.Book, error) {
	if err := f.authorize(ctx, adminID); err != nil {
		return catalog.Book{}, err
	}

	unlock := f.lock(adminID)
	defer unlock()

	s, ok, err := f.sessions.Get(ctx, adminID)
	if err != nil {
		return catalog.Book{}, errors.Wrap(err, "load session")
	}
	if !ok {
		return catalog.Book{}, errors.WithStack(errcodes.Usage(Usage))
	}
	if !bookinfo.IsPDF(doc.Name) {
		// Still an attempt: the inactivity timeout restarts.
		if err := f.sessions.Put(ctx, s); err != nil {
			return catalog.Book{}, errors.Wrap(err, "refresh session")
		}
		return catalog.Book{}, errors.WithStack(errcodes.Usage("❌ Only PDF files are allowed."))
	}

	// The session ends here whatever the outcome of the commit.
	if err := f.sessions.Delete(ctx, adminID); err != nil {
		return catalog.Book{}, errors.Wrap(err, "drop session")
	}

	book, err := f.commit(ctx, s, doc)
	if err != nil {
		return catalog.Book{}, err
	}

	f.log.Info("book uploaded", logger.Data{"admin_id": adminID, "book_id": book.ID, "title": book.Title})
	if f.OnCommit != nil {
		f.OnCommit(book)
	}
	return book, nil
}

func (f *Flow) commit(ctx context.Context, s session.Session, doc chat.Document) (catalog.Book, error) {
	if _, err := f.store.FindByFile(ctx, doc.Ref); err == nil {
		return catalog.Book{}, errors.WithStack(errcodes.DuplicateFile(doc.Name))
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return catalog.Book{}, errors.Wrap(err, "check file")
	}

	id, err := f.store.NextID(ctx)
	if err != nil {
		return catalog.Book{}, err
	}

	meta := f.parser.Parse(s.Caption)
	book := catalog.Book{
		ID:        id,
		Title:     meta.Title,
		Author:    meta.Author,
		Category:  meta.Category,
		FileRef:   doc.Ref,
		FileName:  doc.Name,
		FileSize:  doc.Size,
		CoverRef:  s.CoverRef,
		CreatedAt: f.now().UTC(),
		AddedBy:   s.AdminID,
	}
	if err := f.store.Insert(ctx, book); err != nil {
		return catalog.Book{}, err
	}
	return book, nil
}

// Cancel drops adminID's pending session and reports whether one existed.
func (f *Flow) Cancel(ctx context.Context, adminID int64) (bool, error) {
	if err := f.authorize(ctx, adminID); err != nil {
		return false, err
	}

	unlock := f.lock(adminID)
	defer unlock()

	_, ok, err := f.sessions.Get(ctx, adminID)
	if err != nil {
		return false, errors.Wrap(err, "load session")
	}
	if !ok {
		return false, nil
	}
	return true, errors.Wrap(f.sessions.Delete(ctx, adminID), "drop session")
}
