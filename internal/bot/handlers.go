package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ecaka12/telegram-book-bot/internal/access"
	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/errcodes"
	"github.com/ecaka12/telegram-book-bot/internal/reconcile"
	"github.com/ecaka12/telegram-book-bot/internal/services"
	"github.com/ecaka12/telegram-book-bot/internal/tasks"
	"github.com/ecaka12/telegram-book-bot/internal/upload"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// MaxScanLimit bounds /scan so one command cannot replay a whole archive.
const MaxScanLimit = 5000

const PrivateUploadHint = "📩 Uploads work in a private chat. Send me the cover with /upload directly."

// Outbox is what the router needs from the transport.
type Outbox interface {
	chat.Sender
	EditText(ctx context.Context, to chat.Peer, messageID int, text string, buttons ...[]chat.Button) error
}

// Incoming is one received message.
type Incoming struct {
	From    int64
	Chat    chat.Peer
	Private bool
	Message chat.Message
}

// Router turns incoming messages and button presses into catalog
// operations and replies.
type Router struct {
	out       Outbox
	books     *services.BookService
	uploads   *upload.Flow
	scanner   *reconcile.Reconciler
	tasks     *tasks.Registry
	admins    *access.Checker
	scanLimit int
	log       logger.Logger
}

type RouterDeps struct {
	Out     Outbox
	Books   *services.BookService
	Uploads *upload.Flow
	// Scanner is nil when no history source is configured.
	Scanner   *reconcile.Reconciler
	Tasks     *tasks.Registry
	Admins    *access.Checker
	ScanLimit int
	Log       logger.Logger
}

func NewRouter(d RouterDeps) *Router {
	if d.ScanLimit <= 0 {
		d.ScanLimit = 200
	}
	return &Router{
		out:       d.Out,
		books:     d.Books,
		uploads:   d.Uploads,
		scanner:   d.Scanner,
		tasks:     d.Tasks,
		admins:    d.Admins,
		scanLimit: d.ScanLimit,
		log:       d.Log,
	}
}

// ParseCommand splits "/name@bot args" into name and args. "/download_12"
// is read as "download" with args "12".
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, args, _ = strings.Cut(text[1:], " ")
	if i := strings.IndexAny(name, "\n\t"); i >= 0 {
		args = name[i:] + " " + args
		name = name[:i]
	}
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)

	if id, found := strings.CutPrefix(name, "download_"); found {
		return "download", id, true
	}
	return name, args, name != ""
}

// HandleMessage routes one message. Failures are reported to the chat and
// never returned.
func (r *Router) HandleMessage(ctx context.Context, in Incoming) {
	m := in.Message
	log := r.log.Data(logger.Data{"user_id": in.From, "chat_id": in.Chat.ID, "message_id": m.ID})

	if m.IsCover() {
		args, ok := upload.CaptionArgs(m.Text)
		switch {
		case !ok:
		case !in.Private:
			// Documents are only taken in private chats; a session started
			// here could never be completed.
			if err := r.reply(ctx, in, PrivateUploadHint); err != nil {
				log.Err(err).Warn("upload hint not delivered")
			}
		default:
			r.handleCover(ctx, log, in, args)
		}
		return
	}
	if m.Document != nil {
		if in.Private {
			r.handleDocument(ctx, log, in)
		}
		return
	}

	name, args, ok := ParseCommand(m.Text)
	if !ok {
		return
	}
	log = log.Data(logger.Data{"command": name})
	log.Debug("command received")

	var err error
	switch name {
	case "start", "help":
		err = r.handleStart(ctx, in)
	case "books":
		err = r.handleBooks(ctx, in, args)
	case "book":
		err = r.handleBook(ctx, in, args)
	case "download":
		err = r.handleDownload(ctx, in, args)
	case "search":
		err = r.handleSearch(ctx, in, args)
	case "top", "top_books":
		err = r.handleTop(ctx, in, args)
	case "mystats":
		err = r.handleStats(ctx, in)
	case "notify_on":
		err = r.handleNotify(ctx, in, true)
	case "notify_off":
		err = r.handleNotify(ctx, in, false)
	case "upload":
		err = errors.WithStack(errcodes.Usage(upload.Usage))
	case "cancel":
		err = r.handleCancel(ctx, in)
	case "scan":
		err = r.handleScan(ctx, in, args)
	case "stop":
		err = r.handleStop(ctx, in)
	case "tasks":
		err = r.handleTasks(ctx, in)
	default:
		return
	}
	if err != nil {
		r.fail(ctx, log, in.Chat, err)
	}
}

func (r *Router) reply(ctx context.Context, in Incoming, text string, buttons ...[]chat.Button) error {
	return errors.WithStack(r.out.SendText(ctx, in.Chat, text, buttons...))
}

// fail tells the user what went wrong. Classified errors carry a message
// meant for users; anything else is logged and answered generically.
func (r *Router) fail(ctx context.Context, log logger.Logger, to chat.Peer, err error) {
	text := userMessage(err)
	if errcodes.CodeOf(err) == "" {
		log.Err(err).Error("command failed")
	} else {
		log.Debug("command rejected", logger.Data{"code": errcodes.CodeOf(err)})
	}
	if sendErr := r.out.SendText(ctx, to, text); sendErr != nil {
		log.Err(sendErr).Warn("reply failed")
	}
}

func userMessage(err error) string {
	var e *errcodes.Error
	if !errors.As(err, &e) {
		return "⚠️ Something went wrong. Please try again later."
	}
	switch e.Code {
	case errcodes.CodeNotFound:
		return "❌ " + strings.ToUpper(e.Message[:1]) + e.Message[1:]
	case errcodes.CodeForbidden:
		return "🚫 " + e.Message
	case errcodes.CodeDuplicateFile:
		return "⚠️ This file is already in the catalog."
	case errcodes.CodeTransport:
		return "⚠️ Telegram refused the request, please try again."
	}
	return e.Message
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func (r *Router) isAdmin(ctx context.Context, userID int64) bool {
	ok, err := r.admins.IsAdmin(ctx, userID)
	if err != nil {
		r.log.Err(err).Warn("admin check failed", logger.Data{"user_id": userID})
		return false
	}
	return ok
}

func (r *Router) requireAdmin(ctx context.Context, userID int64, action string) error {
	if !r.isAdmin(ctx, userID) {
		return errors.WithStack(errcodes.Forbidden(action))
	}
	return nil
}

func (r *Router) handleStart(ctx context.Context, in Incoming) error {
	return r.reply(ctx, in, HelpMessage(r.isAdmin(ctx, in.From)))
}

func (r *Router) handleBooks(ctx context.Context, in Incoming, args string) error {
	page := 1
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil {
			return errors.WithStack(errcodes.Usage("Usage: /books [page]"))
		}
		page = n
	}
	p, err := r.books.ListPage(ctx, page)
	if err != nil {
		return err
	}
	text, buttons := BookListMessage(p)
	return r.reply(ctx, in, text, buttons...)
}

func (r *Router) handleBook(ctx context.Context, in Incoming, args string) error {
	book, err := r.books.BookWithID(ctx, args)
	if err != nil {
		return err
	}
	return r.showBook(ctx, in.Chat, book)
}

func (r *Router) showBook(ctx context.Context, to chat.Peer, book catalog.Book) error {
	if book.HasCover() {
		if err := r.out.SendPhoto(ctx, to, book.CoverRef, BookCard(book)); err != nil {
			// The cover may be gone; the text card still works.
			r.log.Err(err).Warn("cover not sent", logger.Data{"book_id": book.ID})
		} else {
			return errors.WithStack(r.out.SendText(ctx, to, "⬇️ Actions for book "+book.ID, BookButtons(book.ID)...))
		}
	}
	return errors.WithStack(r.out.SendText(ctx, to, BookCard(book), BookButtons(book.ID)...))
}

func (r *Router) handleDownload(ctx context.Context, in Incoming, args string) error {
	if args == "" {
		return errors.WithStack(errcodes.Usage("Usage: /download_<id>"))
	}
	_, err := r.books.Deliver(ctx, in.From, in.Chat, args)
	return err
}

func (r *Router) handleSearch(ctx context.Context, in Incoming, args string) error {
	found, err := r.books.Search(ctx, args)
	if err != nil {
		return err
	}
	return r.reply(ctx, in, SearchMessage(args, found))
}

func (r *Router) handleTop(ctx context.Context, in Incoming, args string) error {
	n := 0
	if args != "" {
		v, err := strconv.Atoi(args)
		if err != nil || v <= 0 {
			return errors.WithStack(errcodes.Usage("Usage: /top [n]"))
		}
		n = v
	}
	top, err := r.books.Top(ctx, n)
	if err != nil {
		return err
	}
	return r.reply(ctx, in, TopMessage(top))
}

func (r *Router) handleStats(ctx context.Context, in Incoming) error {
	stats, err := r.books.Stats(ctx, in.From)
	if err != nil {
		return err
	}
	return r.reply(ctx, in, StatsMessage(stats))
}

func (r *Router) handleNotify(ctx context.Context, in Incoming, on bool) error {
	if on {
		if err := r.books.Subscribe(ctx, in.From); err != nil {
			return err
		}
		return r.reply(ctx, in, "🔔 You will be notified when new books are uploaded.")
	}
	if err := r.books.Unsubscribe(ctx, in.From); err != nil {
		return err
	}
	return r.reply(ctx, in, "🔕 You will no longer receive notifications.")
}

func (r *Router) handleCover(ctx context.Context, log logger.Logger, in Incoming, args string) {
	err := r.uploads.Cover(ctx, in.From, in.Message.PhotoRef, args)
	if err != nil {
		r.fail(ctx, log, in.Chat, err)
		return
	}
	text := fmt.Sprintf("🖼 Cover saved for `%s`.\n📎 Now send the PDF, or /cancel to abort.", args)
	if err := r.reply(ctx, in, text); err != nil {
		log.Err(err).Warn("reply failed")
	}
}

func (r *Router) handleDocument(ctx context.Context, log logger.Logger, in Incoming) {
	book, err := r.uploads.Document(ctx, in.From, *in.Message.Document)
	if err != nil {
		r.fail(ctx, log, in.Chat, err)
		return
	}
	if err := r.reply(ctx, in, UploadedMessage(book)); err != nil {
		log.Err(err).Warn("reply failed")
	}
}

func (r *Router) handleCancel(ctx context.Context, in Incoming) error {
	dropped, err := r.uploads.Cancel(ctx, in.From)
	if err != nil {
		return err
	}
	if !dropped {
		return r.reply(ctx, in, "Nothing to cancel.")
	}
	return r.reply(ctx, in, "❎ Upload cancelled.")
}

func (r *Router) handleScan(ctx context.Context, in Incoming, args string) error {
	if err := r.requireAdmin(ctx, in.From, "Scanning history"); err != nil {
		return err
	}
	if r.scanner == nil {
		return errors.WithStack(errcodes.Usage("Scanning is not configured: set scan_channel_id."))
	}

	limit := r.scanLimit
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return errors.WithStack(errcodes.Usage("Usage: /scan [limit]"))
		}
		limit = min(n, MaxScanLimit)
	}

	if err := r.reply(ctx, in, fmt.Sprintf("🔎 Scanning the last %d messages… Use /stop to cancel.", limit)); err != nil {
		return err
	}

	to := in.Chat
	r.tasks.Go(tasks.KindScan, in.From, func(ctx context.Context) error {
		report, err := r.scanner.Scan(ctx, limit)

		// Report even when the scan was stopped.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if sendErr := r.out.SendText(sendCtx, to, ScanReportMessage(report, err)); sendErr != nil {
			r.log.Err(sendErr).Warn("scan report not delivered")
		}
		return err
	})
	return nil
}

func (r *Router) handleStop(ctx context.Context, in Incoming) error {
	if err := r.requireAdmin(ctx, in.From, "Stopping tasks"); err != nil {
		return err
	}
	n := r.tasks.CancelOwner(in.From)
	if n == 0 {
		return r.reply(ctx, in, "💤 Nothing of yours is running.")
	}
	return r.reply(ctx, in, fmt.Sprintf("⏹ Stopping %d task(s).", n))
}

func (r *Router) handleTasks(ctx context.Context, in Incoming) error {
	if err := r.requireAdmin(ctx, in.From, "Listing tasks"); err != nil {
		return err
	}
	return r.reply(ctx, in, TasksMessage(r.tasks.Running()))
}
