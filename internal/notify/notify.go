package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/time/rate"
)

// SubscriberSource lists the users opted into new-record notifications.
type SubscriberSource interface {
	Subscribers(ctx context.Context) ([]int64, error)
}

// Result counts one fanout.
type Result struct {
	Announced bool
	Sent      int
	Failed    int
}

// Notifier broadcasts new records: one post to the announcement topic (when
// configured) and one message per subscriber. Sends are single best-effort
// attempts; failures are counted and never retried.
type Notifier struct {
	subs     SubscriberSource
	sender   chat.Sender
	announce chat.Peer
	limiter  *rate.Limiter
	log      logger.Logger
}

// New builds a Notifier. announce with ID 0 disables the group post; delay
// spaces consecutive sends.
func New(subs SubscriberSource, sender chat.Sender, announce chat.Peer, delay time.Duration, log logger.Logger) *Notifier {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Notifier{
		subs:     subs,
		sender:   sender,
		announce: announce,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
	}
}

// Notify fans book out. It returns early with ctx's error when cancelled;
// remaining recipients are abandoned.
func (n *Notifier) Notify(ctx context.Context, book catalog.Book) (Result, error) {
	var res Result
	log := n.log.Data(logger.Data{"book_id": book.ID})

	if n.announce.ID != 0 {
		if err := n.limiter.Wait(ctx); err != nil {
			return res, errors.WithStack(err)
		}
		if err := n.send(ctx, n.announce, book, AnnouncementCaption(book)); err != nil {
			log.Err(err).Warn("announcement failed")
		} else {
			res.Announced = true
		}
	}

	subs, err := n.subs.Subscribers(ctx)
	if err != nil {
		return res, errors.Wrap(err, "list subscribers")
	}

	caption := SubscriberCaption(book)
	for _, id := range subs {
		if err := n.limiter.Wait(ctx); err != nil {
			return res, errors.WithStack(err)
		}
		if err := n.send(ctx, chat.User(id), book, caption); err != nil {
			// Blocked bots and deleted accounts are expected here.
			log.Debug("notification not delivered", logger.Data{"user_id": id, "error": err.Error()})
			res.Failed++
			continue
		}
		res.Sent++
	}

	log.Info("fanout finished", logger.Data{"sent": res.Sent, "failed": res.Failed, "announced": res.Announced})
	return res, nil
}

func (n *Notifier) send(ctx context.Context, to chat.Peer, book catalog.Book, caption string) error {
	if book.HasCover() {
		return n.sender.SendPhoto(ctx, to, book.CoverRef, caption)
	}
	return n.sender.SendText(ctx, to, caption)
}

func SubscriberCaption(b catalog.Book) string {
	return fmt.Sprintf("🆕 New book uploaded: %s by %s\nUse /book %s to view.",
		chat.EscapeMarkup(b.Title), chat.EscapeMarkup(b.Author), b.ID)
}

func AnnouncementCaption(b catalog.Book) string {
	title, author := chat.EscapeMarkup(b.Title), chat.EscapeMarkup(b.Author)
	if b.HasCover() {
		return fmt.Sprintf("📘 %s\n✍️ Author: %s\n📂 ID: %s\n🔗 Use /book %s to download.", title, author, b.ID, b.ID)
	}
	return fmt.Sprintf("📚 %s Uploaded: %s by %s\n📁 ID: %s\n📘 Use /book %s to view details.",
		chat.EscapeMarkup(b.Category), title, author, b.ID, b.ID)
}
