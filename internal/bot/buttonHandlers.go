package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/robinjoseph08/golib/logger"
)

// Callback is a press on an inline button.
type Callback struct {
	From      int64
	Chat      chat.Peer
	MessageID int
	Data      string
}

// HandleCallback acts on a button press and returns the short notice shown
// to the user.
func (r *Router) HandleCallback(ctx context.Context, cb Callback) string {
	log := r.log.Data(logger.Data{"user_id": cb.From, "data": cb.Data})
	action, arg, _ := strings.Cut(cb.Data, ":")

	switch action {
	case "page":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return "Unknown page."
		}
		p, err := r.books.ListPage(ctx, n)
		if err != nil {
			log.Err(err).Error("list page failed")
			return userMessage(err)
		}
		text, buttons := BookListMessage(p)
		if err := r.out.EditText(ctx, cb.Chat, cb.MessageID, text, buttons...); err != nil {
			log.Err(err).Warn("page edit failed")
			return userMessage(err)
		}
		return ""

	case "download":
		if _, err := r.books.Deliver(ctx, cb.From, cb.Chat, arg); err != nil {
			log.Err(err).Warn("delivery failed")
			return userMessage(err)
		}
		return "📥 Sent!"

	case "bookmark":
		res, err := r.books.Bookmark(ctx, cb.From, arg)
		if err != nil {
			log.Err(err).Warn("bookmark failed")
			return userMessage(err)
		}
		if res == catalog.BookmarkAlreadyExists {
			return "⚠️ Already bookmarked."
		}
		return "🔖 Bookmarked!"
	}

	log.Debug("unknown button")
	return ""
}
