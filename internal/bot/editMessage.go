// Message texts live here. They use a small markup understood by styled:
// **bold**, __italic__ and `code`. User-supplied text goes through esc.
package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/reconcile"
	"github.com/ecaka12/telegram-book-bot/internal/services"
	"github.com/ecaka12/telegram-book-bot/internal/tasks"
	"github.com/gotd/td/telegram/message/styling"
)

// maxListed bounds search results in one message; Telegram rejects texts
// over 4096 characters.
const maxListed = 40

const separator = "━━━━━━━━━━"

// maxBookmarks bounds the ids listed by /mystats.
const maxBookmarks = 100

var esc = chat.EscapeMarkup

func HelpMessage(admin bool) string {
	var sb strings.Builder
	sb.WriteString("📚 **Welcome to the Tamil Novels Bot!**\n\n")
	sb.WriteString("/books - List all books\n")
	sb.WriteString("/book <id> - View book details\n")
	sb.WriteString("/download_<id> - Get the PDF\n")
	sb.WriteString("/search <keyword> - Search by title or author\n")
	sb.WriteString("/top [n] - Most downloaded books\n")
	sb.WriteString("/mystats - View your download stats\n")
	sb.WriteString("/notify_on - Get notified when new books are uploaded\n")
	sb.WriteString("/notify_off - Stop notifications\n")
	if admin {
		sb.WriteString("\n🛠 **Admin**\n")
		sb.WriteString("Send a cover photo captioned `/upload <title> | <author> | <category>`, then the PDF\n")
		sb.WriteString("/cancel - Abort a pending upload\n")
		sb.WriteString("/scan [limit] - Import books from the channel history\n")
		sb.WriteString("/tasks - Running scans and notifications\n")
		sb.WriteString("/stop - Stop your running scans and notifications\n")
	}
	return sb.String()
}

// BookListMessage renders one page of the catalog with navigation buttons.
func BookListMessage(p services.Page) (string, [][]chat.Button) {
	if p.Total == 0 {
		return "📭 No books available yet.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📚 **Available Books** (%d/%d)\n%s\n", p.Number, p.Pages, separator)
	for _, b := range p.Books {
		fmt.Fprintf(&sb, "%s. %s by %s (%s)\n", b.ID, esc(b.Title), esc(b.Author), esc(b.Category))
	}
	sb.WriteString(separator + "\nUse `/book <id>` to view details.")

	var nav []chat.Button
	if p.HasPrev() {
		nav = append(nav, chat.Button{Text: "◀️ Prev", Data: "page:" + strconv.Itoa(p.Number-1)})
	}
	if p.HasNext() {
		nav = append(nav, chat.Button{Text: "Next ▶️", Data: "page:" + strconv.Itoa(p.Number+1)})
	}
	if len(nav) == 0 {
		return sb.String(), nil
	}
	return sb.String(), [][]chat.Button{nav}
}

func BookCard(b catalog.Book) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📘 **%s**\n", esc(b.Title))
	fmt.Fprintf(&sb, "✍️ Author: %s\n", esc(b.Author))
	fmt.Fprintf(&sb, "🗂 Category: %s\n", esc(b.Category))
	fmt.Fprintf(&sb, "📄 ID: %s\n", b.ID)
	if b.FileSize > 0 {
		fmt.Fprintf(&sb, "💾 Size: %s\n", humanize.Bytes(uint64(b.FileSize)))
	}
	fmt.Fprintf(&sb, "⬇️ Downloads: %s\n", humanize.Comma(b.Downloads))
	if !b.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "📅 Added: %s\n", b.CreatedAt.Format("02.01.2006 15:04"))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func BookButtons(id string) [][]chat.Button {
	return [][]chat.Button{
		{{Text: "📥 Download PDF", Data: "download:" + id}},
		{{Text: "🔖 Bookmark", Data: "bookmark:" + id}},
	}
}

func SearchMessage(keyword string, books []catalog.Book) string {
	if len(books) == 0 {
		return "❌ No books found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 **Search Results** for __%s__:\n", esc(keyword))
	for i, b := range books {
		if i == maxListed {
			fmt.Fprintf(&sb, "…and %d more. Try a narrower keyword.", len(books)-maxListed)
			break
		}
		fmt.Fprintf(&sb, "%s. %s by %s\n", b.ID, esc(b.Title), esc(b.Author))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func TopMessage(books []catalog.Book) string {
	if len(books) == 0 {
		return "📭 No books available."
	}
	var sb strings.Builder
	sb.WriteString("🏆 **Top Downloaded Books:**\n")
	for _, b := range books {
		fmt.Fprintf(&sb, "%s. %s (%s downloads)\n", b.ID, esc(b.Title), humanize.Comma(b.Downloads))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func StatsMessage(s catalog.UserStats) string {
	bookmarked := "None"
	if n := len(s.Bookmarks); n > maxBookmarks {
		bookmarked = fmt.Sprintf("%s …and %d more", strings.Join(s.Bookmarks[:maxBookmarks], ", "), n-maxBookmarks)
	} else if n > 0 {
		bookmarked = strings.Join(s.Bookmarks, ", ")
	}
	return fmt.Sprintf("📊 **Your Stats**\n📥 Books downloaded: %s\n🔖 Bookmarked books: %s",
		humanize.Comma(s.Downloads), bookmarked)
}

func UploadedMessage(b catalog.Book) string {
	return fmt.Sprintf("✅ Book uploaded: `%s` (%s)\n📄 ID: %s", esc(b.Title), esc(b.Category), b.ID)
}

// ScanReportMessage summarizes a finished, failed or stopped scan.
func ScanReportMessage(r reconcile.Report, err error) string {
	var sb strings.Builder
	switch {
	case err == nil:
		sb.WriteString("✅ **Scan finished**\n")
	case isCanceled(err):
		sb.WriteString("⏹ **Scan stopped**\n")
	default:
		sb.WriteString("⚠️ **Scan aborted**: " + userMessage(err) + "\n")
	}
	fmt.Fprintf(&sb, "📨 Fetched: %d\n🔎 Scanned: %d\n➕ Added: %d\n⏭ Skipped: %d", r.Fetched, r.Scanned, r.Added, r.Skipped)
	if n := r.Errors(); n > 0 {
		fmt.Fprintf(&sb, "\n❗ Errors: %d (first at message %d)", n, r.Failures[0].MessageID)
	}
	return sb.String()
}

func TasksMessage(running []tasks.Task) string {
	if len(running) == 0 {
		return "💤 Nothing is running."
	}
	var sb strings.Builder
	sb.WriteString("⚙️ **Running tasks:**\n")
	for _, t := range running {
		fmt.Fprintf(&sb, "• %s by %d, started %s\n", t.Kind, t.Owner, humanize.Time(t.Started))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

type spanKind int

const (
	spanPlain spanKind = iota
	spanBold
	spanItalic
	spanCode
)

type span struct {
	kind spanKind
	text string
}

var markers = []struct {
	token string
	kind  spanKind
}{
	{"**", spanBold},
	{"__", spanItalic},
	{"`", spanCode},
}

// parseMarkup splits text into styled spans. An unterminated or empty
// marker is kept as plain text; a backslash keeps the next character plain.
func parseMarkup(text string) []span {
	var (
		spans []span
		plain strings.Builder
	)
	flush := func() {
		if plain.Len() > 0 {
			spans = append(spans, span{kind: spanPlain, text: plain.String()})
			plain.Reset()
		}
	}

next:
	for len(text) > 0 {
		if text[0] == '\\' && len(text) > 1 {
			_, size := utf8.DecodeRuneInString(text[1:])
			plain.WriteString(text[1 : 1+size])
			text = text[1+size:]
			continue
		}
		for _, m := range markers {
			if !strings.HasPrefix(text, m.token) {
				continue
			}
			rest := text[len(m.token):]
			if end := closing(rest, m.token); end > 0 {
				flush()
				spans = append(spans, span{kind: m.kind, text: unescape(rest[:end])})
				text = rest[end+len(m.token):]
				continue next
			}
			break
		}
		plain.WriteByte(text[0])
		text = text[1:]
	}
	flush()
	return spans
}

// closing returns the index of the first unescaped token in s, or -1.
func closing(s, token string) int {
	for i := 0; i < len(s); {
		switch {
		case s[i] == '\\':
			i += 2
		case strings.HasPrefix(s[i:], token):
			return i
		default:
			i++
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// styled converts the markup used above into gotd styling options.
func styled(text string) []styling.StyledTextOption {
	spans := parseMarkup(text)
	if len(spans) == 0 {
		return []styling.StyledTextOption{styling.Plain("")}
	}
	opts := make([]styling.StyledTextOption, 0, len(spans))
	for _, s := range spans {
		switch s.kind {
		case spanBold:
			opts = append(opts, styling.Bold(s.text))
		case spanItalic:
			opts = append(opts, styling.Italic(s.text))
		case spanCode:
			opts = append(opts, styling.Code(s.text))
		default:
			opts = append(opts, styling.Plain(s.text))
		}
	}
	return opts
}
