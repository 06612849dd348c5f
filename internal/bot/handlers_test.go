package bot

import (
	"context"
	"fmt"
	"testing"
	"time"

	bookinfo "github.com/ecaka12/telegram-book-bot/bookInfo"
	"github.com/ecaka12/telegram-book-bot/internal/access"
	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/catalog/catalogtest"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/chat/chattest"
	"github.com/ecaka12/telegram-book-bot/internal/reconcile"
	"github.com/ecaka12/telegram-book-bot/internal/repository/memory"
	"github.com/ecaka12/telegram-book-bot/internal/services"
	"github.com/ecaka12/telegram-book-bot/internal/session"
	"github.com/ecaka12/telegram-book-bot/internal/tasks"
	"github.com/ecaka12/telegram-book-bot/internal/upload"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminID = int64(42)
	userID  = int64(7)
)

type fixture struct {
	router *Router
	tr     *chattest.Transport
	store  *memory.Store
	tasks  *tasks.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New()
	store := memory.NewStore()
	tr := chattest.New()
	checker := access.NewChecker([]int64{adminID}, nil, chat.Peer{})
	reg := tasks.NewRegistry(context.Background(), log)

	r := NewRouter(RouterDeps{
		Out:     tr,
		Books:   services.NewBookService(store, tr, 10, 5, log),
		Uploads: upload.NewFlow(store, session.NewMemoryTable(time.Minute), checker, bookinfo.Parser{}, log),
		Scanner: reconcile.New(tr, store, bookinfo.Parser{}, reconcile.Config{Source: chat.Channel(-1001234, 0)}, log),
		Tasks:   reg,
		Admins:  checker,
		Log:     log,
	})
	return &fixture{router: r, tr: tr, store: store, tasks: reg}
}

func (f *fixture) send(from int64, m chat.Message) {
	f.router.HandleMessage(context.Background(), Incoming{
		From:    from,
		Chat:    chat.User(from),
		Private: true,
		Message: m,
	})
}

func (f *fixture) command(from int64, text string) {
	f.send(from, chat.Message{ID: 1, Text: text})
}

func (f *fixture) seed(t *testing.T, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		b := catalogtest.Book(t, f.store, fmt.Sprintf("Novel %d", i), "Kalki", fmt.Sprintf("doc:%d:1", i))
		require.NoError(t, f.store.Insert(context.Background(), b))
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		name string
		args string
		ok   bool
	}{
		{"/start", "start", "", true},
		{"/book 12", "book", "12", true},
		{"/Search@NovelBot  kadal  pura ", "search", "kadal  pura", true},
		{"/download_12", "download", "12", true},
		{"/top_books", "top_books", "", true},
		{"/notify_on", "notify_on", "", true},
		{"/books\n2", "books", "2", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestStartShowsAdminSectionOnlyToAdmins(t *testing.T) {
	f := newFixture(t)

	f.command(userID, "/start")
	assert.NotContains(t, f.tr.Last().Text, "/scan")

	f.command(adminID, "/start")
	assert.Contains(t, f.tr.Last().Text, "/scan")
}

func TestTwoStepUpload(t *testing.T) {
	f := newFixture(t)

	f.send(adminID, chat.Message{ID: 1, PhotoRef: "photo:1:1", Text: "/upload Kadal Pura | Sandilyan | Historical"})
	assert.Contains(t, f.tr.Last().Text, "Cover saved")

	f.send(adminID, chat.Message{ID: 2, Document: &chat.Document{Ref: "doc:9:9", Name: "kadal.epub"}})
	assert.Contains(t, f.tr.Last().Text, "Only PDF files")

	f.send(adminID, chat.Message{ID: 3, Document: &chat.Document{Ref: "doc:9:9", Name: "kadal.pdf", Size: 1 << 20}})
	assert.Contains(t, f.tr.Last().Text, "✅ Book uploaded: `Kadal Pura` (Historical)")

	book, err := f.store.FindByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "photo:1:1", book.CoverRef)
	assert.Equal(t, "Sandilyan", book.Author)

	f.send(adminID, chat.Message{ID: 4, Document: &chat.Document{Ref: "doc:10:1", Name: "other.pdf"}})
	assert.Contains(t, f.tr.Last().Text, upload.Usage)
}

func TestUploadStartedInGroupIsRedirected(t *testing.T) {
	f := newFixture(t)
	group := chat.Channel(555, 0)
	inGroup := func(m chat.Message) {
		f.router.HandleMessage(context.Background(), Incoming{From: adminID, Chat: group, Message: m})
	}

	inGroup(chat.Message{ID: 1, PhotoRef: "photo:1:1", Text: "/upload Kadal Pura | Sandilyan | Historical"})
	require.Len(t, f.tr.Sent, 1)
	assert.Equal(t, group, f.tr.Sent[0].To)
	assert.Equal(t, PrivateUploadHint, f.tr.Sent[0].Text)

	state, err := f.router.uploads.State(context.Background(), adminID)
	require.NoError(t, err)
	assert.Equal(t, upload.Idle, state)

	inGroup(chat.Message{ID: 2, Document: &chat.Document{Ref: "doc:9:9", Name: "kadal.pdf"}})
	assert.Len(t, f.tr.Sent, 1)
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadRejectedForUsers(t *testing.T) {
	f := newFixture(t)

	f.send(userID, chat.Message{ID: 1, PhotoRef: "photo:1:1", Text: "/upload T | A | C"})
	assert.Equal(t, "🚫 Uploading books is not allowed.", f.tr.Last().Text)

	// Photos without the command are not upload attempts.
	before := len(f.tr.Sent)
	f.send(userID, chat.Message{ID: 2, PhotoRef: "photo:2:1", Text: "look at this"})
	assert.Len(t, f.tr.Sent, before)
}

func TestBookDetailAndDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := catalogtest.Book(t, f.store, "Udaiyar", "Balakumaran", "doc:5:5")
	b.CoverRef = "photo:5:5"
	require.NoError(t, f.store.Insert(ctx, b))

	f.command(userID, "/book "+b.ID)
	sent := f.tr.SentTo(userID)
	require.Len(t, sent, 2)
	assert.Equal(t, "photo", sent[0].Kind)
	assert.Contains(t, sent[0].Text, "📘 **Udaiyar**")
	assert.Equal(t, BookButtons(b.ID), sent[1].Buttons)

	f.command(userID, "/download_"+b.ID)
	last := f.tr.Last()
	assert.Equal(t, "document", last.Kind)
	assert.Equal(t, "doc:5:5", last.Ref)

	got, _ := f.store.FindByID(ctx, b.ID)
	assert.EqualValues(t, 1, got.Downloads)

	f.command(userID, "/book 99")
	assert.Equal(t, "❌ Book not found.", f.tr.Last().Text)
}

func TestCallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 12)

	cb := Callback{From: userID, Chat: chat.User(userID), MessageID: 33}

	cb.Data = "bookmark:3"
	assert.Equal(t, "🔖 Bookmarked!", f.router.HandleCallback(ctx, cb))
	assert.Equal(t, "⚠️ Already bookmarked.", f.router.HandleCallback(ctx, cb))

	cb.Data = "page:2"
	assert.Empty(t, f.router.HandleCallback(ctx, cb))
	last := f.tr.Last()
	assert.Equal(t, "edit", last.Kind)
	assert.Equal(t, 33, last.MessageID)
	assert.Contains(t, last.Text, "(2/2)")
	assert.Contains(t, last.Text, "11. Novel 11")
	require.Len(t, last.Buttons, 1)
	assert.Equal(t, "page:1", last.Buttons[0][0].Data)

	cb.Data = "download:4"
	assert.Equal(t, "📥 Sent!", f.router.HandleCallback(ctx, cb))
	stats, _ := f.store.UserStats(ctx, userID)
	assert.EqualValues(t, 1, stats.Downloads)
	assert.Equal(t, []string{"3"}, stats.Bookmarks)

	cb.Data = "download:404"
	assert.Equal(t, "❌ Book not found.", f.router.HandleCallback(ctx, cb))
}

func TestScanCommand(t *testing.T) {
	f := newFixture(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.tr.History = []chat.Message{
		{ID: 10, Date: t0, PhotoRef: "photo:1:1", Text: "Kadal Pura by Sandilyan - Historical"},
		{ID: 11, Date: t0.Add(time.Minute), Document: &chat.Document{Ref: "doc:1:1", Name: "kp.pdf"}},
		{ID: 12, Date: t0.Add(2 * time.Minute), Document: &chat.Document{Ref: "doc:2:1", Name: "Yavana Rani.pdf"}},
	}

	f.command(userID, "/scan")
	assert.Equal(t, "🚫 Scanning history is not allowed.", f.tr.Last().Text)

	f.command(adminID, "/scan 0")
	assert.Contains(t, f.tr.Last().Text, "Usage: /scan [limit]")

	f.command(adminID, "/scan 50")
	f.tasks.Wait()

	report := f.tr.Last().Text
	assert.Contains(t, report, "Scan finished")
	assert.Contains(t, report, "Scanned: 3")
	assert.Contains(t, report, "Added: 2")

	n, _ := f.store.Count(context.Background())
	assert.Equal(t, 2, n)
}

func TestStopAndTasksNeedAdmin(t *testing.T) {
	f := newFixture(t)

	f.command(userID, "/stop")
	assert.Equal(t, "🚫 Stopping tasks is not allowed.", f.tr.Last().Text)

	f.command(adminID, "/stop")
	assert.Contains(t, f.tr.Last().Text, "Nothing of yours is running")

	f.command(adminID, "/tasks")
	assert.Contains(t, f.tr.Last().Text, "Nothing is running")
}

func TestUserCommands(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 3)
	require.NoError(t, f.store.IncrementDownloads(context.Background(), "2"))

	f.command(userID, "/search")
	assert.Equal(t, "Usage: /search <keyword>", f.tr.Last().Text)

	f.command(userID, "/search novel 2")
	assert.Contains(t, f.tr.Last().Text, "2. Novel 2 by Kalki")

	f.command(userID, "/top 1")
	assert.Contains(t, f.tr.Last().Text, "2. Novel 2 (1 downloads)")

	f.command(userID, "/notify_on")
	subs, _ := f.store.Subscribers(context.Background())
	assert.Equal(t, []int64{userID}, subs)

	f.command(userID, "/mystats")
	assert.Contains(t, f.tr.Last().Text, "Bookmarked books: None")

	before := len(f.tr.Sent)
	f.command(userID, "just chatting")
	f.command(userID, "/unknown")
	assert.Len(t, f.tr.Sent, before)
}

func TestScanReportMessage(t *testing.T) {
	r := reconcile.Report{Fetched: 5, Scanned: 5, Added: 1, Skipped: 2,
		Failures: []reconcile.MessageError{{MessageID: 9}}}

	msg := ScanReportMessage(r, nil)
	assert.Contains(t, msg, "Scan finished")
	assert.Contains(t, msg, "Errors: 1 (first at message 9)")

	msg = ScanReportMessage(reconcile.Report{}, context.Canceled)
	assert.Contains(t, msg, "Scan stopped")
}

func TestBookListMessage(t *testing.T) {
	text, buttons := BookListMessage(services.Page{})
	assert.Equal(t, "📭 No books available yet.", text)
	assert.Nil(t, buttons)

	p := services.Page{
		Books:  []catalog.Book{{ID: "1", Title: "T", Author: "A", Category: "C"}},
		Number: 2, Pages: 3, Total: 21,
	}
	text, buttons = BookListMessage(p)
	assert.Contains(t, text, "1. T by A (C)")
	require.Len(t, buttons, 1)
	assert.Equal(t, []chat.Button{
		{Text: "◀️ Prev", Data: "page:1"},
		{Text: "Next ▶️", Data: "page:3"},
	}, buttons[0])
}

func TestStatsMessageCapsBookmarks(t *testing.T) {
	assert.Contains(t, StatsMessage(catalog.UserStats{}), "Bookmarked books: None")

	stats := catalog.UserStats{Downloads: 3}
	for i := 1; i <= 1500; i++ {
		stats.Bookmarks = append(stats.Bookmarks, fmt.Sprint(i))
	}
	text := StatsMessage(stats)
	assert.Contains(t, text, "99, 100 …and 1400 more")
	assert.NotContains(t, text, "101")
	assert.Less(t, len(text), 4096)
}
