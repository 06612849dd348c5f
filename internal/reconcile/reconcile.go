// Package reconcile rebuilds catalog records from a channel's message
// history by pairing cover photos with the PDFs that follow them.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	bookinfo "github.com/ecaka12/telegram-book-bot/bookInfo"
	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/errcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/time/rate"
)

const (
	DefaultPageSize      = 100
	DefaultPairingWindow = 300 * time.Second
)

type Config struct {
	// Source is the channel (and optional topic) to replay.
	Source        chat.Peer
	PageSize      int
	PageDelay     time.Duration
	PairingWindow time.Duration
}

// MessageError records a message that could not be processed.
type MessageError struct {
	MessageID int
	Err       error
}

// Report summarizes a scan. Scanned counts every processed message,
// including ones that are neither covers nor PDFs.
type Report struct {
	Fetched  int
	Scanned  int
	Added    int
	Skipped  int
	Failures []MessageError
}

// Errors is the number of messages skipped because processing failed.
func (r Report) Errors() int {
	return len(r.Failures)
}

func (r Report) String() string {
	return fmt.Sprintf("scanned=%d added=%d skipped=%d errors=%d", r.Scanned, r.Added, r.Skipped, r.Errors())
}

type Reconciler struct {
	history chat.History
	store   catalog.Store
	parser  bookinfo.Parser
	cfg     Config
	log     logger.Logger

	// OnAdded runs for every committed record with the scan's context.
	OnAdded func(ctx context.Context, book catalog.Book)
}

func New(history chat.History, store catalog.Store, parser bookinfo.Parser, cfg Config, log logger.Logger) *Reconciler {
	if cfg.PageSize <= 0 || cfg.PageSize > DefaultPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PairingWindow <= 0 {
		cfg.PairingWindow = DefaultPairingWindow
	}
	return &Reconciler{
		history: history,
		store:   store,
		parser:  parser,
		cfg:     cfg,
		log:     log.Data(logger.Data{"channel_id": cfg.Source.ID, "topic_id": cfg.Source.TopicID}),
	}
}

type cover struct {
	ref     string
	caption string
	date    time.Time
}

// Scan replays up to limit of the most recent messages, oldest first. A
// failed page fetch aborts the scan before anything is committed; the
// returned report then carries only Fetched. Cancelling ctx stops the scan
// between messages with the counts reached so far.
func (r *Reconciler) Scan(ctx context.Context, limit int) (Report, error) {
	var report Report
	if limit <= 0 {
		return report, nil
	}

	messages, err := r.fetch(ctx, limit)
	report.Fetched = len(messages)
	if err != nil {
		return report, err
	}

	sort.SliceStable(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	var candidate *cover
	for _, m := range messages {
		if err := ctx.Err(); err != nil {
			return report, errors.WithStack(err)
		}
		report.Scanned++
		if err := r.process(ctx, m, &candidate, &report); err != nil {
			r.log.Err(err).Warn("history message skipped", logger.Data{"message_id": m.ID})
			report.Failures = append(report.Failures, MessageError{MessageID: m.ID, Err: err})
		}
	}

	r.log.Info("history scan finished", logger.Data{
		"fetched": report.Fetched,
		"scanned": report.Scanned,
		"added":   report.Added,
		"skipped": report.Skipped,
		"errors":  report.Errors(),
	})
	return report, nil
}

// fetch pages backwards from the newest message.
func (r *Reconciler) fetch(ctx context.Context, limit int) ([]chat.Message, error) {
	every := rate.Inf
	if r.cfg.PageDelay > 0 {
		every = rate.Every(r.cfg.PageDelay)
	}
	limiter := rate.NewLimiter(every, 1)

	var (
		all    []chat.Message
		offset int
	)
	for len(all) < limit {
		if err := limiter.Wait(ctx); err != nil {
			return all, errors.WithStack(err)
		}

		want := min(r.cfg.PageSize, limit-len(all))
		page, err := r.history.FetchHistory(ctx, chat.HistoryRequest{
			Peer:     r.cfg.Source,
			OffsetID: offset,
			Limit:    want,
		})
		if err != nil {
			return all, errors.WithStack(errcodes.Transport("fetch history page", err))
		}
		r.log.Debug("history page fetched", logger.Data{"offset_id": offset, "count": len(page)})

		for _, m := range page {
			if offset == 0 || m.ID < offset {
				offset = m.ID
			}
		}
		all = append(all, page...)
		if len(page) < want {
			break
		}
	}
	return all, nil
}

func (r *Reconciler) process(ctx context.Context, m chat.Message, candidate **cover, report *Report) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()

	if m.IsCover() {
		*candidate = &cover{ref: m.PhotoRef, caption: m.Text, date: m.Date}
		return nil
	}
	if m.Document == nil || !bookinfo.IsPDF(m.Document.Name) {
		return nil
	}

	if _, err := r.store.FindByFile(ctx, m.Document.Ref); err == nil {
		report.Skipped++
		return nil
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return errors.Wrap(err, "check file")
	}

	book := r.build(m, *candidate)
	id, err := r.store.NextID(ctx)
	if err != nil {
		return err
	}
	book.ID = id

	if err := r.store.Insert(ctx, book); err != nil {
		if errors.Is(err, catalog.ErrDuplicateFile) {
			// Stored concurrently since the check above.
			report.Skipped++
			return nil
		}
		return err
	}

	report.Added++
	*candidate = nil
	if r.OnAdded != nil {
		r.OnAdded(ctx, book)
	}
	return nil
}

// build derives metadata from the candidate's caption, else the document's
// own caption, else its file name. The cover is attached only within the
// pairing window.
func (r *Reconciler) build(m chat.Message, candidate *cover) catalog.Book {
	text := bookinfo.DeleteType(m.Document.Name)
	switch {
	case candidate != nil && candidate.caption != "":
		text = candidate.caption
	case m.Text != "":
		text = m.Text
	}
	meta := r.parser.Parse(text)

	book := catalog.Book{
		Title:           meta.Title,
		Author:          meta.Author,
		Category:        meta.Category,
		FileRef:         m.Document.Ref,
		FileName:        m.Document.Name,
		FileSize:        m.Document.Size,
		CreatedAt:       m.Date.UTC(),
		SourceMessageID: m.ID,
	}
	if candidate != nil && r.withinWindow(candidate.date, m.Date) {
		book.CoverRef = candidate.ref
	}
	return book
}

func (r *Reconciler) withinWindow(coverAt, docAt time.Time) bool {
	d := docAt.Sub(coverAt)
	if d < 0 {
		d = -d
	}
	return d <= r.cfg.PairingWindow
}
