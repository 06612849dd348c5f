// Package chattest provides an in-memory chat transport for tests.
package chattest

import (
	"context"
	"sort"
	"sync"

	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/pkg/errors"
)

// Sent is one recorded outgoing message.
type Sent struct {
	To        chat.Peer
	Kind      string // "text", "photo", "document" or "edit"
	Ref       string
	MessageID int
	Text      string
	Buttons   [][]chat.Button
}

// Transport records sends and serves a fixed history. Set FailFor to make
// sends to specific users fail, PageErrAt to fail a given history call.
type Transport struct {
	mu sync.Mutex

	Sent    []Sent
	FailFor map[int64]bool

	// History is kept in chronological order; FetchHistory serves it newest first.
	History   []chat.Message
	PageErrAt int // 1-based call index that fails; 0 never fails
	Requests  []chat.HistoryRequest

	Admins map[int64]bool
}

func New() *Transport {
	return &Transport{FailFor: map[int64]bool{}, Admins: map[int64]bool{}}
}

var (
	_ chat.Sender  = (*Transport)(nil)
	_ chat.History = (*Transport)(nil)
	_ chat.Roster  = (*Transport)(nil)
)

func (f *Transport) record(to chat.Peer, s Sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to.Kind == chat.PeerUser && f.FailFor[to.ID] {
		return errors.New("USER_IS_BLOCKED")
	}
	s.To = to
	f.Sent = append(f.Sent, s)
	return nil
}

func (f *Transport) SendText(_ context.Context, to chat.Peer, text string, buttons ...[]chat.Button) error {
	return f.record(to, Sent{Kind: "text", Text: text, Buttons: buttons})
}

func (f *Transport) SendPhoto(_ context.Context, to chat.Peer, photoRef, caption string) error {
	return f.record(to, Sent{Kind: "photo", Ref: photoRef, Text: caption})
}

func (f *Transport) SendDocument(_ context.Context, to chat.Peer, fileRef, caption string) error {
	return f.record(to, Sent{Kind: "document", Ref: fileRef, Text: caption})
}

func (f *Transport) EditText(_ context.Context, to chat.Peer, messageID int, text string, buttons ...[]chat.Button) error {
	return f.record(to, Sent{Kind: "edit", MessageID: messageID, Text: text, Buttons: buttons})
}

// Last returns the most recent recorded message.
func (f *Transport) Last() Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return Sent{}
	}
	return f.Sent[len(f.Sent)-1]
}

// SentTo returns the messages delivered to peer id.
func (f *Transport) SentTo(id int64) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []Sent
	for _, s := range f.Sent {
		if s.To.ID == id {
			res = append(res, s)
		}
	}
	return res
}

func (f *Transport) FetchHistory(ctx context.Context, req chat.HistoryRequest) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.PageErrAt == len(f.Requests) {
		return nil, errors.New("FLOOD_WAIT_5")
	}

	newest := make([]chat.Message, len(f.History))
	copy(newest, f.History)
	sort.SliceStable(newest, func(i, j int) bool { return newest[i].ID > newest[j].ID })

	var page []chat.Message
	for _, m := range newest {
		if req.OffsetID != 0 && m.ID >= req.OffsetID {
			continue
		}
		page = append(page, m)
		if len(page) == req.Limit {
			break
		}
	}
	return page, nil
}

func (f *Transport) IsChatAdmin(_ context.Context, _ chat.Peer, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Admins[userID], nil
}
