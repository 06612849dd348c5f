// Package chat describes what the catalog needs from the chat platform. The
// gotd binding in internal/bot implements it; tests use in-memory fakes.
package chat

import (
	"context"
	"strings"
	"time"
)

type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

// Peer addresses a user, group or channel, optionally a forum topic in it.
type Peer struct {
	Kind    PeerKind
	ID      int64
	TopicID int
}

func User(id int64) Peer {
	return Peer{Kind: PeerUser, ID: id}
}

func Channel(id int64, topicID int) Peer {
	return Peer{Kind: PeerChannel, ID: id, TopicID: topicID}
}

// Document is a file attached to a message. Ref is the opaque handle used to
// send the same file again.
type Document struct {
	Ref  string
	Name string
	MIME string
	Size int64
}

// Message is one historical or incoming message reduced to what the catalog
// reads from it.
type Message struct {
	ID   int
	Date time.Time
	// Text is the message text or media caption.
	Text string
	// PhotoRef is set when the message carries an image.
	PhotoRef string
	Document *Document
}

// IsCover reports whether the message carries an image and no document.
func (m Message) IsCover() bool {
	return m.PhotoRef != "" && m.Document == nil
}

// Button is an inline action under a message.
type Button struct {
	Text string
	Data string
}

var markupEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`")

// EscapeMarkup makes s print literally inside a Sender text. Texts may use
// **bold**, __italic__ and `code`; a backslash takes the next character as
// is.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

// Sender delivers outgoing messages. Every call is a single attempt. Texts
// and captions are read as markup, see EscapeMarkup.
type Sender interface {
	SendText(ctx context.Context, to Peer, text string, buttons ...[]Button) error
	SendPhoto(ctx context.Context, to Peer, photoRef, caption string) error
	SendDocument(ctx context.Context, to Peer, fileRef, caption string) error
}

// HistoryRequest asks for up to Limit messages older than OffsetID (0 means
// the newest message).
type HistoryRequest struct {
	Peer     Peer
	OffsetID int
	Limit    int
}

// History pages through past messages, newest first.
type History interface {
	FetchHistory(ctx context.Context, req HistoryRequest) ([]Message, error)
}

// Roster resolves elevated privileges in a chat.
type Roster interface {
	IsChatAdmin(ctx context.Context, chat Peer, userID int64) (bool, error)
}
