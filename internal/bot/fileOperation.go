package bot

import (
	"strconv"
	"strings"
	"time"

	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
)

const (
	docPrefix   = "doc"
	photoPrefix = "photo"
)

// fileHandle identifies a stored Telegram file. The file reference bytes are
// not part of it: they change over time while id and access hash do not, so
// the encoded form is a stable catalog key.
type fileHandle struct {
	kind       string
	id         int64
	accessHash int64
}

func (h fileHandle) String() string {
	return h.kind + ":" + strconv.FormatInt(h.id, 10) + ":" + strconv.FormatInt(h.accessHash, 10)
}

func parseFileHandle(ref, kind string) (fileHandle, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 || parts[0] != kind {
		return fileHandle{}, errors.Errorf("malformed %s handle %q", kind, ref)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fileHandle{}, errors.Wrapf(err, "malformed %s handle %q", kind, ref)
	}
	hash, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return fileHandle{}, errors.Wrapf(err, "malformed %s handle %q", kind, ref)
	}
	return fileHandle{kind: kind, id: id, accessHash: hash}, nil
}

// GetDocumentName returns the file name attribute of doc.
func GetDocumentName(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return fn.FileName
		}
	}
	return "document.pdf"
}

// convertMessage reduces a tg message to chat.Message and remembers the file
// references of its media in cache.
func convertMessage(m *tg.Message, cache *PeerCache) chat.Message {
	out := chat.Message{
		ID:   m.ID,
		Date: time.Unix(int64(m.Date), 0).UTC(),
		Text: m.Message,
	}

	switch media := m.Media.(type) {
	case *tg.MessageMediaPhoto:
		if p, ok := media.Photo.(*tg.Photo); ok {
			h := fileHandle{kind: photoPrefix, id: p.ID, accessHash: p.AccessHash}
			cache.RememberFile(h.String(), p.FileReference)
			out.PhotoRef = h.String()
		}
	case *tg.MessageMediaDocument:
		if d, ok := media.Document.(*tg.Document); ok {
			h := fileHandle{kind: docPrefix, id: d.ID, accessHash: d.AccessHash}
			cache.RememberFile(h.String(), d.FileReference)
			out.Document = &chat.Document{
				Ref:  h.String(),
				Name: GetDocumentName(d),
				MIME: d.MimeType,
				Size: d.Size,
			}
		}
	}
	return out
}

// senderID returns the author of an incoming message. Private chats may omit
// FromID; the peer is the user then.
func senderID(m *tg.Message) (int64, bool) {
	if from, ok := m.GetFromID(); ok {
		if u, ok := from.(*tg.PeerUser); ok {
			return u.UserID, true
		}
	}
	if u, ok := m.PeerID.(*tg.PeerUser); ok {
		return u.UserID, true
	}
	return 0, false
}

// chatOf returns where replies to m should go, including its forum topic.
func chatOf(m *tg.Message) (chat.Peer, bool) {
	switch p := m.PeerID.(type) {
	case *tg.PeerUser:
		return chat.User(p.UserID), true
	case *tg.PeerChat:
		return chat.Peer{Kind: chat.PeerChat, ID: p.ChatID}, true
	case *tg.PeerChannel:
		return chat.Channel(p.ChannelID, topicOf(m)), true
	}
	return chat.Peer{}, false
}

func topicOf(m *tg.Message) int {
	h, ok := m.ReplyTo.(*tg.MessageReplyHeader)
	if !ok || !h.ForumTopic {
		return 0
	}
	if h.ReplyToTopID != 0 {
		return h.ReplyToTopID
	}
	return h.ReplyToMsgID
}

// plainChannelID accepts both the bare MTProto id and the -100… form used by
// the Bot API and most configuration.
func plainChannelID(id int64) int64 {
	const botAPIOffset = 1000000000000
	if id < -botAPIOffset {
		return -id - botAPIOffset
	}
	if id < 0 {
		return -id
	}
	return id
}
