package bot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/markup"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/time/rate"
)

const (
	// idBatch is how many message ids one channels.getMessages call asks for.
	idBatch = 100

	batchInterval = 250 * time.Millisecond
)

// PeerCache remembers access hashes and file references seen in updates.
// MTProto requires both to address users, channels and files again.
type PeerCache struct {
	mu       sync.RWMutex
	users    map[int64]int64
	channels map[int64]int64
	files    map[string][]byte
	latest   map[int64]int
}

func NewPeerCache() *PeerCache {
	return &PeerCache{
		users:    make(map[int64]int64),
		channels: make(map[int64]int64),
		files:    make(map[string][]byte),
		latest:   make(map[int64]int),
	}
}

// Apply records the entities attached to an update. Min constructors carry
// hashes that cannot be used for direct calls and are skipped.
func (c *PeerCache) Apply(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, u := range e.Users {
		if u != nil && !u.Min {
			c.users[id] = u.AccessHash
		}
	}
	for id, ch := range e.Channels {
		if ch != nil && !ch.Min {
			c.channels[id] = ch.AccessHash
		}
	}
}

func (c *PeerCache) user(id int64) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.users[id]
}

func (c *PeerCache) channel(id int64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.channels[id]
	return h, ok
}

func (c *PeerCache) setChannel(id, hash int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[id] = hash
}

// ObserveMessage records that channelID has a message with id msgID. History
// reads start below the highest id observed.
func (c *PeerCache) ObserveMessage(channelID int64, msgID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msgID > c.latest[channelID] {
		c.latest[channelID] = msgID
	}
}

func (c *PeerCache) latestMessage(channelID int64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest[channelID]
}

func (c *PeerCache) RememberFile(ref string, fileReference []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[ref] = fileReference
}

func (c *PeerCache) fileReference(ref string) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.files[ref]
}

// Transport implements the chat interfaces over the MTProto API.
type Transport struct {
	api     *tg.Client
	sender  *message.Sender
	peers   *PeerCache
	batches *rate.Limiter
	log     logger.Logger
}

func NewTransport(api *tg.Client, peers *PeerCache, log logger.Logger) *Transport {
	return &Transport{
		api:     api,
		sender:  message.NewSender(api),
		peers:   peers,
		batches: rate.NewLimiter(rate.Every(batchInterval), 1),
		log:     log,
	}
}

var (
	_ chat.Sender  = (*Transport)(nil)
	_ chat.History = (*Transport)(nil)
	_ chat.Roster  = (*Transport)(nil)
	_ Outbox       = (*Transport)(nil)
)

func (t *Transport) inputChannel(ctx context.Context, id int64) (*tg.InputChannel, error) {
	id = plainChannelID(id)
	if hash, ok := t.peers.channel(id); ok {
		return &tg.InputChannel{ChannelID: id, AccessHash: hash}, nil
	}

	// Bots may look up channels they belong to without a hash.
	res, err := t.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: id}})
	if err != nil {
		return nil, errors.Wrapf(err, "resolve channel %d", id)
	}
	for _, c := range res.GetChats() {
		if ch, ok := c.(*tg.Channel); ok && ch.ID == id {
			t.peers.setChannel(id, ch.AccessHash)
			return &tg.InputChannel{ChannelID: id, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, errors.Errorf("channel %d not accessible", id)
}

func (t *Transport) inputPeer(ctx context.Context, p chat.Peer) (tg.InputPeerClass, error) {
	switch p.Kind {
	case chat.PeerUser:
		return &tg.InputPeerUser{UserID: p.ID, AccessHash: t.peers.user(p.ID)}, nil
	case chat.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ID}, nil
	case chat.PeerChannel:
		ch, err := t.inputChannel(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash}, nil
	}
	return nil, errors.Errorf("unknown peer kind %d", p.Kind)
}

// builder addresses to, posting into its forum topic when set. Topic 1 is
// the general topic and takes no reply header.
func (t *Transport) builder(ctx context.Context, to chat.Peer, buttons [][]chat.Button) (*message.Builder, error) {
	p, err := t.inputPeer(ctx, to)
	if err != nil {
		return nil, err
	}
	b := &t.sender.To(p).Builder
	if to.TopicID > 1 {
		b = b.Reply(to.TopicID)
	}
	if len(buttons) > 0 {
		b = b.Markup(keyboard(buttons))
	}
	return b, nil
}

func keyboard(buttons [][]chat.Button) tg.ReplyMarkupClass {
	rows := make([]tg.KeyboardButtonRow, 0, len(buttons))
	for _, row := range buttons {
		kb := make([]tg.KeyboardButtonClass, 0, len(row))
		for _, btn := range row {
			kb = append(kb, markup.Callback(btn.Text, []byte(btn.Data)))
		}
		rows = append(rows, markup.Row(kb...))
	}
	return markup.InlineKeyboard(rows...)
}

func (t *Transport) SendText(ctx context.Context, to chat.Peer, text string, buttons ...[]chat.Button) error {
	b, err := t.builder(ctx, to, buttons)
	if err != nil {
		return err
	}
	_, err = b.StyledText(ctx, styled(text)...)
	return errors.Wrap(err, "send text")
}

func (t *Transport) SendPhoto(ctx context.Context, to chat.Peer, photoRef, caption string) error {
	h, err := parseFileHandle(photoRef, photoPrefix)
	if err != nil {
		return err
	}
	b, err := t.builder(ctx, to, nil)
	if err != nil {
		return err
	}
	photo := &tg.InputPhoto{ID: h.id, AccessHash: h.accessHash, FileReference: t.peers.fileReference(photoRef)}
	_, err = b.Media(ctx, message.Photo(photo, styled(caption)...))
	return errors.Wrap(err, "send photo")
}

func (t *Transport) SendDocument(ctx context.Context, to chat.Peer, fileRef, caption string) error {
	h, err := parseFileHandle(fileRef, docPrefix)
	if err != nil {
		return err
	}
	b, err := t.builder(ctx, to, nil)
	if err != nil {
		return err
	}
	doc := &tg.InputDocument{ID: h.id, AccessHash: h.accessHash, FileReference: t.peers.fileReference(fileRef)}
	_, err = b.Media(ctx, message.Document(doc, styled(caption)...))
	return errors.Wrap(err, "send document")
}

func (t *Transport) EditText(ctx context.Context, to chat.Peer, messageID int, text string, buttons ...[]chat.Button) error {
	p, err := t.inputPeer(ctx, to)
	if err != nil {
		return err
	}
	b := &t.sender.To(p).Builder
	if len(buttons) > 0 {
		b = b.Markup(keyboard(buttons))
	}
	_, err = b.Edit(messageID).StyledText(ctx, styled(text)...)
	if tgerr.Is(err, "MESSAGE_NOT_MODIFIED") {
		return nil
	}
	return errors.Wrap(err, "edit message")
}

// FetchHistory reads one page, newest first, by asking for falling ranges of
// message ids. Bot sessions may not call messages.getHistory, but they may
// fetch channel messages by id. Deleted ids come back empty and are skipped,
// so a page is only short once id 1 has been read.
//
// A forum topic above the general one keeps only the messages posted in it.
func (t *Transport) FetchHistory(ctx context.Context, req chat.HistoryRequest) ([]chat.Message, error) {
	if req.Peer.Kind != chat.PeerChannel {
		return nil, errors.Errorf("history is only readable for channels and supergroups, got peer kind %d", req.Peer.Kind)
	}
	ch, err := t.inputChannel(ctx, req.Peer.ID)
	if err != nil {
		return nil, err
	}

	top := req.OffsetID - 1
	if req.OffsetID <= 0 {
		top, err = t.latestMessageID(ctx, ch)
		if err != nil {
			return nil, err
		}
	}

	out := make([]chat.Message, 0, req.Limit)
	for top > 0 && len(out) < req.Limit {
		low := top - idBatch + 1
		if low < 1 {
			low = 1
		}
		if err := t.batches.Wait(ctx); err != nil {
			return nil, errors.WithStack(err)
		}
		raw, err := t.messagesByID(ctx, ch, low, top)
		if err != nil {
			return nil, err
		}
		for _, m := range raw {
			if len(out) == req.Limit {
				break
			}
			if msg, ok := t.inTopic(m, req.Peer.TopicID); ok {
				out = append(out, msg)
			}
		}
		top = low - 1
	}
	return out, nil
}

// messagesByID returns the existing messages with ids in [low, high], newest
// first.
func (t *Transport) messagesByID(ctx context.Context, ch *tg.InputChannel, low, high int) ([]tg.NotEmptyMessage, error) {
	ids := make([]tg.InputMessageClass, 0, high-low+1)
	for id := high; id >= low; id-- {
		ids = append(ids, &tg.InputMessageID{ID: id})
	}
	res, err := t.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{Channel: ch, ID: ids})
	if err != nil {
		return nil, errors.Wrapf(err, "get channel messages %d-%d", low, high)
	}

	modified, ok := res.AsModified()
	if !ok {
		return nil, nil
	}
	msgs := make([]tg.NotEmptyMessage, 0, len(modified.GetMessages()))
	for _, m := range modified.GetMessages() {
		if nm, ok := m.AsNotEmpty(); ok {
			msgs = append(msgs, nm)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].GetID() > msgs[j].GetID() })
	return msgs, nil
}

func (t *Transport) inTopic(m tg.NotEmptyMessage, topicID int) (chat.Message, bool) {
	switch msg := m.(type) {
	case *tg.Message:
		if topicID > 1 && topicOf(msg) != topicID {
			return chat.Message{}, false
		}
		return convertMessage(msg, t.peers), true
	case *tg.MessageService:
		if topicID > 1 {
			return chat.Message{}, false
		}
		return chat.Message{ID: msg.ID, Date: time.Unix(int64(msg.Date), 0).UTC()}, true
	}
	return chat.Message{}, false
}

// latestMessageID returns the highest message id known for ch: the newest
// one seen in updates or the read markers of the channel, whichever is
// larger.
func (t *Transport) latestMessageID(ctx context.Context, ch *tg.InputChannel) (int, error) {
	latest := t.peers.latestMessage(ch.ChannelID)

	res, err := t.api.ChannelsGetFullChannel(ctx, ch)
	if err != nil {
		return 0, errors.Wrap(err, "get full channel")
	}
	if full, ok := res.FullChat.(*tg.ChannelFull); ok {
		latest = max(latest, full.ReadInboxMaxID, full.ReadOutboxMaxID)
	}

	if latest == 0 {
		return 0, errors.Errorf("no message of channel %d seen yet, post one there and retry", ch.ChannelID)
	}
	return latest, nil
}

// IsChatAdmin reports whether userID is the creator or an administrator of
// chat.
func (t *Transport) IsChatAdmin(ctx context.Context, c chat.Peer, userID int64) (bool, error) {
	user := &tg.InputPeerUser{UserID: userID, AccessHash: t.peers.user(userID)}

	switch c.Kind {
	case chat.PeerChannel:
		ch, err := t.inputChannel(ctx, c.ID)
		if err != nil {
			return false, err
		}
		res, err := t.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
			Channel:     ch,
			Participant: user,
		})
		if tgerr.Is(err, "USER_NOT_PARTICIPANT", "PARTICIPANT_ID_INVALID") {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrap(err, "get participant")
		}
		switch res.Participant.(type) {
		case *tg.ChannelParticipantCreator, *tg.ChannelParticipantAdmin:
			return true, nil
		}
		return false, nil

	case chat.PeerChat:
		res, err := t.api.MessagesGetFullChat(ctx, c.ID)
		if err != nil {
			return false, errors.Wrap(err, "get full chat")
		}
		full, ok := res.FullChat.(*tg.ChatFull)
		if !ok {
			return false, nil
		}
		participants, ok := full.Participants.(*tg.ChatParticipants)
		if !ok {
			return false, nil
		}
		for _, p := range participants.Participants {
			switch v := p.(type) {
			case *tg.ChatParticipantCreator:
				if v.UserID == userID {
					return true, nil
				}
			case *tg.ChatParticipantAdmin:
				if v.UserID == userID {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, nil
}
