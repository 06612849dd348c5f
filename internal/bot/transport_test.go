package bot

import (
	"context"
	"testing"

	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgmock"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const scanChannel = int64(77)

var scanInput = &tg.InputChannel{ChannelID: scanChannel, AccessHash: 5}

func newTestTransport(t *testing.T) (*Transport, *tgmock.Mock) {
	t.Helper()
	mock := tgmock.NewRequire(t)
	peers := NewPeerCache()
	peers.setChannel(scanChannel, 5)
	tr := NewTransport(tg.NewClient(mock), peers, logger.New())
	tr.batches = rate.NewLimiter(rate.Inf, 1)
	return tr, mock
}

func idRange(high, low int) *tg.ChannelsGetMessagesRequest {
	req := &tg.ChannelsGetMessagesRequest{Channel: scanInput}
	for id := high; id >= low; id-- {
		req.ID = append(req.ID, &tg.InputMessageID{ID: id})
	}
	return req
}

func channelMessage(id int, text string) *tg.Message {
	return &tg.Message{
		ID:      id,
		Date:    1700000000 + id,
		Message: text,
		PeerID:  &tg.PeerChannel{ChannelID: scanChannel},
	}
}

func topicMessage(id, topic int) *tg.Message {
	m := channelMessage(id, "in topic")
	m.ReplyTo = &tg.MessageReplyHeader{ForumTopic: true, ReplyToMsgID: topic}
	return m
}

func messageIDs(msgs []chat.Message) []int {
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestFetchHistory_StartsFromNewestKnownMessage(t *testing.T) {
	tr, mock := newTestTransport(t)
	tr.peers.ObserveMessage(scanChannel, 250)

	mock.ExpectCall(&tg.ChannelsGetFullChannelRequest{Channel: scanInput}).
		ThenResult(&tg.MessagesChatFull{FullChat: &tg.ChannelFull{
			ID:             scanChannel,
			ChatPhoto:      &tg.PhotoEmpty{},
			ReadInboxMaxID: 10,
		}})
	mock.ExpectCall(idRange(250, 151)).
		ThenResult(&tg.MessagesChannelMessages{Messages: []tg.MessageClass{
			&tg.MessageEmpty{ID: 250},
			channelMessage(200, "older"),
			channelMessage(249, "newest"),
			&tg.MessageService{
				ID:     180,
				Date:   1700000180,
				PeerID: &tg.PeerChannel{ChannelID: scanChannel},
				Action: &tg.MessageActionChatEditTitle{Title: "Novels"},
			},
			channelMessage(170, "beyond the limit"),
		}})

	msgs, err := tr.FetchHistory(context.Background(), chat.HistoryRequest{
		Peer:  chat.Channel(scanChannel, 0),
		Limit: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{249, 200, 180}, messageIDs(msgs))
	assert.Equal(t, "newest", msgs[0].Text)
}

func TestFetchHistory_WalksDownToFirstMessage(t *testing.T) {
	tr, mock := newTestTransport(t)

	mock.ExpectCall(idRange(119, 20)).
		ThenResult(&tg.MessagesChannelMessages{Messages: []tg.MessageClass{
			channelMessage(100, "a"),
			channelMessage(50, "b"),
		}})
	mock.ExpectCall(idRange(19, 1)).
		ThenResult(&tg.MessagesChannelMessages{Messages: []tg.MessageClass{
			channelMessage(5, "c"),
		}})

	msgs, err := tr.FetchHistory(context.Background(), chat.HistoryRequest{
		Peer:     chat.Channel(scanChannel, 0),
		OffsetID: 120,
		Limit:    10,
	})
	require.NoError(t, err)
	// Fewer than Limit: the caller stops paging.
	assert.Equal(t, []int{100, 50, 5}, messageIDs(msgs))
}

func TestFetchHistory_KeepsOnlyTopicMessages(t *testing.T) {
	tr, mock := newTestTransport(t)

	other := topicMessage(20, 12)
	other.ReplyTo = &tg.MessageReplyHeader{ForumTopic: true, ReplyToMsgID: 12, ReplyToTopID: 9}
	mock.ExpectCall(idRange(30, 1)).
		ThenResult(&tg.MessagesChannelMessages{Messages: []tg.MessageClass{
			topicMessage(30, 7),
			other,
			channelMessage(10, "general"),
			topicMessage(8, 7),
		}})

	msgs, err := tr.FetchHistory(context.Background(), chat.HistoryRequest{
		Peer:     chat.Channel(scanChannel, 7),
		OffsetID: 31,
		Limit:    5,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{30, 8}, messageIDs(msgs))
}

func TestFetchHistory_NeedsAKnownMessage(t *testing.T) {
	tr, mock := newTestTransport(t)

	mock.ExpectCall(&tg.ChannelsGetFullChannelRequest{Channel: scanInput}).
		ThenResult(&tg.MessagesChatFull{FullChat: &tg.ChannelFull{ID: scanChannel, ChatPhoto: &tg.PhotoEmpty{}}})

	_, err := tr.FetchHistory(context.Background(), chat.HistoryRequest{
		Peer:  chat.Channel(scanChannel, 0),
		Limit: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message of channel 77 seen yet")
}

func TestFetchHistory_RejectsNonChannels(t *testing.T) {
	tr, _ := newTestTransport(t)

	_, err := tr.FetchHistory(context.Background(), chat.HistoryRequest{
		Peer:  chat.Peer{Kind: chat.PeerChat, ID: 3},
		Limit: 10,
	})
	assert.Error(t, err)
}

func TestHandleMessageObservesChannelIDs(t *testing.T) {
	b := &Bot{peers: NewPeerCache(), log: logger.New()}

	out := channelMessage(310, "outgoing")
	out.Out = true
	b.handleMessage(context.Background(), tg.Entities{}, out)
	b.handleMessage(context.Background(), tg.Entities{}, &tg.MessageEmpty{ID: 999})

	assert.Equal(t, 310, b.peers.latestMessage(scanChannel))
}
