package bot

import (
	"context"

	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Bot owns the MTProto client and feeds its updates to the router.
type Bot struct {
	client     *telegram.Client
	dispatcher tg.UpdateDispatcher
	peers      *PeerCache
	router     *Router
	token      string
	log        logger.Logger
}

func New(client *telegram.Client, dispatcher tg.UpdateDispatcher, peers *PeerCache, router *Router, token string, log logger.Logger) *Bot {
	return &Bot{
		client:     client,
		dispatcher: dispatcher,
		peers:      peers,
		router:     router,
		token:      token,
		log:        log,
	}
}

// Start connects, logs in with the bot token unless the stored session is
// already authorized, and serves updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.registerHandlers()

	return b.client.Run(ctx, func(ctx context.Context) error {
		status, err := b.client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}

		if !status.Authorized {
			b.log.Info("authorizing bot")
			if _, err := b.client.Auth().Bot(ctx, b.token); err != nil {
				return errors.Wrap(err, "bot auth")
			}
			b.log.Info("authorized, session saved")
		} else {
			b.log.Info("using stored session")
		}

		<-ctx.Done()
		return ctx.Err()
	})
}

func (b *Bot) registerHandlers() {
	b.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
		b.handleMessage(ctx, e, update.Message)
		return nil
	})
	b.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
		b.handleMessage(ctx, e, update.Message)
		return nil
	})
	b.dispatcher.OnBotCallbackQuery(b.handleCallback)
}

func (b *Bot) handleMessage(ctx context.Context, e tg.Entities, m tg.MessageClass) {
	b.peers.Apply(e)
	if nm, ok := m.AsNotEmpty(); ok {
		if p, ok := nm.GetPeerID().(*tg.PeerChannel); ok {
			b.peers.ObserveMessage(p.ChannelID, nm.GetID())
		}
	}

	msg, ok := m.(*tg.Message)
	if !ok || msg.Out {
		return
	}
	from, ok := senderID(msg)
	if !ok {
		return
	}
	to, ok := chatOf(msg)
	if !ok {
		return
	}

	b.router.HandleMessage(ctx, Incoming{
		From:    from,
		Chat:    to,
		Private: to.Kind == chat.PeerUser,
		Message: convertMessage(msg, b.peers),
	})
}

func (b *Bot) handleCallback(ctx context.Context, e tg.Entities, update *tg.UpdateBotCallbackQuery) error {
	b.peers.Apply(e)

	var to chat.Peer
	switch p := update.Peer.(type) {
	case *tg.PeerUser:
		to = chat.User(p.UserID)
	case *tg.PeerChat:
		to = chat.Peer{Kind: chat.PeerChat, ID: p.ChatID}
	case *tg.PeerChannel:
		to = chat.Channel(p.ChannelID, 0)
	default:
		return nil
	}

	notice := b.router.HandleCallback(ctx, Callback{
		From:      update.UserID,
		Chat:      to,
		MessageID: update.MsgID,
		Data:      string(update.Data),
	})
	return b.answerCallback(ctx, update.QueryID, notice)
}

// answerCallback stops the client's loading indicator on the button.
func (b *Bot) answerCallback(ctx context.Context, queryID int64, text string) error {
	_, err := b.client.API().MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
		Message: text,
	})
	return errors.Wrap(err, "answer callback")
}
