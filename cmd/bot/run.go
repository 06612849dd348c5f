package main

import (
	"context"
	"time"

	bookinfo "github.com/ecaka12/telegram-book-bot/bookInfo"
	"github.com/ecaka12/telegram-book-bot/internal/access"
	"github.com/ecaka12/telegram-book-bot/internal/bot"
	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/chat"
	"github.com/ecaka12/telegram-book-bot/internal/config"
	"github.com/ecaka12/telegram-book-bot/internal/logger"
	"github.com/ecaka12/telegram-book-bot/internal/middleware"
	"github.com/ecaka12/telegram-book-bot/internal/notify"
	"github.com/ecaka12/telegram-book-bot/internal/reconcile"
	"github.com/ecaka12/telegram-book-bot/internal/repository/memory"
	"github.com/ecaka12/telegram-book-bot/internal/repository/postgres"
	"github.com/ecaka12/telegram-book-bot/internal/services"
	"github.com/ecaka12/telegram-book-bot/internal/session"
	"github.com/ecaka12/telegram-book-bot/internal/tasks"
	"github.com/ecaka12/telegram-book-bot/internal/upload"
	tdsession "github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	golib "github.com/robinjoseph08/golib/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "run",
		Short:        "Connect to Telegram and serve updates (default)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create the PostgreSQL catalog tables",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			log := logger.SetupLogger(cfg.LogLevel, opts.Dev)
			if cfg.DatabaseURL == "" {
				return errors.New("missing required config: database_url")
			}
			pool, err := postgres.Setup(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			pool.Close()
			log.Info("migrations applied")
			return nil
		},
	}
}

// openStore picks PostgreSQL when database_url is set, else the in-memory
// store.
func openStore(cfg *config.Config, log golib.Logger) (catalog.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("database_url not set, catalog is kept in memory")
		return memory.NewStore(), func() {}, nil
	}
	pool, err := postgres.Setup(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(pool), pool.Close, nil
}

// openSessions picks Redis when redis_addr is set. The in-memory table is
// returned as the second value so the caller can run its sweeper.
func openSessions(ctx context.Context, cfg *config.Config) (session.Table, *session.MemoryTable, func(), error) {
	if cfg.RedisAddr == "" {
		mem := session.NewMemoryTable(cfg.SessionTTL)
		return mem, mem, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, errors.Wrap(err, "connect to redis")
	}
	return session.NewRedisTable(client, cfg.SessionTTL), nil, func() { _ = client.Close() }, nil
}

func runBot(ctx context.Context, opts *rootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg.LogLevel, opts.Dev)
	if opts.Dev {
		log.Debug("development mode")
	}
	if err := cfg.ValidateTransport(); err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, sweeper, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	dispatcher := tg.NewUpdateDispatcher()
	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		UpdateHandler: dispatcher,
		Middlewares: []telegram.Middleware{
			middleware.LoggingMiddleware(log),
		},
		SessionStorage: &tdsession.FileStorage{
			Path: cfg.SessionPath,
		},
	})

	peers := bot.NewPeerCache()
	transport := bot.NewTransport(client.API(), peers, log)

	var group chat.Peer
	if cfg.GroupChatID != 0 {
		group = chat.Channel(cfg.GroupChatID, 0)
	}
	checker := access.NewChecker(cfg.AdminIDs, transport, group)
	parser := bookinfo.Parser{DefaultAuthor: cfg.DefaultAuthor, DefaultCategory: cfg.DefaultCategory}

	var announce chat.Peer
	if cfg.GroupChatID != 0 {
		announce = chat.Channel(cfg.GroupChatID, cfg.AnnounceTopicID)
	}
	notifier := notify.New(store, transport, announce, cfg.NotifyDelay, log)

	g, gctx := errgroup.WithContext(ctx)
	registry := tasks.NewRegistry(gctx, log)

	uploads := upload.NewFlow(store, sessions, checker, parser, log)
	uploads.OnCommit = func(book catalog.Book) {
		registry.Go(tasks.KindFanout, book.AddedBy, func(ctx context.Context) error {
			_, err := notifier.Notify(ctx, book)
			return err
		})
	}

	var scanner *reconcile.Reconciler
	if cfg.ScanChannelID != 0 {
		scanner = reconcile.New(transport, store, parser, reconcile.Config{
			Source:        chat.Channel(cfg.ScanChannelID, cfg.ScanTopicID),
			PageSize:      cfg.ScanPageSize,
			PageDelay:     cfg.ScanPageDelay,
			PairingWindow: cfg.PairingWindow,
		}, log)
		scanner.OnAdded = func(ctx context.Context, book catalog.Book) {
			if _, err := notifier.Notify(ctx, book); err != nil {
				log.Err(err).Warn("fanout for scanned book stopped", golib.Data{"book_id": book.ID})
			}
		}
	}

	router := bot.NewRouter(bot.RouterDeps{
		Out:       transport,
		Books:     services.NewBookService(store, transport, cfg.ListPageSize, cfg.TopDefault, log),
		Uploads:   uploads,
		Scanner:   scanner,
		Tasks:     registry,
		Admins:    checker,
		ScanLimit: cfg.ScanDefaultLimit,
		Log:       log,
	})
	app := bot.New(client, dispatcher, peers, router, cfg.BotToken, log)

	log.Info("starting bot", golib.Data{"admins": len(cfg.AdminIDs), "scan_enabled": scanner != nil})

	g.Go(func() error {
		return app.Start(gctx)
	})
	if sweeper != nil {
		g.Go(func() error {
			return sweeper.RunSweeper(gctx, cfg.SessionSweepInterval, func(removed int) {
				log.Debug("expired upload sessions removed", golib.Data{"count": removed})
			})
		})
	}

	err = g.Wait()
	registry.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("bot stopped")
	return err
}
