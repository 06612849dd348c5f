package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecaka12/telegram-book-bot/internal/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
	Dev        bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Telegram novel catalog bot",
		Long: `Serves a catalog of PDF books over Telegram.

Administrators add books with a captioned cover photo followed by the PDF, or
import them from a channel's history with /scan. Users browse, search,
download and bookmark books and can subscribe to new-book notifications.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file (default $CONFIG_FILE)")
	cmd.PersistentFlags().BoolVar(&opts.Dev, "dev", false, "development mode: debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Logger.Err(err).Error("bot stopped with error")
		cancel()
		os.Exit(1)
	}
}
