package books

import (
	"context"

	"github.com/ecaka12/telegram-book-bot/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	golog "github.com/robinjoseph08/golib/logger"
)

// CreateTables creates the books table and its id sequence if missing.
func CreateTables(ctx context.Context, pool *pgxpool.Pool) error {
	createTableQuery := `
	CREATE SEQUENCE IF NOT EXISTS book_seq;

	CREATE TABLE IF NOT EXISTS books (
		seq BIGINT PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		category TEXT NOT NULL,
		file_ref TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		cover_ref TEXT,
		downloads BIGINT NOT NULL DEFAULT 0 CHECK (downloads >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		source_message_id BIGINT,
		added_by BIGINT NOT NULL DEFAULT 0,
		CONSTRAINT books_file_ref_key UNIQUE (file_ref)
	);

	CREATE INDEX IF NOT EXISTS idx_books_downloads ON books(downloads DESC, seq);
	`

	_, err := pool.Exec(ctx, createTableQuery)
	if err != nil {
		logger.Logger.Err(err).Error("failed to create books table")
		return errors.Wrap(err, "create books table")
	}

	logger.Logger.Info("tables ready", golog.Data{"table": "books"})
	return nil
}
