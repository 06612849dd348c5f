package users

import (
	"context"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	golog "github.com/robinjoseph08/golib/logger"
)

// CreateTableUsers creates the per-user collections: download counters,
// bookmark sets and the subscriber set.
func CreateTableUsers(ctx context.Context, pool *pgxpool.Pool) error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS user_downloads (
		user_id BIGINT PRIMARY KEY,
		count BIGINT NOT NULL DEFAULT 0 CHECK (count >= 0)
	);

	-- book_id is not a foreign key; readers tolerate dangling ids.
	CREATE TABLE IF NOT EXISTS bookmarks (
		user_id BIGINT NOT NULL,
		book_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, book_id)
	);

	CREATE TABLE IF NOT EXISTS subscribers (
		user_id BIGINT PRIMARY KEY,
		subscribed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := pool.Exec(ctx, createTableQuery)
	if err != nil {
		logger.Logger.Err(err).Error("failed to create user tables")
		return errors.Wrap(err, "create user tables")
	}

	logger.Logger.Info("tables ready", golog.Data{"table": "user_downloads, bookmarks, subscribers"})
	return nil
}

// UserRepository wraps the per-user tables.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// RecordDownload creates the counter at 1 or increments it in one statement.
func (r *UserRepository) RecordDownload(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `
	INSERT INTO user_downloads (user_id, count) VALUES ($1, 1)
	ON CONFLICT (user_id) DO UPDATE SET count = user_downloads.count + 1`, userID)
	return errors.Wrap(err, "record download")
}

func (r *UserRepository) AddBookmark(ctx context.Context, userID int64, bookID string) (catalog.BookmarkResult, error) {
	tag, err := r.pool.Exec(ctx, `
	INSERT INTO bookmarks (user_id, book_id) VALUES ($1, $2)
	ON CONFLICT DO NOTHING`, userID, bookID)
	if err != nil {
		return 0, errors.Wrap(err, "add bookmark")
	}
	if tag.RowsAffected() == 0 {
		return catalog.BookmarkAlreadyExists, nil
	}
	return catalog.BookmarkCreated, nil
}

func (r *UserRepository) UserStats(ctx context.Context, userID int64) (catalog.UserStats, error) {
	var stats catalog.UserStats

	err := r.pool.QueryRow(ctx, `
	SELECT COALESCE((SELECT count FROM user_downloads WHERE user_id = $1), 0)`, userID).Scan(&stats.Downloads)
	if err != nil {
		return stats, errors.Wrap(err, "read download counter")
	}

	// Numeric ids sort numerically; anything else follows.
	rows, err := r.pool.Query(ctx, `
	SELECT book_id FROM bookmarks WHERE user_id = $1
	ORDER BY (book_id ~ '^[0-9]+$') DESC,
		CASE WHEN book_id ~ '^[0-9]+$' THEN book_id::numeric END,
		book_id`, userID)
	if err != nil {
		return stats, errors.Wrap(err, "read bookmarks")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return stats, errors.Wrap(err, "scan bookmark")
		}
		stats.Bookmarks = append(stats.Bookmarks, id)
	}
	return stats, errors.WithStack(rows.Err())
}

func (r *UserRepository) Subscribe(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO subscribers (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
	return errors.Wrap(err, "subscribe")
}

func (r *UserRepository) Unsubscribe(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM subscribers WHERE user_id = $1`, userID)
	return errors.Wrap(err, "unsubscribe")
}

func (r *UserRepository) Subscribers(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM subscribers ORDER BY user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list subscribers")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan subscriber")
		}
		ids = append(ids, id)
	}
	return ids, errors.WithStack(rows.Err())
}
