package postgres

import (
	"context"
	"time"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/ecaka12/telegram-book-bot/internal/logger"
	"github.com/ecaka12/telegram-book-bot/internal/repository/postgres/books"
	"github.com/ecaka12/telegram-book-bot/internal/repository/postgres/users"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// InitDB creates and verifies a connection pool.
func InitDB(databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	logger.Logger.Info("database connection established")
	return pool, nil
}

// Migrate creates every catalog table that does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := books.CreateTables(ctx, pool); err != nil {
		return err
	}
	return users.CreateTableUsers(ctx, pool)
}

// Setup opens the pool and creates the tables.
func Setup(databaseURL string) (*pgxpool.Pool, error) {
	pool, err := InitDB(databaseURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Store is the PostgreSQL catalog.Store.
type Store struct {
	*books.BookRepository
	*users.UserRepository
}

var _ catalog.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		BookRepository: books.NewBookRepository(pool),
		UserRepository: users.NewUserRepository(pool),
	}
}
