package books

import (
	"context"
	"strconv"
	"strings"

	"github.com/ecaka12/telegram-book-bot/internal/catalog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	uniqueViolation  = "23505"
	fileRefUniqueKey = "books_file_ref_key"
)

// BookRepository wraps the books table.
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository creates a repository over pool.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

// NextID draws from book_seq, so concurrent callers never share an id.
func (r *BookRepository) NextID(ctx context.Context) (string, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('book_seq')`).Scan(&n); err != nil {
		return "", errors.Wrap(err, "next book id")
	}
	return strconv.FormatInt(n, 10), nil
}

func (r *BookRepository) Insert(ctx context.Context, b catalog.Book) error {
	seq, err := strconv.ParseInt(b.ID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "book id %q is not numeric", b.ID)
	}

	query := `
	INSERT INTO books (seq, id, title, author, category, file_ref, file_name, file_size,
		cover_ref, downloads, created_at, source_message_id, added_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9::text, ''), $10, $11, NULLIF($12::bigint, 0), $13)`

	_, err = r.pool.Exec(ctx, query,
		seq,
		b.ID,
		b.Title,
		b.Author,
		b.Category,
		b.FileRef,
		b.FileName,
		b.FileSize,
		b.CoverRef,
		b.Downloads,
		b.CreatedAt,
		int64(b.SourceMessageID),
		b.AddedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == fileRefUniqueKey {
			return errors.WithStack(catalog.ErrDuplicateFile)
		}
		return errors.Wrap(err, "insert book")
	}
	return nil
}

func (r *BookRepository) IncrementDownloads(ctx context.Context, id string) error {
	sqlQuery := `
	UPDATE books
	SET downloads = downloads + 1
	WHERE id = $1
	`

	commandTag, err := r.pool.Exec(ctx, sqlQuery, id)
	if err != nil {
		return errors.Wrap(err, "increment downloads")
	}

	if commandTag.RowsAffected() == 0 {
		return errors.WithStack(catalog.ErrNotFound)
	}

	return nil
}

func (r *BookRepository) FindByID(ctx context.Context, id string) (catalog.Book, error) {
	return r.findOne(ctx, `SELECT `+columns+` FROM books WHERE id = $1`, id)
}

func (r *BookRepository) FindByFile(ctx context.Context, fileRef string) (catalog.Book, error) {
	return r.findOne(ctx, `SELECT `+columns+` FROM books WHERE file_ref = $1`, fileRef)
}

func (r *BookRepository) ListAll(ctx context.Context) ([]catalog.Book, error) {
	return r.query(ctx, `SELECT `+columns+` FROM books ORDER BY seq`)
}

// Search matches keyword as a literal substring of title or author.
func (r *BookRepository) Search(ctx context.Context, keyword string) ([]catalog.Book, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}

	sqlQuery := `SELECT ` + columns + `
	FROM books
	WHERE title ILIKE '%' || $1 || '%'
	OR author ILIKE '%' || $1 || '%'
	ORDER BY seq`

	return r.query(ctx, sqlQuery, escapeLike(keyword))
}

func (r *BookRepository) TopByDownloads(ctx context.Context, n int) ([]catalog.Book, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+columns+` FROM books ORDER BY downloads DESC, seq LIMIT $1`, n)
}

func (r *BookRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count books")
	}
	return n, nil
}

func (r *BookRepository) findOne(ctx context.Context, sqlQuery string, args ...any) (catalog.Book, error) {
	b, err := scanBook(r.pool.QueryRow(ctx, sqlQuery, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Book{}, errors.WithStack(catalog.ErrNotFound)
		}
		return catalog.Book{}, errors.Wrap(err, "find book")
	}
	return b, nil
}

func (r *BookRepository) query(ctx context.Context, sqlQuery string, args ...any) ([]catalog.Book, error) {
	rows, err := r.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query books")
	}
	defer rows.Close()

	var books []catalog.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan book")
		}
		books = append(books, b)
	}

	return books, errors.WithStack(rows.Err())
}

// scanBook reads one row selected with columns. The order must match.
func scanBook(row pgx.Row) (catalog.Book, error) {
	var (
		b      catalog.Book
		source int64
	)
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Category,
		&b.FileRef, &b.FileName, &b.FileSize,
		&b.CoverRef,
		&b.Downloads, &b.CreatedAt,
		&source,
		&b.AddedBy,
	)
	b.SourceMessageID = int(source)
	return b, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
