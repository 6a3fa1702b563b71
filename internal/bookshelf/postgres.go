package bookshelf

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"authorkit/internal/config"
)

// PostgresStore implements Store on a hosted Postgres database.
type PostgresStore struct {
	db     *bun.DB
	logger *slog.Logger
}

// NewPostgresStore connects to Postgres and configures the pool.
func NewPostgresStore(cfg config.DatabaseConfig, debug bool, logger *slog.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("connected to bookshelf database",
		slog.Int("max_open_conns", cfg.MaxOpenConns))

	return &PostgresStore{
		db:     db,
		logger: logger.With(slog.String("component", "bookshelf_store")),
	}, nil
}

// EnsureSchema creates the bookshelf tables when missing. The
// subscriber uniqueness constraint is what makes concurrent duplicate
// signups safe.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bookshelf_sites (
			id BIGSERIAL PRIMARY KEY,
			site_url TEXT NOT NULL UNIQUE,
			site_name TEXT NOT NULL,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS bookshelf_books (
			id BIGSERIAL PRIMARY KEY,
			site_url TEXT NOT NULL,
			site_name TEXT,
			book_post_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			author TEXT,
			genres TEXT[],
			cover_url TEXT,
			buy_url TEXT,
			description TEXT,
			synced_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (site_url, book_post_id)
		)`,
		`CREATE TABLE IF NOT EXISTS bookshelf_subscribers (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL,
			site_url TEXT NOT NULL,
			site_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (email, site_url)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RegisterSite implements Store. Registration is idempotent: an
// existing site has its name refreshed.
func (s *PostgresStore) RegisterSite(ctx context.Context, siteURL, siteName string) (int64, error) {
	site := &Site{
		SiteURL:      siteURL,
		SiteName:     siteName,
		RegisteredAt: time.Now(),
		LastSeenAt:   time.Now(),
	}

	err := s.db.NewInsert().
		Model(site).
		On("CONFLICT (site_url) DO UPDATE").
		Set("site_name = EXCLUDED.site_name").
		Set("last_seen_at = EXCLUDED.last_seen_at").
		Returning("id").
		Scan(ctx, &site.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to register site: %w", err)
	}

	return site.ID, nil
}

// DeregisterSite implements Store.
func (s *PostgresStore) DeregisterSite(ctx context.Context, siteURL string) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*Book)(nil)).
		Where("site_url = ?", siteURL).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to remove site books: %w", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := s.db.NewDelete().
		Model((*Site)(nil)).
		Where("site_url = ?", siteURL).
		Exec(ctx); err != nil {
		return removed, fmt.Errorf("failed to deregister site: %w", err)
	}

	return removed, nil
}

// TouchSite implements Store.
func (s *PostgresStore) TouchSite(ctx context.Context, siteURL string, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*Site)(nil)).
		Set("last_seen_at = ?", at).
		Where("site_url = ?", siteURL).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to touch site: %w", err)
	}
	return nil
}

// UpsertBook implements Store.
func (s *PostgresStore) UpsertBook(ctx context.Context, book *Book) (int64, error) {
	book.Genres = ClampGenres(book.Genres)
	book.SyncedAt = time.Now()

	err := s.db.NewInsert().
		Model(book).
		On("CONFLICT (site_url, book_post_id) DO UPDATE").
		Set("site_name = EXCLUDED.site_name").
		Set("title = EXCLUDED.title").
		Set("author = EXCLUDED.author").
		Set("genres = EXCLUDED.genres").
		Set("cover_url = EXCLUDED.cover_url").
		Set("buy_url = EXCLUDED.buy_url").
		Set("description = EXCLUDED.description").
		Set("synced_at = EXCLUDED.synced_at").
		Returning("id").
		Scan(ctx, &book.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert book: %w", err)
	}

	return book.ID, nil
}

// RemoveBook implements Store.
func (s *PostgresStore) RemoveBook(ctx context.Context, siteURL string, bookPostID int64) error {
	_, err := s.db.NewDelete().
		Model((*Book)(nil)).
		Where("site_url = ?", siteURL).
		Where("book_post_id = ?", bookPostID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove book: %w", err)
	}
	return nil
}

// ListBooks implements Store.
func (s *PostgresStore) ListBooks(ctx context.Context, q ListQuery) ([]Book, Pagination, Stats, error) {
	var books []Book

	query := s.db.NewSelect().Model(&books)

	if q.Genre != "" {
		query = query.Where("? = ANY(genres)", q.Genre)
	}
	if q.Search != "" {
		pattern := "%" + strings.ToLower(q.Search) + "%"
		query = query.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				WhereOr("LOWER(title) LIKE ?", pattern).
				WhereOr("LOWER(author) LIKE ?", pattern)
		})
	}

	switch q.Sort {
	case SortTitle:
		query = query.Order("title ASC")
	case SortAuthor:
		query = query.Order("author ASC", "title ASC")
	default:
		query = query.Order("synced_at DESC")
	}

	total, err := query.Count(ctx)
	if err != nil {
		return nil, Pagination{}, Stats{}, fmt.Errorf("failed to count books: %w", err)
	}

	pagination := NewPagination(q.Page, q.Limit, total)

	err = query.
		Limit(pagination.Limit).
		Offset(pagination.Offset()).
		Scan(ctx)
	if err != nil {
		return nil, Pagination{}, Stats{}, fmt.Errorf("failed to list books: %w", err)
	}

	stats, err := s.stats(ctx)
	if err != nil {
		return nil, Pagination{}, Stats{}, err
	}

	if books == nil {
		books = []Book{}
	}
	return books, pagination, stats, nil
}

func (s *PostgresStore) stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.NewSelect().
		Model((*Book)(nil)).
		ColumnExpr("count(*) AS total_books").
		ColumnExpr("count(DISTINCT site_url) AS total_sites").
		ColumnExpr("count(DISTINCT g.genre) AS total_genres").
		Join("LEFT JOIN LATERAL unnest(genres) AS g(genre) ON true").
		Scan(ctx, &stats.TotalBooks, &stats.TotalSites, &stats.TotalGenres)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return stats, nil
}

// CountBooks implements Store.
func (s *PostgresStore) CountBooks(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*Book)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return count, nil
}

// AddSubscriber implements Store. The uniqueness conflict is the
// canonical already-subscribed signal (no pre-select).
func (s *PostgresStore) AddSubscriber(ctx context.Context, sub *Subscriber) (int64, bool, error) {
	sub.CreatedAt = time.Now()

	err := s.db.NewInsert().
		Model(sub).
		On("CONFLICT (email, site_url) DO NOTHING").
		Returning("id").
		Scan(ctx, &sub.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// DO NOTHING returns no row on conflict.
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to add subscriber: %w", err)
	}

	return sub.ID, false, nil
}
