package bookshelf

import (
	"context"
	"time"
)

// ListQuery filters and pages the public books listing.
type ListQuery struct {
	Genre  string
	Search string
	Page   int
	Limit  int
	Sort   string
}

// Sort orders accepted by ListBooks.
const (
	SortNewest = "newest"
	SortTitle  = "title"
	SortAuthor = "author"
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination computes page bounds for a total row count.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// Offset returns the row offset of the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Stats aggregates the catalog for the listing response.
type Stats struct {
	TotalBooks  int `json:"total_books"`
	TotalSites  int `json:"total_sites"`
	TotalGenres int `json:"total_genres"`
}

// Store is the persistence boundary the handlers depend on. The
// Postgres implementation is the production store; tests substitute a
// fake.
type Store interface {
	// RegisterSite upserts a site by URL and returns its ID.
	RegisterSite(ctx context.Context, siteURL, siteName string) (int64, error)
	// DeregisterSite removes a site and its books, returning the
	// number of books removed.
	DeregisterSite(ctx context.Context, siteURL string) (int64, error)
	// TouchSite records sync activity for keepalive bookkeeping.
	TouchSite(ctx context.Context, siteURL string, at time.Time) error

	// UpsertBook inserts or updates a book identified by
	// (site_url, book_post_id) and returns its ID.
	UpsertBook(ctx context.Context, book *Book) (int64, error)
	// RemoveBook deletes one book by its origin identity.
	RemoveBook(ctx context.Context, siteURL string, bookPostID int64) error
	// ListBooks returns one page of books with pagination and stats.
	ListBooks(ctx context.Context, q ListQuery) ([]Book, Pagination, Stats, error)
	// CountBooks returns the catalog size, used by keepalive.
	CountBooks(ctx context.Context) (int, error)

	// AddSubscriber inserts a signup; alreadySubscribed reports a
	// uniqueness conflict on (email, site_url).
	AddSubscriber(ctx context.Context, sub *Subscriber) (id int64, alreadySubscribed bool, err error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error
}
