// Package bookshelf persists the cross-site book catalog: registered
// sites, their synced books, and email subscribers.
package bookshelf

import (
	"time"

	"github.com/uptrace/bun"
)

// Site is a WordPress site registered with the bookshelf network.
type Site struct {
	bun.BaseModel `bun:"table:bookshelf_sites,alias:s"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	SiteURL      string    `bun:"site_url,unique,notnull" json:"site_url"`
	SiteName     string    `bun:"site_name,notnull" json:"site_name"`
	RegisteredAt time.Time `bun:"registered_at,notnull,default:current_timestamp" json:"registered_at"`
	LastSeenAt   time.Time `bun:"last_seen_at,notnull,default:current_timestamp" json:"last_seen_at"`
}

// Book is one synced book. A book is identified by its origin site and
// the post ID it has there, so re-syncs update in place.
type Book struct {
	bun.BaseModel `bun:"table:bookshelf_books,alias:b"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	SiteURL     string    `bun:"site_url,notnull" json:"site_url"`
	SiteName    string    `bun:"site_name" json:"site_name"`
	BookPostID  int64     `bun:"book_post_id,notnull" json:"book_post_id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Author      string    `bun:"author" json:"author,omitempty"`
	Genres      []string  `bun:"genres,array" json:"genres,omitempty"`
	CoverURL    string    `bun:"cover_url" json:"cover_url,omitempty"`
	BuyURL      string    `bun:"buy_url" json:"buy_url,omitempty"`
	Description string    `bun:"description" json:"description,omitempty"`
	SyncedAt    time.Time `bun:"synced_at,notnull,default:current_timestamp" json:"synced_at"`
}

// Subscriber is one captured email signup. UNIQUE(email, site_url) is
// the duplicate-detection path: concurrent identical signups collapse
// at the constraint, not at a racy pre-check.
type Subscriber struct {
	bun.BaseModel `bun:"table:bookshelf_subscribers,alias:sub"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Email     string    `bun:"email,notnull" json:"email"`
	SiteURL   string    `bun:"site_url,notnull" json:"site_url"`
	SiteName  string    `bun:"site_name" json:"site_name"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// MaxGenresPerBook caps the genres stored for one book.
const MaxGenresPerBook = 2

// ClampGenres trims empty entries and enforces MaxGenresPerBook.
func ClampGenres(genres []string) []string {
	out := make([]string, 0, MaxGenresPerBook)
	for _, g := range genres {
		if g == "" {
			continue
		}
		out = append(out, g)
		if len(out) == MaxGenresPerBook {
			break
		}
	}
	return out
}
