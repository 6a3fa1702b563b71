package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"authorkit/internal/bookshelf"
	apierrors "authorkit/internal/errors"
	"authorkit/internal/security"
)

// List pagination bounds.
const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// BookshelfHandler handles the cross-site book catalog endpoints.
type BookshelfHandler struct {
	store       bookshelf.Store
	development bool
	logger      *slog.Logger
}

// NewBookshelfHandler creates a bookshelf handler.
func NewBookshelfHandler(store bookshelf.Store, development bool, logger *slog.Logger) *BookshelfHandler {
	return &BookshelfHandler{
		store:       store,
		development: development,
		logger:      logger.With(slog.String("handler", "bookshelf")),
	}
}

var registerSiteSchema = security.Schema{
	"site_url":  {Type: security.TypeURL, Required: true},
	"site_name": {Type: security.TypeString, Required: true, MaxLength: 200},
}

var deregisterSiteSchema = security.Schema{
	"site_url": {Type: security.TypeURL, Required: true},
}

var removeBookSchema = security.Schema{
	"site_url":     {Type: security.TypeURL, Required: true},
	"book_post_id": {Type: security.TypeString, Required: true, MaxLength: 20},
}

var emailCaptureSchema = security.Schema{
	"email":     {Type: security.TypeEmail, Required: true},
	"site_url":  {Type: security.TypeURL, Required: true},
	"site_name": {Type: security.TypeString, Required: true, MaxLength: 200},
}

// RegisterSite handles POST /api/bookshelf/register.
func (h *BookshelfHandler) RegisterSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := registerSiteSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}

	siteID, err := h.store.RegisterSite(ctx, result.Data["site_url"], result.Data["site_name"])
	if err != nil {
		h.renderStoreFailure(w, r, "register_site", err)
		return
	}

	h.logger.InfoContext(ctx, "site registered",
		slog.String("site_url", result.Data["site_url"]),
		slog.Int64("site_id", siteID),
	)
	render.JSON(w, r, map[string]any{
		"success": true,
		"site_id": siteID,
	})
}

// DeregisterSite handles POST /api/bookshelf/deregister. Removes the
// site and everything it synced.
func (h *BookshelfHandler) DeregisterSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := deregisterSiteSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}

	booksRemoved, err := h.store.DeregisterSite(ctx, result.Data["site_url"])
	if err != nil {
		h.renderStoreFailure(w, r, "deregister_site", err)
		return
	}

	h.logger.InfoContext(ctx, "site deregistered",
		slog.String("site_url", result.Data["site_url"]),
		slog.Int64("books_removed", booksRemoved),
	)
	render.JSON(w, r, map[string]any{
		"success":       true,
		"books_removed": booksRemoved,
	})
}

// syncBookRequest is the sync payload. Genres arrive as a JSON array
// and are clamped rather than schema-validated.
type syncBookRequest struct {
	SiteURL     string   `json:"site_url"`
	SiteName    string   `json:"site_name"`
	BookPostID  int64    `json:"book_post_id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Genres      []string `json:"genres"`
	CoverURL    string   `json:"cover_url"`
	BuyURL      string   `json:"buy_url"`
	Description string   `json:"description"`
}

var syncBookSchema = security.Schema{
	"site_url":     {Type: security.TypeURL, Required: true},
	"site_name":    {Type: security.TypeString, Required: true, MaxLength: 200},
	"book_post_id": {Type: security.TypeString, Required: true, MaxLength: 20},
	"title":        {Type: security.TypeString, Required: true, MaxLength: 300},
	"author":       {Type: security.TypeString, MaxLength: 200},
	"cover_url":    {Type: security.TypeString, MaxLength: 500},
	"buy_url":      {Type: security.TypeString, MaxLength: 500},
	"description":  {Type: security.TypeString, MaxLength: 2000},
}

// SyncBook handles POST /api/bookshelf/sync. Re-syncs of the same
// (site, post) pair update the stored book in place.
func (h *BookshelfHandler) SyncBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	var req syncBookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}

	result := syncBookSchema.Validate(map[string]string{
		"site_url":     req.SiteURL,
		"site_name":    req.SiteName,
		"book_post_id": formatPostID(req.BookPostID),
		"title":        req.Title,
		"author":       req.Author,
		"cover_url":    req.CoverURL,
		"buy_url":      req.BuyURL,
		"description":  req.Description,
	})
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}

	book := &bookshelf.Book{
		SiteURL:     result.Data["site_url"],
		SiteName:    result.Data["site_name"],
		BookPostID:  req.BookPostID,
		Title:       result.Data["title"],
		Author:      result.Data["author"],
		Genres:      bookshelf.ClampGenres(req.Genres),
		CoverURL:    result.Data["cover_url"],
		BuyURL:      result.Data["buy_url"],
		Description: result.Data["description"],
		SyncedAt:    time.Now().UTC(),
	}

	bookID, err := h.store.UpsertBook(ctx, book)
	if err != nil {
		h.renderStoreFailure(w, r, "sync_book", err)
		return
	}

	if err := h.store.TouchSite(ctx, book.SiteURL, book.SyncedAt); err != nil {
		// Keepalive bookkeeping must not fail the sync.
		h.logger.WarnContext(ctx, "failed to touch site",
			slog.String("site_url", book.SiteURL),
			slog.String("error", err.Error()),
		)
	}

	h.logger.InfoContext(ctx, "book synced",
		slog.String("site_url", book.SiteURL),
		slog.Int64("book_post_id", book.BookPostID),
		slog.Int64("book_id", bookID),
	)
	render.JSON(w, r, map[string]any{
		"success": true,
		"book_id": bookID,
	})
}

// RemoveBook handles POST /api/bookshelf/remove.
func (h *BookshelfHandler) RemoveBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := removeBookSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}
	postID, err := strconv.ParseInt(result.Data["book_post_id"], 10, 64)
	if err != nil || postID <= 0 {
		renderValidationErrors(w, r, []string{"book_post_id must be a positive integer"})
		return
	}

	if err := h.store.RemoveBook(ctx, result.Data["site_url"], postID); err != nil {
		h.renderStoreFailure(w, r, "remove_book", err)
		return
	}

	h.logger.InfoContext(ctx, "book removed",
		slog.String("site_url", result.Data["site_url"]),
		slog.Int64("book_post_id", postID),
	)
	render.JSON(w, r, map[string]any{
		"success": true,
	})
}

// ListBooks handles GET /api/bookshelf/books.
func (h *BookshelfHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := parseListQuery(r)

	books, pagination, stats, err := h.store.ListBooks(ctx, q)
	if err != nil {
		h.renderStoreFailure(w, r, "list_books", err)
		return
	}

	render.JSON(w, r, map[string]any{
		"success":    true,
		"books":      books,
		"pagination": pagination,
		"stats":      stats,
	})
}

// EmailCapture handles POST /api/email-capture. Duplicate signups
// collapse at the storage uniqueness constraint.
func (h *BookshelfHandler) EmailCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := emailCaptureSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}

	id, alreadySubscribed, err := h.store.AddSubscriber(ctx, &bookshelf.Subscriber{
		Email:    result.Data["email"],
		SiteURL:  result.Data["site_url"],
		SiteName: result.Data["site_name"],
	})
	if err != nil {
		h.renderStoreFailure(w, r, "email_capture", err)
		return
	}

	if alreadySubscribed {
		render.JSON(w, r, map[string]any{
			"success":            true,
			"already_subscribed": true,
		})
		return
	}

	h.logger.InfoContext(ctx, "subscriber added",
		slog.String("site_url", result.Data["site_url"]),
		slog.Int64("subscriber_id", id),
	)
	render.JSON(w, r, map[string]any{
		"success":       true,
		"subscriber_id": id,
	})
}

// Keepalive handles GET /api/bookshelf/keepalive. Plugins poll it to
// keep hosted databases from idling out, so it runs one cheap query.
func (h *BookshelfHandler) Keepalive(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountBooks(r.Context())
	if err != nil {
		h.renderStoreFailure(w, r, "keepalive", err)
		return
	}

	render.JSON(w, r, map[string]any{
		"success":     true,
		"books_count": count,
	})
}

func (h *BookshelfHandler) renderStoreFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "bookshelf store failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	renderAPIError(w, r, apierrors.Internal(err, h.development))
}

func parseListQuery(r *http.Request) bookshelf.ListQuery {
	values := r.URL.Query()

	page, _ := strconv.Atoi(values.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(values.Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	sort := values.Get("sort")
	switch sort {
	case bookshelf.SortTitle, bookshelf.SortAuthor:
	default:
		sort = bookshelf.SortNewest
	}

	return bookshelf.ListQuery{
		Genre:  values.Get("genre"),
		Search: values.Get("search"),
		Page:   page,
		Limit:  limit,
		Sort:   sort,
	}
}

func formatPostID(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
