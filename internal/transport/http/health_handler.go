package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"authorkit/internal/bookshelf"
	"authorkit/internal/license"
)

// HealthHandler reports service health: database reachability and
// provider configuration state.
type HealthHandler struct {
	store  bookshelf.Store
	client *license.Client
	logger *slog.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(store bookshelf.Store, client *license.Client, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		client: client,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// Healthz handles GET /api/healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	database := "ok"
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "database ping failed",
			slog.String("error", err.Error()))
		database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	render.Status(r, status)
	render.JSON(w, r, map[string]any{
		"status":              statusWord(status),
		"database":            database,
		"provider_configured": h.client.Configured(),
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "healthy"
	}
	return "degraded"
}
