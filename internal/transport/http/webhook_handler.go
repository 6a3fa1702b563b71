package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "authorkit/internal/errors"
	"authorkit/internal/security"
	"authorkit/internal/webhook"
)

// SignatureHeader carries the provider's hex HMAC of the raw body.
const SignatureHeader = "X-Signature"

// WebhookHandler receives payment-provider event notifications.
type WebhookHandler struct {
	verifier   *security.WebhookVerifier
	dispatcher *webhook.Dispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(verifier *security.WebhookVerifier, dispatcher *webhook.Dispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("handler", "webhook")),
	}
}

// providerEvent is the provider's notification envelope.
type providerEvent struct {
	Meta struct {
		EventName string `json:"event_name"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// Receive handles POST /api/webhooks/provider. The raw body is
// captured before any JSON parsing so the signature is computed over
// the exact bytes the provider signed.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}

	if err := h.verifier.Verify(ctx, rawBody, r.Header.Get(SignatureHeader)); err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidSignature)
		return
	}

	var event providerEvent
	if err := json.Unmarshal(rawBody, &event); err != nil || event.Meta.EventName == "" {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}

	if err := h.dispatcher.Dispatch(ctx, webhook.Event{
		Name: event.Meta.EventName,
		Data: event.Data,
	}); err != nil {
		h.logger.ErrorContext(ctx, "webhook processing failed",
			slog.String("event", event.Meta.EventName),
			slog.String("error", err.Error()),
		)
		renderAPIError(w, r, apierrors.ErrInternalServer)
		return
	}

	render.JSON(w, r, map[string]any{
		"received": true,
		"event":    event.Meta.EventName,
	})
}
