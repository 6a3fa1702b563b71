package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authorkit/internal/security"
	"authorkit/internal/webhook"
)

func newWebhookHandler(strict bool) (*WebhookHandler, *security.WebhookVerifier) {
	verifier := security.NewWebhookVerifier("hook-secret", strict, testLogger())
	dispatcher := webhook.NewDispatcher(testLogger())
	return NewWebhookHandler(verifier, dispatcher, testLogger()), verifier
}

func postWebhook(handler *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/provider", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.Receive(rec, req)
	return rec
}

func TestWebhookReceive(t *testing.T) {
	body := `{"meta":{"event_name":"order_created"},"data":{"order_id":991}}`

	t.Run("signed event acknowledged", func(t *testing.T) {
		handler, verifier := newWebhookHandler(true)
		rec := postWebhook(handler, body, verifier.Sign([]byte(body)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"received":true`)
		assert.Contains(t, rec.Body.String(), `"event":"order_created"`)
	})

	t.Run("unknown event still acknowledged", func(t *testing.T) {
		unknown := `{"meta":{"event_name":"affiliate_activated"},"data":{}}`
		handler, verifier := newWebhookHandler(true)
		rec := postWebhook(handler, unknown, verifier.Sign([]byte(unknown)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"event":"affiliate_activated"`)
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		handler, verifier := newWebhookHandler(true)
		rec := postWebhook(handler, body, verifier.Sign([]byte(body+" ")))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
	})

	t.Run("missing signature rejected in strict mode", func(t *testing.T) {
		handler, _ := newWebhookHandler(true)
		rec := postWebhook(handler, body, "")

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing signature allowed in relaxed mode", func(t *testing.T) {
		handler, _ := newWebhookHandler(false)
		rec := postWebhook(handler, body, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"received":true`)
	})

	t.Run("signed but malformed body rejected", func(t *testing.T) {
		malformed := `{"data": "no event name"}`
		handler, verifier := newWebhookHandler(true)
		rec := postWebhook(handler, malformed, verifier.Sign([]byte(malformed)))

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		handler := NewHealthHandler(newFakeStore(), newLicenseHandler(t, "http://provider.test").client, testLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
		rec := httptest.NewRecorder()
		handler.Healthz(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
		assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	})

	t.Run("database down", func(t *testing.T) {
		store := newFakeStore()
		store.failWith = assert.AnError
		handler := NewHealthHandler(store, newLicenseHandler(t, "http://provider.test").client, testLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
		rec := httptest.NewRecorder()
		handler.Healthz(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"database":"unreachable"`)
	})
}
