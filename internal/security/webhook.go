package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
)

// Webhook verification errors.
var (
	ErrSignatureMissing = errors.New("webhook signature missing")
	ErrSignatureInvalid = errors.New("webhook signature mismatch")
)

// WebhookVerifier authenticates inbound payment-provider events by
// recomputing an HMAC-SHA256 over the untouched raw request body. The
// caller must capture the body before any JSON parsing touches it.
type WebhookVerifier struct {
	secret []byte
	strict bool
	logger *slog.Logger
}

// NewWebhookVerifier creates a verifier. strict controls the
// missing-signature policy: reject in production, allow through in
// development. Relaxed mode is a documented risk, not a feature, and
// every decision emits an audit log either way.
func NewWebhookVerifier(secret string, strict bool, logger *slog.Logger) *WebhookVerifier {
	return &WebhookVerifier{
		secret: []byte(secret),
		strict: strict,
		logger: logger.With(slog.String("component", "webhook_verifier")),
	}
}

// Verify checks the header-supplied signature against the raw body.
func (v *WebhookVerifier) Verify(ctx context.Context, rawBody []byte, signature string) error {
	if signature == "" {
		if v.strict {
			v.logger.WarnContext(ctx, "webhook rejected: signature missing",
				slog.String("event_type", "webhook_auth"),
				slog.Int("body_bytes", len(rawBody)),
			)
			return ErrSignatureMissing
		}
		v.logger.WarnContext(ctx, "webhook accepted without signature in relaxed mode",
			slog.String("event_type", "webhook_auth"),
			slog.Int("body_bytes", len(rawBody)),
		)
		return nil
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		v.logger.WarnContext(ctx, "webhook rejected: signature mismatch",
			slog.String("event_type", "webhook_auth"),
			slog.Int("body_bytes", len(rawBody)),
		)
		return ErrSignatureInvalid
	}

	v.logger.DebugContext(ctx, "webhook signature verified",
		slog.String("event_type", "webhook_auth"),
	)
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under the webhook secret.
// Exposed for tests and for the provider simulator in development.
func (v *WebhookVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
