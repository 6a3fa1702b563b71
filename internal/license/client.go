// Package license talks to the payments provider's licensing API.
// License keys are validated remotely and never stored locally; the
// provider's per-license metadata is the source of truth for
// activation state.
package license

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"authorkit/internal/config"
	apierrors "authorkit/internal/errors"
)

// ErrNotConfigured is returned when no provider API key is present.
var ErrNotConfigured = errors.New("payments provider not configured")

// Client calls the provider's license endpoints. A process-global
// token bucket bounds outbound pressure independently of the
// per-identity inbound rate limits.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	outbound   *rate.Limiter
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient creates a provider client from configuration.
func NewClient(cfg config.PaymentsConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		outbound: rate.NewLimiter(rate.Limit(cfg.OutboundRPS), cfg.OutboundBurst),
		backoff:  cfg.RetryBackoff,
		logger:   logger.With(slog.String("component", "license_client")),
	}
}

// Configured reports whether the client holds provider credentials.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// KeyMeta is the provider's license-key metadata.
type KeyMeta struct {
	Status          string `json:"status"`
	ActivationLimit int    `json:"activation_limit"`
	ActivationUsage int    `json:"activation_usage"`
	CreatedAt       string `json:"created_at"`
	ExpiresAt       string `json:"expires_at"`
}

// Instance is one activation of a license on a site.
type Instance struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Meta carries purchase context attached to a license.
type Meta struct {
	ProductName   string `json:"product_name"`
	VariantName   string `json:"variant_name"`
	CustomerEmail string `json:"customer_email"`
}

// Result is the provider's response to any license operation.
type Result struct {
	Valid       bool      `json:"valid"`
	Activated   bool      `json:"activated"`
	Deactivated bool      `json:"deactivated"`
	Error       string    `json:"error"`
	LicenseKey  KeyMeta   `json:"license_key"`
	Instance    *Instance `json:"instance"`
	Meta        Meta      `json:"meta"`
}

// Validate checks a license key, optionally scoped to one instance.
func (c *Client) Validate(ctx context.Context, key, instanceID string) (*Result, error) {
	form := url.Values{"license_key": {key}}
	if instanceID != "" {
		form.Set("instance_id", instanceID)
	}
	return c.call(ctx, "/v1/licenses/validate", form)
}

// Activate associates the license with a named site instance.
func (c *Client) Activate(ctx context.Context, key, instanceName string) (*Result, error) {
	form := url.Values{
		"license_key":   {key},
		"instance_name": {instanceName},
	}
	return c.call(ctx, "/v1/licenses/activate", form)
}

// Deactivate releases one activation slot.
func (c *Client) Deactivate(ctx context.Context, key, instanceID string) (*Result, error) {
	form := url.Values{
		"license_key": {key},
		"instance_id": {instanceID},
	}
	return c.call(ctx, "/v1/licenses/deactivate", form)
}

// call performs one provider request with a single bounded retry on
// transient failure (network error or 5xx).
func (c *Client) call(ctx context.Context, path string, form url.Values) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if err := c.outbound.Wait(ctx); err != nil {
		return nil, fmt.Errorf("outbound limiter: %w", err)
	}

	result, err := c.post(ctx, path, form)
	if err != nil && isTransient(err) {
		c.logger.WarnContext(ctx, "provider call failed, retrying once",
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.Duration("backoff", c.backoff),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff):
		}
		result, err = c.post(ctx, path, form)
	}

	// Mapped license-state errors still carry the provider's metadata
	// (activation limits and usage), which the handlers surface.
	return result, err
}

// transientError marks failures worth one retry.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transientError{fmt.Errorf("provider request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &transientError{fmt.Errorf("failed to read provider response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return nil, &transientError{fmt.Errorf("provider returned %d", resp.StatusCode)}
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	// Provider-level rejections arrive with 4xx and an error string;
	// map the known license states to sentinels the handlers translate.
	if resp.StatusCode >= 400 || result.Error != "" {
		return &result, mapProviderError(resp.StatusCode, &result)
	}

	return &result, nil
}

func mapProviderError(status int, result *Result) error {
	msg := strings.ToLower(result.Error)
	switch {
	case strings.Contains(msg, "activation limit"):
		return apierrors.ErrActivationLimitReached
	case strings.Contains(msg, "expired") || result.LicenseKey.Status == "expired":
		return apierrors.ErrLicenseExpired
	case strings.Contains(msg, "disabled") || strings.Contains(msg, "inactive") || result.LicenseKey.Status == "disabled":
		return apierrors.ErrLicenseInactive
	case status == http.StatusNotFound || strings.Contains(msg, "not found") || strings.Contains(msg, "invalid"):
		return apierrors.ErrLicenseNotFound
	default:
		return fmt.Errorf("provider error: %s", result.Error)
	}
}

// HashKeyForAudit returns the first 16 hex chars of the SHA-256 of a
// license key. Logs carry this hash, never the key itself.
func HashKeyForAudit(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)[:16]
}
