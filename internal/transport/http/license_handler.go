package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/mod/semver"

	"authorkit/internal/config"
	apierrors "authorkit/internal/errors"
	"authorkit/internal/license"
	"authorkit/internal/security"
)

// LicenseHandler handles the license endpoints backed by the payments
// provider: validate, activate, deactivate, update check, download.
type LicenseHandler struct {
	client      *license.Client
	signer      *security.TokenSigner
	plugin      config.PluginConfig
	publicURL   string
	tokenTTL    time.Duration
	development bool
	logger      *slog.Logger
}

// NewLicenseHandler creates a license handler.
func NewLicenseHandler(client *license.Client, signer *security.TokenSigner, cfg *config.Config, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		client:      client,
		signer:      signer,
		plugin:      cfg.Plugin,
		publicURL:   cfg.Server.PublicURL,
		tokenTTL:    cfg.Download.TokenTTL,
		development: cfg.IsDevelopment(),
		logger:      logger.With(slog.String("handler", "license")),
	}
}

var validateLicenseSchema = security.Schema{
	"license_key": {Type: security.TypeString, Required: true, MinLength: 8, MaxLength: 128},
	"site_url":    {Type: security.TypeURL, Required: true},
}

var activateLicenseSchema = security.Schema{
	"license_key": {Type: security.TypeString, Required: true, MinLength: 8, MaxLength: 128},
	"site_url":    {Type: security.TypeURL, Required: true},
	"site_name":   {Type: security.TypeString, MaxLength: 200},
}

var deactivateLicenseSchema = security.Schema{
	"license_key": {Type: security.TypeString, Required: true, MinLength: 8, MaxLength: 128},
	"site_url":    {Type: security.TypeURL},
	"instance_id": {Type: security.TypeString, MaxLength: 64},
}

var checkUpdateSchema = security.Schema{
	"license_key":     {Type: security.TypeString, Required: true, MinLength: 8, MaxLength: 128},
	"plugin_slug":     {Type: security.TypeString, Required: true, MaxLength: 100},
	"current_version": {Type: security.TypeString, Required: true, MaxLength: 32},
	"site_url":        {Type: security.TypeURL, Required: true},
}

// licenseData is the envelope's data block for validate and activate.
type licenseData struct {
	Tier            string `json:"tier"`
	Status          string `json:"status"`
	Product         string `json:"product,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	ActivationLimit int    `json:"activation_limit"`
	ActivationUsage int    `json:"activation_usage"`
	InstanceID      string `json:"instance_id,omitempty"`
	ActivatedAt     string `json:"activated_at,omitempty"`
	SitesRemaining  int    `json:"sites_remaining"`
}

func newLicenseData(result *license.Result) licenseData {
	data := licenseData{
		Tier:            license.TierFromVariant(result.Meta.VariantName),
		Status:          result.LicenseKey.Status,
		Product:         result.Meta.ProductName,
		CustomerEmail:   result.Meta.CustomerEmail,
		ExpiresAt:       result.LicenseKey.ExpiresAt,
		ActivationLimit: result.LicenseKey.ActivationLimit,
		ActivationUsage: result.LicenseKey.ActivationUsage,
	}
	if remaining := data.ActivationLimit - data.ActivationUsage; remaining > 0 {
		data.SitesRemaining = remaining
	}
	if result.Instance != nil {
		data.InstanceID = result.Instance.ID
		data.ActivatedAt = result.Instance.CreatedAt
	}
	return data
}

// ValidateLicense handles POST /api/validate-license.
func (h *LicenseHandler) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := validateLicenseSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}
	key := result.Data["license_key"]

	provider, err := h.client.Validate(ctx, key, "")
	if err != nil {
		if invalid, message := licenseStateMessage(err); invalid {
			h.logger.InfoContext(ctx, "license validation rejected",
				slog.String("license_hash", license.HashKeyForAudit(key)),
				slog.String("reason", message),
			)
			render.JSON(w, r, map[string]any{
				"valid":   false,
				"message": message,
			})
			return
		}
		h.renderProviderFailure(w, r, "validate", key, err)
		return
	}

	h.logger.InfoContext(ctx, "license validated",
		slog.String("license_hash", license.HashKeyForAudit(key)),
		slog.String("site_url", result.Data["site_url"]),
	)
	render.JSON(w, r, map[string]any{
		"valid":   provider.Valid,
		"message": "License is valid",
		"data":    newLicenseData(provider),
	})
}

// ActivateLicense handles POST /api/activate-license.
func (h *LicenseHandler) ActivateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := activateLicenseSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}
	key := result.Data["license_key"]
	siteURL := result.Data["site_url"]
	siteName := result.Data["site_name"]
	if siteName == "" {
		siteName = siteURL
	}

	provider, err := h.client.Activate(ctx, key, siteName)
	if err != nil {
		if errors.Is(err, apierrors.ErrActivationLimitReached) {
			h.logger.InfoContext(ctx, "activation limit reached",
				slog.String("license_hash", license.HashKeyForAudit(key)),
				slog.Int("activation_limit", provider.LicenseKey.ActivationLimit),
			)
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]any{
				"success": false,
				"message": "Activation limit reached for this license",
				"data": map[string]any{
					"max_activations":  provider.LicenseKey.ActivationLimit,
					"activation_usage": provider.LicenseKey.ActivationUsage,
				},
			})
			return
		}
		if invalid, message := licenseStateMessage(err); invalid {
			renderAPIError(w, r, apierrors.NewWithDetails(
				http.StatusForbidden, "LICENSE_INVALID", message, nil))
			return
		}
		h.renderProviderFailure(w, r, "activate", key, err)
		return
	}

	h.logger.InfoContext(ctx, "license activated",
		slog.String("license_hash", license.HashKeyForAudit(key)),
		slog.String("site_url", siteURL),
	)
	render.JSON(w, r, map[string]any{
		"success": true,
		"message": "License activated",
		"data":    newLicenseData(provider),
	})
}

// DeactivateLicense handles POST /api/deactivate-license. Callers
// supply either the provider instance ID or the site URL the license
// was activated for.
func (h *LicenseHandler) DeactivateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := deactivateLicenseSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}
	key := result.Data["license_key"]
	instanceID := result.Data["instance_id"]
	siteURL := result.Data["site_url"]

	if instanceID == "" && siteURL == "" {
		renderValidationErrors(w, r, []string{"site_url or instance_id is required"})
		return
	}

	if instanceID == "" {
		id, err := h.resolveInstance(r, key, siteURL)
		if err != nil {
			if invalid, message := licenseStateMessage(err); invalid {
				renderAPIError(w, r, apierrors.NewWithDetails(
					http.StatusForbidden, "LICENSE_INVALID", message, nil))
				return
			}
			h.renderProviderFailure(w, r, "deactivate", key, err)
			return
		}
		if id == "" {
			renderAPIError(w, r, apierrors.ErrActivationNotFound)
			return
		}
		instanceID = id
	}

	provider, err := h.client.Deactivate(ctx, key, instanceID)
	if err != nil {
		if errors.Is(err, apierrors.ErrLicenseNotFound) {
			renderAPIError(w, r, apierrors.ErrActivationNotFound)
			return
		}
		if invalid, message := licenseStateMessage(err); invalid {
			renderAPIError(w, r, apierrors.NewWithDetails(
				http.StatusForbidden, "LICENSE_INVALID", message, nil))
			return
		}
		h.renderProviderFailure(w, r, "deactivate", key, err)
		return
	}

	h.logger.InfoContext(ctx, "license deactivated",
		slog.String("license_hash", license.HashKeyForAudit(key)),
		slog.String("instance_id", instanceID),
	)
	render.JSON(w, r, map[string]any{
		"success": provider.Deactivated,
		"message": "License deactivated",
		"data": map[string]any{
			"deactivated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// resolveInstance looks up the provider instance matching a site URL.
// Returns "" when the license has no activation for that site.
func (h *LicenseHandler) resolveInstance(r *http.Request, key, siteURL string) (string, error) {
	provider, err := h.client.Validate(r.Context(), key, "")
	if err != nil {
		return "", err
	}
	if provider.Instance == nil {
		return "", nil
	}
	if security.SanitizeURL(provider.Instance.Name) != siteURL {
		return "", nil
	}
	return provider.Instance.ID, nil
}

// CheckUpdate handles POST /api/check-update. A valid license gets the
// latest release metadata with a signed, time-boxed download link.
func (h *LicenseHandler) CheckUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodePayload(r)
	if err != nil {
		renderAPIError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	result := checkUpdateSchema.Validate(payload)
	if !result.Valid {
		renderValidationErrors(w, r, result.Errors)
		return
	}
	key := result.Data["license_key"]
	currentVersion := result.Data["current_version"]

	provider, err := h.client.Validate(ctx, key, "")
	if err != nil || !provider.Valid {
		if err == nil || isLicenseStateError(err) {
			renderAPIError(w, r, apierrors.ErrLicenseInvalid)
			return
		}
		h.renderProviderFailure(w, r, "check_update", key, err)
		return
	}

	if semver.Compare(canonicalVersion(h.plugin.LatestVersion), canonicalVersion(currentVersion)) <= 0 {
		render.JSON(w, r, map[string]any{
			"update_available": false,
			"current_version":  currentVersion,
		})
		return
	}

	downloadURL, err := h.signedDownloadURL(key)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to sign download token",
			slog.String("error", err.Error()))
		renderAPIError(w, r, apierrors.Internal(err, h.development))
		return
	}

	render.JSON(w, r, map[string]any{
		"update_available": true,
		"new_version":      h.plugin.LatestVersion,
		"package":          downloadURL,
		"changelog":        h.plugin.ChangelogURL,
		"requires":         h.plugin.RequiresWP,
		"tested":           h.plugin.TestedUpTo,
	})
}

// Download handles GET /api/download. The token minted by CheckUpdate
// authorizes a redirect to the real package artifact.
func (h *LicenseHandler) Download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		renderAPIError(w, r, apierrors.ErrInvalidToken)
		return
	}

	claims, err := h.signer.Verify(token)
	if err != nil {
		h.logger.WarnContext(r.Context(), "download token rejected",
			slog.String("error", err.Error()))
		renderAPIError(w, r, apierrors.ErrInvalidToken)
		return
	}

	packageURL, ok := claims["package_url"].(string)
	if !ok || packageURL == "" {
		renderAPIError(w, r, apierrors.ErrInvalidToken)
		return
	}

	http.Redirect(w, r, packageURL, http.StatusFound)
}

func (h *LicenseHandler) signedDownloadURL(key string) (string, error) {
	token, err := h.signer.Sign(map[string]any{
		"license":     license.HashKeyForAudit(key),
		"slug":        h.plugin.Slug,
		"version":     h.plugin.LatestVersion,
		"package_url": h.plugin.PackageURL,
	}, h.tokenTTL)
	if err != nil {
		return "", err
	}
	return h.publicURL + "/api/download?token=" + url.QueryEscape(token), nil
}

// renderProviderFailure maps non-business provider failures: missing
// configuration is a 500, everything else a 502. Detail is attached
// only in development.
func (h *LicenseHandler) renderProviderFailure(w http.ResponseWriter, r *http.Request, op, key string, err error) {
	h.logger.ErrorContext(r.Context(), "provider call failed",
		slog.String("operation", op),
		slog.String("license_hash", license.HashKeyForAudit(key)),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, license.ErrNotConfigured) {
		renderAPIError(w, r, apierrors.ErrNotConfigured)
		return
	}
	renderAPIError(w, r, apierrors.Upstream(err, h.development))
}

// licenseStateMessage reports whether err is a business-level license
// state and the message to surface for it.
func licenseStateMessage(err error) (bool, string) {
	switch {
	case errors.Is(err, apierrors.ErrLicenseExpired):
		return true, "License has expired"
	case errors.Is(err, apierrors.ErrLicenseInactive):
		return true, "License is inactive"
	case errors.Is(err, apierrors.ErrLicenseNotFound):
		return true, "License key not found"
	default:
		return false, ""
	}
}

func isLicenseStateError(err error) bool {
	invalid, _ := licenseStateMessage(err)
	return invalid || errors.Is(err, apierrors.ErrActivationLimitReached)
}

// canonicalVersion normalizes plugin version strings for comparison.
func canonicalVersion(v string) string {
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	if c := semver.Canonical(v); c != "" {
		return c
	}
	return "v0.0.0"
}
