package license

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authorkit/internal/config"
	apierrors "authorkit/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return NewClient(config.PaymentsConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		RetryBackoff:   time.Millisecond,
		OutboundRPS:    1000,
		OutboundBurst:  100,
	}, testLogger())
}

func TestClient_Validate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/licenses/validate", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "AK-1234", r.PostForm.Get("license_key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"valid": true,
			"license_key": {"status":"active","activation_limit":3,"activation_usage":1,"expires_at":"2027-01-01T00:00:00Z"},
			"meta": {"variant_name":"AuthorKit Pro","customer_email":"a@example.com"}
		}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Validate(context.Background(), "AK-1234", "")
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, "active", result.LicenseKey.Status)
	assert.Equal(t, 3, result.LicenseKey.ActivationLimit)
	assert.Equal(t, TierPro, TierFromVariant(result.Meta.VariantName))
}

func TestClient_ActivationLimitReached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{
			"activated": false,
			"error": "This license key has reached its activation limit.",
			"license_key": {"status":"active","activation_limit":1,"activation_usage":1}
		}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Activate(context.Background(), "AK-1234", "example.com")
	assert.ErrorIs(t, err, apierrors.ErrActivationLimitReached)
	require.NotNil(t, result, "limit errors still carry provider metadata")
	assert.Equal(t, 1, result.LicenseKey.ActivationLimit)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "expired license",
			status:  http.StatusBadRequest,
			body:    `{"valid":false,"error":"This license key is expired.","license_key":{"status":"expired"}}`,
			wantErr: apierrors.ErrLicenseExpired,
		},
		{
			name:    "disabled license",
			status:  http.StatusBadRequest,
			body:    `{"valid":false,"error":"This license key is disabled.","license_key":{"status":"disabled"}}`,
			wantErr: apierrors.ErrLicenseInactive,
		},
		{
			name:    "unknown key",
			status:  http.StatusNotFound,
			body:    `{"valid":false,"error":"license_key not found"}`,
			wantErr: apierrors.ErrLicenseNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Validate(context.Background(), "AK-1234", "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid":true,"license_key":{"status":"active"}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Validate(context.Background(), "AK-1234", "")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RetriesOnlyOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Validate(context.Background(), "AK-1234", "")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"valid":false,"error":"license_key not found"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Validate(context.Background(), "AK-1234", "")
	assert.ErrorIs(t, err, apierrors.ErrLicenseNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(config.PaymentsConfig{
		RequestTimeout: time.Second,
		OutboundRPS:    1,
		OutboundBurst:  1,
	}, testLogger())

	_, err := client.Validate(context.Background(), "AK-1234", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTierFromVariant(t *testing.T) {
	tests := []struct {
		variant string
		want    string
	}{
		{"AuthorKit Pro", TierPro},
		{"AuthorKit Agency", TierAgency},
		{"AuthorKit Lifetime Deal", TierLifetime},
		{"AuthorKit", TierStandard},
		{"", TierStandard},
		{"PRO yearly", TierPro},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			assert.Equal(t, tt.want, TierFromVariant(tt.variant))
		})
	}
}

func TestHashKeyForAudit(t *testing.T) {
	assert.Empty(t, HashKeyForAudit(""))
	assert.Len(t, HashKeyForAudit("AK-1234"), 16)
	assert.Equal(t, HashKeyForAudit("AK-1234"), HashKeyForAudit("AK-1234"))
	assert.NotEqual(t, HashKeyForAudit("AK-1234"), HashKeyForAudit("AK-5678"))
	assert.NotContains(t, HashKeyForAudit("AK-1234"), "AK-1234")
}
