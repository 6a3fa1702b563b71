package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Token verification errors. Verification fails closed: any structural
// problem maps to one of these.
var (
	ErrTokenFormat    = errors.New("invalid token format")
	ErrTokenSignature = errors.New("invalid signature")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenSigner issues and verifies HMAC-signed, time-boxed bearer
// tokens for download-link authorization. Tokens carry no revocation
// mechanism; expiry is the only invalidation path.
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner creates a signer around a server-held secret.
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Sign attaches an expiry to the claims, serializes them canonically
// and emits base64url(payload) + "." + hex(hmac-sha256).
func (s *TokenSigner) Sign(claims map[string]any, ttl time.Duration) (string, error) {
	payload := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		payload[k] = v
	}
	payload["exp"] = s.now().Add(ttl).UnixMilli()

	// json.Marshal sorts map keys, which gives the canonical form both
	// sides of verification recompute over.
	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize claims: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(serialized) + "." + s.digest(serialized), nil
}

// Verify checks the token's signature and expiry and returns the
// claims (minus exp) on success.
func (s *TokenSigner) Verify(token string) (map[string]any, error) {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 || idx == len(token)-1 {
		return nil, ErrTokenFormat
	}

	serialized, err := base64.RawURLEncoding.DecodeString(token[:idx])
	if err != nil {
		return nil, ErrTokenFormat
	}

	if !hmac.Equal([]byte(s.digest(serialized)), []byte(token[idx+1:])) {
		return nil, ErrTokenSignature
	}

	var payload map[string]any
	if err := json.Unmarshal(serialized, &payload); err != nil {
		return nil, ErrTokenFormat
	}

	exp, ok := payload["exp"].(float64)
	if !ok {
		return nil, ErrTokenFormat
	}
	if s.now().UnixMilli() > int64(exp) {
		return nil, ErrTokenExpired
	}

	delete(payload, "exp")
	return payload, nil
}

func (s *TokenSigner) digest(serialized []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(serialized)
	return hex.EncodeToString(mac.Sum(nil))
}
