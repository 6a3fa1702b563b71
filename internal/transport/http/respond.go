// Package http holds the request handlers: one per operation, each a
// short pipeline of rate limiting (mounted as middleware), schema
// validation, a single outbound effect, and a fixed JSON envelope.
package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/render"

	apierrors "authorkit/internal/errors"
)

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 1 << 20

// decodePayload reads a JSON object body into the flat string map the
// schema validator consumes. Scalar values are stringified; nested
// values are skipped (handlers that need them decode a struct).
func decodePayload(r *http.Request) (map[string]string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) == 0 {
		return map[string]string{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	payload := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			payload[key] = v
		case json.Number:
			payload[key] = v.String()
		case bool:
			if v {
				payload[key] = "true"
			} else {
				payload[key] = "false"
			}
		}
	}
	return payload, nil
}

// renderAPIError writes a structured error envelope.
func renderAPIError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}

// renderValidationErrors writes the 400 envelope for schema failures.
func renderValidationErrors(w http.ResponseWriter, r *http.Request, messages []string) {
	renderAPIError(w, r, apierrors.NewValidationErrors(messages))
}
