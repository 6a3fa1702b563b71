// Package security holds the request security layer shared by every
// endpoint: declarative payload validation, HMAC-signed download
// tokens, and webhook signature verification.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Field types understood by Schema.
const (
	TypeString = "string"
	TypeURL    = "url"
	TypeEmail  = "email"
)

// FieldRule declares the constraints for one payload field.
type FieldRule struct {
	Type      string
	Required  bool
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	Default   string
}

// Schema maps field names to their rules. Schemas are declared once
// per endpoint and are immutable at request time.
type Schema map[string]FieldRule

// Result is the outcome of validating a payload against a Schema.
// Data holds only the sanitized values of fields that passed.
type Result struct {
	Valid  bool
	Errors []string
	Data   map[string]string
}

const maxURLLength = 255

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)

// Validate checks payload against the schema. Each failing field
// contributes one error message and no sanitized value; validation
// continues through the remaining fields. Pure function.
func (s Schema) Validate(payload map[string]string) Result {
	result := Result{
		Errors: []string{},
		Data:   make(map[string]string, len(s)),
	}

	for field, rule := range s {
		value := strings.TrimSpace(payload[field])

		if value == "" {
			if rule.Required {
				result.Errors = append(result.Errors, fmt.Sprintf("%s is required", field))
				continue
			}
			result.Data[field] = rule.Default
			continue
		}

		switch rule.Type {
		case TypeURL:
			sanitized := SanitizeURL(value)
			if sanitized == "" || len(sanitized) > maxURLLength {
				result.Errors = append(result.Errors, fmt.Sprintf("%s is not a valid URL", field))
				continue
			}
			result.Data[field] = sanitized

		case TypeEmail:
			sanitized := strings.ToLower(value)
			if len(sanitized) > 254 || !emailPattern.MatchString(sanitized) {
				result.Errors = append(result.Errors, fmt.Sprintf("%s is not a valid email address", field))
				continue
			}
			result.Data[field] = sanitized

		default: // TypeString
			if rule.MinLength > 0 && len(value) < rule.MinLength {
				result.Errors = append(result.Errors, fmt.Sprintf("%s must be at least %d characters", field, rule.MinLength))
				continue
			}
			if rule.MaxLength > 0 && len(value) > rule.MaxLength {
				result.Errors = append(result.Errors, fmt.Sprintf("%s must be at most %d characters", field, rule.MaxLength))
				continue
			}
			if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
				result.Errors = append(result.Errors, fmt.Sprintf("%s has an invalid format", field))
				continue
			}
			result.Data[field] = value
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// SanitizeURL normalizes a site URL to its canonical stored form:
// scheme and leading www. stripped, trailing slashes removed,
// lowercased and trimmed. Prefixes and suffixes are stripped to a
// fixed point so sanitization is idempotent.
func SanitizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	for {
		prev := u
		u = strings.TrimPrefix(u, "http://")
		u = strings.TrimPrefix(u, "https://")
		u = strings.TrimPrefix(u, "www.")
		u = strings.TrimSuffix(u, "/")
		if u == prev {
			return u
		}
	}
}
