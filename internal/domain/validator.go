package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxPatternLength  = 512
	maxResponseLength = 16384
	maxQueryLength    = 4096
)

// InputValidator implements validation of rules and incoming queries.
// Loosely-typed rule records coming from the snapshot or from synthesis are
// rejected here rather than allowed to leak ambiguity into matching.
type InputValidator struct{}

// NewInputValidator creates a new input validator
func NewInputValidator() *InputValidator {
	return &InputValidator{}
}

// NewValidator creates a new input validator instance
func NewValidator() Validator {
	return NewInputValidator()
}

// ValidateRule validates a complete rule structure
func (v *InputValidator) ValidateRule(rule *Rule) error {
	if rule == nil {
		return NewAppError(ErrValidationFailed, "Rule cannot be nil", 422, nil)
	}

	if rule.ID == "" {
		return NewAppError(ErrValidationFailed, "Rule ID is required", 422, map[string]any{"field": "id"})
	}
	if _, err := uuid.Parse(rule.ID); err != nil {
		return NewAppErrorWithCause(ErrValidationFailed, "Rule ID must be a UUID", 422, err, map[string]any{"field": "id", "value": rule.ID})
	}

	if err := v.validatePattern(rule.Pattern); err != nil {
		return err
	}

	response := strings.TrimSpace(rule.Response)
	if response == "" {
		return NewAppError(ErrValidationFailed, "Response is required", 422, map[string]any{"field": "response"})
	}
	if len(rule.Response) > maxResponseLength {
		return NewAppError(ErrValidationFailed, fmt.Sprintf("Response too long (max %d bytes)", maxResponseLength), 422, map[string]any{
			"field":      "response",
			"length":     len(rule.Response),
			"max_length": maxResponseLength,
		})
	}
	if !utf8.ValidString(rule.Response) {
		return NewAppError(ErrValidationFailed, "Response must be valid UTF-8", 422, map[string]any{"field": "response"})
	}

	if rule.Score < 0 {
		return NewAppError(ErrValidationFailed, "Score must not be negative", 422, map[string]any{"field": "score", "value": rule.Score})
	}

	return nil
}

// ValidateQuery validates an incoming user query
func (v *InputValidator) ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return NewAppError(ErrValidationFailed, "Query is required", 422, map[string]any{"field": "query"})
	}

	if len(query) > maxQueryLength {
		return NewAppError(ErrValidationFailed, fmt.Sprintf("Query too long (max %d bytes)", maxQueryLength), 422, map[string]any{
			"field":      "query",
			"length":     len(query),
			"max_length": maxQueryLength,
		})
	}

	if !utf8.ValidString(query) {
		return NewAppError(ErrValidationFailed, "Query must be valid UTF-8", 422, map[string]any{"field": "query"})
	}

	return nil
}

// validatePattern checks that a pattern contains at least one usable keyword
func (v *InputValidator) validatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return NewAppError(ErrValidationFailed, "Pattern is required", 422, map[string]any{"field": "pattern"})
	}

	if len(pattern) > maxPatternLength {
		return NewAppError(ErrValidationFailed, fmt.Sprintf("Pattern too long (max %d bytes)", maxPatternLength), 422, map[string]any{
			"field":      "pattern",
			"length":     len(pattern),
			"max_length": maxPatternLength,
		})
	}

	if !utf8.ValidString(pattern) {
		return NewAppError(ErrValidationFailed, "Pattern must be valid UTF-8", 422, map[string]any{"field": "pattern"})
	}

	// A '+'-joined pattern requires every conjunct to be non-empty;
	// "refund++policy" or "+refund" would otherwise match everything.
	if strings.Contains(pattern, "+") {
		for _, keyword := range strings.Split(pattern, "+") {
			if strings.TrimSpace(keyword) == "" {
				return NewAppError(ErrValidationFailed, "Pattern contains an empty keyword conjunct", 422, map[string]any{
					"field":   "pattern",
					"pattern": pattern,
				})
			}
		}
	}

	return nil
}
